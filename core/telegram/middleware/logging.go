package middleware

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/callbacks"
	tghelpers "github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const maskedText = "<redacted>"

// codeLikeRe matches replies that look like one-time codes.
var codeLikeRe = regexp.MustCompile(`^\s*\d{4,8}\s*$`)

// LoggerOptions configures NewLogger.
type LoggerOptions struct {
	// Sensitive reports whether the user's next free text is a secret, e.g. an OTP.
	Sensitive func(userID int64) bool
}

// NewLogger starts the update's logging context and, for a sample of updates,
// records what arrived. Free text is masked when it may carry a one-time code.
func NewLogger(opts LoggerOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			ctx := tghelpers.NewContext(c)
			if logger.ShouldSampleDebug() {
				logger.Debug(ctx, logger.CompTG, "update.received", receiptAttrs(c, opts.Sensitive)...)
			}
			return next(c)
		}
	}
}

func receiptAttrs(c tele.Context, sensitive func(int64) bool) []slog.Attr {
	upd := c.Update()
	userID, _ := tghelpers.Identity(c)
	attrs := []slog.Attr{slog.String("status", "ok")}
	if ch := c.Chat(); ch != nil {
		attrs = append(attrs, slog.String("chat_type", string(ch.Type)))
	}
	switch {
	case upd.Callback != nil:
		if data := callbacks.RawData(upd.Callback); data != "" {
			tag, _, _ := strings.Cut(data, callbacks.Delimiter)
			attrs = append(attrs,
				slog.String("action", logger.SanitizeLimit(tag, 64)),
				slog.String("payload", logger.SanitizeLimit(data, 64)),
			)
		}
	case upd.Message != nil:
		if t := c.Text(); t != "" {
			attrs = append(attrs, slog.String("payload", maskText(t, userID, sensitive)))
		}
	}
	return attrs
}

// maskText hides free text that may carry a secret. Commands are never masked.
func maskText(text string, userID int64, sensitive func(int64) bool) string {
	if strings.HasPrefix(text, "/") {
		return logger.SanitizeLimit(text, 256)
	}
	if codeLikeRe.MatchString(text) {
		return maskedText
	}
	if sensitive != nil && userID != 0 && sensitive(userID) {
		return maskedText
	}
	return logger.SanitizeLimit(text, 256)
}
