package conversation

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	tele "gopkg.in/telebot.v4"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/copperx"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
)

// inputError re-prompts the current step; the session is left untouched.
type inputError struct {
	prompt string
	markup *tele.ReplyMarkup
	md     bool
}

func (e *inputError) Error() string { return "invalid input: " + e.prompt }

// Code returns the log error code.
func (e *inputError) Code() string { return "INPUT_VALIDATION" }

func invalid(prompt string) error { return &inputError{prompt: prompt} }

func invalidMD(prompt string, markup *tele.ReplyMarkup) error {
	return &inputError{prompt: prompt, markup: markup, md: true}
}

// fail turns a handler error into the user-visible outcome and the matching
// session transition.
func (t *turn) fail(action string, err error) error {
	var inv *inputError
	if errors.As(err, &inv) {
		logger.Debug(t.ctx, logger.CompFlow, "flow.input_rejected", slog.String("action", action))
		if inv.md {
			return t.sendMD(inv.prompt, inv.markup)
		}
		return t.send(inv.prompt, inv.markup)
	}

	class := copperx.Classify(err)
	attrs := []slog.Attr{
		slog.String("action", action),
		slog.String("flow", string(t.sess.Flow.Kind)),
		slog.String("step", string(t.sess.Flow.Step())),
		slog.String("err_code", copperx.ErrorCode(err)),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	}

	switch class {
	case copperx.ClassUnauthorized:
		logger.Warn(t.ctx, logger.CompFlow, "flow.unauthorized", attrs...)
		t.e.notify.Unsubscribe(t.ev.UserID)
		if _, derr := t.e.store.Delete(t.ctx, t.id); derr != nil {
			return fmt.Errorf("drop expired session: %w", derr)
		}
		return t.send(msgSessionExpired, loginMarkup())

	case copperx.ClassRateLimited:
		wait := copperx.RetryAfter(err)
		logger.Warn(t.ctx, logger.CompFlow, "flow.rate_limited",
			append(attrs, slog.Int64("retry_after_ms", wait.Milliseconds()))...)
		if serr := t.clearFlow(); serr != nil {
			return serr
		}
		msg := msgRateLimited
		if wait > 0 {
			msg = fmt.Sprintf(msgRateLimitedAfter, int(math.Ceil(wait.Seconds())))
		}
		return t.send(msg, menuButtonMarkup())
	}

	var apiErr *copperx.APIError
	if errors.As(err, &apiErr) {
		logger.Warn(t.ctx, logger.CompFlow, "flow.failed", attrs...)
	} else {
		logger.Error(t.ctx, logger.CompFlow, "flow.failed", attrs...)
	}
	if serr := t.clearFlow(); serr != nil {
		return serr
	}
	return t.send("❌ Error: "+copperx.UserMessage(err), menuButtonMarkup())
}
