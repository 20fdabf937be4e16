package telegram

import (
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	coreconfig "github.com/ritikbhatt20/copperx-telegram-bot/core/config"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPollTimeout = 10 * time.Second

// allowedUpdates are the only update types the bot routes.
var allowedUpdates = []string{"message", "callback_query"}

// NewPoller returns the webhook or long poller selected by the Telegram run mode.
func NewPoller(tc coreconfig.TelegramConfig, wh coreconfig.WebhookConfig) tele.Poller {
	if strings.EqualFold(tc.RunMode, coreconfig.RunModeWebhook) {
		return &tele.Webhook{
			Listen:         net.JoinHostPort(wh.Listen, strconv.Itoa(wh.Port)),
			SecretToken:    wh.Secret,
			AllowedUpdates: allowedUpdates,
			Endpoint:       &tele.WebhookEndpoint{PublicURL: wh.URL},
		}
	}
	timeout := time.Duration(tc.LongPollTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultLongPollTimeout
	}
	return &tele.LongPoller{Timeout: timeout, AllowedUpdates: allowedUpdates}
}

// pollerAttrs describes p for the startup log.
func pollerAttrs(p tele.Poller) []slog.Attr {
	switch p := p.(type) {
	case *tele.Webhook:
		attrs := []slog.Attr{slog.String("mode", coreconfig.RunModeWebhook), slog.String("listen", p.Listen)}
		if p.Endpoint != nil {
			attrs = append(attrs, slog.String("public_url", p.Endpoint.PublicURL))
		}
		return attrs
	case *tele.LongPoller:
		return []slog.Attr{slog.String("mode", coreconfig.RunModeLongpoll), slog.Duration("timeout", p.Timeout)}
	}
	return []slog.Attr{slog.String("mode", "custom")}
}

func pollerMode(p tele.Poller) string {
	return pollerAttrs(p)[0].Value.String()
}
