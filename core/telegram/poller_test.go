package telegram

import (
	"testing"
	"time"

	coreconfig "github.com/ritikbhatt20/copperx-telegram-bot/core/config"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

func TestNewPollerLongPollDefaults(t *testing.T) {
	p, ok := NewPoller(coreconfig.TelegramConfig{RunMode: coreconfig.RunModeLongpoll}, coreconfig.WebhookConfig{}).(*tele.LongPoller)
	if !ok {
		t.Fatalf("expected a long poller")
	}
	if p.Timeout != defaultLongPollTimeout {
		t.Fatalf("timeout = %v", p.Timeout)
	}
	if len(p.AllowedUpdates) != 2 {
		t.Fatalf("allowed updates = %v", p.AllowedUpdates)
	}
	attrs := pollerAttrs(p)
	if attrs[0].Value.String() != coreconfig.RunModeLongpoll || attrs[1].Value.Duration() != 10*time.Second {
		t.Fatalf("attrs = %v", attrs)
	}
}

func TestNewPollerWebhook(t *testing.T) {
	p, ok := NewPoller(
		coreconfig.TelegramConfig{RunMode: "WEBHOOK"},
		coreconfig.WebhookConfig{Listen: "0.0.0.0", Port: 8443, URL: "https://bot.example/hook", Secret: "s3"},
	).(*tele.Webhook)
	if !ok {
		t.Fatalf("expected a webhook poller")
	}
	if p.Listen != "0.0.0.0:8443" || p.SecretToken != "s3" || p.Endpoint.PublicURL != "https://bot.example/hook" {
		t.Fatalf("webhook = %+v", p)
	}
}

func TestBotClientOutlastsLongPoll(t *testing.T) {
	c := botClient(coreconfig.TelegramConfig{LongPollTimeoutSeconds: 25})
	if c.Timeout <= 25*time.Second {
		t.Fatalf("client timeout %v does not outlast the poll", c.Timeout)
	}
	rt, ok := c.Transport.(*netutil.RetryTransport)
	if !ok {
		t.Fatalf("transport = %T", c.Transport)
	}
	if rt.IdempotentOnly {
		t.Fatal("bot API calls must be retried for every method")
	}
}
