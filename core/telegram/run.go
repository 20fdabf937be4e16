package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	coreconfig "github.com/ritikbhatt20/copperx-telegram-bot/core/config"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
	tghelpers "github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/helpers"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/middleware"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/netutil"
	tgsender "github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	OutboxOptions tgsender.Options
	// Lanes, when set, is drained after the poller stops. The same value should
	// appear in Middlewares.
	Lanes *middleware.Lanes

	Middlewares []Middleware
	Routes      []Route

	DisableWebhookCleanup bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot      *tele.Bot
	Outbox   *tgsender.Outbox
	Registry *Registry
}

// RunTelegram runs the bot until ctx is done or the poller exits. Updates are
// handled on the poller goroutine, so the lane middleware sees them in arrival
// order.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if opts.Config == nil {
		return errors.New("telegram: nil config")
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	rt, poller, err := build(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Outbox.Close()

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		rt.Bot.Start()
	}()

	select {
	case <-ctx.Done():
		rt.Bot.Stop()
		<-stopped
	case <-stopped:
		logger.Warn(ctx, logger.CompTG, "poller.exited", slog.String("mode", pollerMode(poller)))
	}

	if opts.Lanes != nil {
		opts.Lanes.Close()
	}
	if opts.OnStop != nil {
		return opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	return nil
}

// build creates the bot and outbox and installs middlewares, routes and the menu.
func build(ctx context.Context, opts RunOptions) (Runtime, tele.Poller, error) {
	cfg := opts.Config
	poller := NewPoller(cfg.Telegram, cfg.Webhook)

	start := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:       cfg.Telegram.Token,
		Poller:      poller,
		Client:      botClient(cfg.Telegram),
		Synchronous: true,
		OnError:     LogHandlerError,
	})
	if err != nil {
		return Runtime{}, nil, fmt.Errorf("telegram: new bot: %w", err)
	}
	logger.Info(ctx, logger.CompTG, "bot.ready",
		append(pollerAttrs(poller),
			slog.String("bot", bot.Me.Username),
			slog.Duration("duration", logger.Took(start)),
		)...)

	if _, ok := poller.(*tele.LongPoller); ok && !opts.DisableWebhookCleanup {
		clearWebhook(ctx, bot)
	}

	outbox, err := tgsender.New(bot, opts.OutboxOptions)
	if err != nil {
		return Runtime{}, nil, fmt.Errorf("telegram: outbox: %w", err)
	}

	installed := 0
	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
			installed++
		}
	}
	for _, r := range opts.Routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}
	logger.Debug(ctx, logger.CompTGWire, "chain.installed",
		slog.Int("middlewares", installed),
		slog.Int("routes", len(opts.Routes)),
	)
	PublishMenu(bot, opts.Registry)

	return Runtime{Bot: bot, Outbox: outbox, Registry: opts.Registry}, poller, nil
}

// clearWebhook removes a webhook left by an earlier webhook deployment, which
// would otherwise make getUpdates fail. Pending updates are kept.
func clearWebhook(ctx context.Context, bot *tele.Bot) {
	if err := bot.RemoveWebhook(false); err != nil {
		logger.Warn(ctx, logger.CompTG, "webhook.remove",
			slog.String("status", "fail"),
			slog.String("err", tgsender.Redact(err)),
		)
		return
	}
	logger.Info(ctx, logger.CompTG, "webhook.remove", slog.String("status", "ok"))
}

// botClient sizes the response timeout to outlast a long poll. Bot API calls
// are safe to re-send after a dial failure, so every method is retried.
func botClient(tc coreconfig.TelegramConfig) *http.Client {
	poll := time.Duration(tc.LongPollTimeoutSeconds) * time.Second
	if poll <= 0 {
		poll = defaultLongPollTimeout
	}
	return netutil.NewHTTPClient(netutil.ClientOptions{
		Timeout:         poll + 20*time.Second,
		ResponseTimeout: poll + 5*time.Second,
		MaxRetries:      3,
		Backoff:         2 * time.Second,
	})
}

// LogHandlerError reports errors that escaped the handler chain. It also serves
// as the lane error sink.
func LogHandlerError(err error, c tele.Context) {
	ctx := context.Background()
	if c != nil {
		ctx = tghelpers.BuildContext(c)
	}
	attrs := []slog.Attr{slog.String("err", tgsender.Redact(err))}
	var pe *middleware.PanicError
	if errors.As(err, &pe) {
		attrs = append(attrs, slog.String("err_code", pe.Code()))
	}
	logger.Error(ctx, logger.CompTG, "handler.error", attrs...)
}
