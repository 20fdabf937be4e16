// Package app assembles the Copperx bot from its parts.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/bootstrap"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/config"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/conversation"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/copperx"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/health"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/notify"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/middleware"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/router"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/state"
)

const (
	msgSlowDown     = "⏳ You're sending messages too quickly. Please wait a moment."
	msgUnknownMedia = "I can only read text. Use /help to see what I can do."
)

// Commands is the public command menu in display order.
var Commands = []router.CommandSpec{
	{Name: "start", Description: "Start or restart the bot"},
	{Name: "help", Description: "Show available commands"},
	{Name: "login", Description: "Log in with your Copperx email"},
	{Name: "logout", Description: "Log out"},
	{Name: "profile", Description: "View your profile"},
	{Name: "kyc", Description: "Check KYC status"},
	{Name: "wallets", Description: "List your wallets"},
	{Name: "balance", Description: "Check wallet balances"},
	{Name: "deposit", Description: "Deposit USDC to your account"},
	{Name: "setdefault", Description: "Set your default wallet"},
	{Name: "send", Description: "Send USDC to a wallet"},
	{Name: "sendemail", Description: "Send USDC via email"},
	{Name: "addpayee", Description: "Add a new payee"},
	{Name: "withdraw", Description: "Withdraw USDC to your bank account"},
	{Name: "sendbatch", Description: "Send USDC to multiple payees"},
	{Name: "history", Description: "View recent transactions"},
	{Name: "points", Description: "View your Copperx Mint points"},
	{Name: "cancel", Description: "Cancel the current operation", Hidden: true},
}

// Deps overrides the collaborators New would otherwise build from config.
type Deps struct {
	Bootstrap bootstrap.Options
	Gateway   interface {
		conversation.Gateway
		notify.Authorizer
	}
}

// App owns the long-lived components of one bot process.
type App struct {
	cfg      *config.Config
	infra    *bootstrap.Result
	engine   *conversation.Engine
	notifier *notify.Manager
	lanes    *middleware.Lanes
	registry *telegram.Registry

	mu         sync.Mutex
	stopHealth context.CancelFunc
	healthDone chan error
}

// New wires the app from cfg.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	bopts := deps.Bootstrap
	bopts.Config = cfg
	infra, err := bootstrap.Run(ctx, bopts)
	if err != nil {
		return nil, err
	}

	gw := deps.Gateway
	if gw == nil {
		client, err := copperx.New(cfg.Copperx, nil)
		if err != nil {
			_ = infra.Close()
			return nil, fmt.Errorf("app: copperx client: %w", err)
		}
		gw = client
	}

	a := &App{cfg: cfg, infra: infra}
	var notifier conversation.Notifier
	if cfg.Pusher.Enabled {
		a.notifier, err = notify.NewManager(gw, notify.Options{
			Key:      cfg.Pusher.Key,
			Cluster:  cfg.Pusher.Cluster,
			Host:     cfg.Pusher.Host,
			Currency: cfg.Copperx.Currency,
		})
		if err != nil {
			_ = infra.Close()
			return nil, fmt.Errorf("app: notifier: %w", err)
		}
		notifier = a.notifier
	}

	a.engine, err = conversation.New(conversation.Options{
		Store:    infra.Store,
		Gateway:  gw,
		Notifier: notifier,
		Copperx:  cfg.Copperx,
	})
	if err != nil {
		_ = infra.Close()
		return nil, err
	}

	a.lanes = middleware.NewLanes(middleware.LaneOptions{OnError: telegram.LogHandlerError})
	a.registry = telegram.NewRegistry()
	if err := router.RegisterEngineCommands(a.registry, a.engine, Commands); err != nil {
		_ = infra.Close()
		return nil, err
	}
	if err := a.registry.RegisterCommand("/version", router.VersionCommand()); err != nil {
		_ = infra.Close()
		return nil, err
	}
	return a, nil
}

// Store exposes the session store.
func (a *App) Store() state.Store { return a.infra.Store }

// TelegramRunOptions describes the middleware chain, routes and lifecycle hooks.
func (a *App) TelegramRunOptions() (telegram.RunOptions, error) {
	mws := telegram.DefaultMiddlewares(a.cfg, telegram.ChainOptions{
		Lanes:     a.lanes,
		OnLimited: func(c tele.Context) error { return c.Send(msgSlowDown) },
		Sensitive: a.awaitingOTP,
	})

	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{AdminID: a.cfg.Telegram.AdminID})
	routes = append(routes, router.CallbackRoute(a.engine))
	routes = append(routes, router.TextRoutes(a.engine, router.TextOptions{
		UnknownMedia: func(c tele.Context) error { return c.Send(msgUnknownMedia) },
	})...)

	return telegram.RunOptions{
		Config:      a.cfg,
		Registry:    a.registry,
		Lanes:       a.lanes,
		Middlewares: mws,
		Routes:      routes,
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

// awaitingOTP marks users whose next message is a one-time code.
func (a *App) awaitingOTP(userID int64) bool {
	sess, found, err := a.infra.Store.Get(context.Background(), strconv.FormatInt(userID, 10))
	if err != nil || !found {
		return false
	}
	return sess.LoginState == state.LoginAwaitingOTP
}

func (a *App) onStart(ctx context.Context, rt telegram.Runtime) error {
	if a.notifier != nil {
		a.notifier.Attach(rt.Outbox)
	}
	if a.cfg.Health.Listen == "" {
		return nil
	}
	srv := health.NewServer(a.cfg.Health.Listen, health.NewRouter(a.infra.Store, a.stats(rt)))
	hctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan error, 1)
	go func() { done <- srv.Run(hctx) }()

	a.mu.Lock()
	a.stopHealth, a.healthDone = cancel, done
	a.mu.Unlock()
	return nil
}

func (a *App) onStop(ctx context.Context, _ telegram.Runtime) error {
	if a.notifier != nil {
		a.notifier.Close()
	}
	a.mu.Lock()
	cancel, done := a.stopHealth, a.healthDone
	a.stopHealth, a.healthDone = nil, nil
	a.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	if err := <-done; err != nil {
		logger.Warn(ctx, logger.CompHealth, "stop_failed", slog.String("err", err.Error()))
	}
	return nil
}

func (a *App) stats(rt telegram.Runtime) health.Stats {
	return func() map[string]any {
		out := map[string]any{
			"session_backend": a.cfg.Session.Backend,
			"lanes_active":    a.lanes.Active(),
		}
		if rt.Outbox != nil {
			sent, failed := rt.Outbox.Stats()
			out["outbox_sent"] = sent
			out["outbox_failed"] = failed
		}
		if a.notifier != nil {
			out["deposit_subscriptions"] = a.notifier.Active()
		}
		return out
	}
}

// Close releases the store connections.
func (a *App) Close() error {
	return a.infra.Close()
}
