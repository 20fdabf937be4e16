package telegram

import (
	"time"

	coreconfig "github.com/ritikbhatt20/copperx-telegram-bot/core/config"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Middleware is a named bot.Use stage. Names only show up in logs and tests.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route binds a handler to any endpoint tele.Bot.Handle accepts.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// ChainOptions supplies the runtime pieces of the default middleware chain.
type ChainOptions struct {
	// Lanes serialises updates per user. Nil runs handlers on the poller goroutine.
	Lanes     *middleware.Lanes
	OnLimited tele.HandlerFunc
	// Sensitive reports users whose next free text must not be logged.
	Sensitive func(userID int64) bool
}

// DefaultMiddlewares returns, outermost first: lanes, recover, rate_limit,
// logger, metrics. Every stage after lanes runs on the user's lane.
func DefaultMiddlewares(cfg *coreconfig.Config, opts ChainOptions) []Middleware {
	var chain []Middleware
	add := func(name string, use tele.MiddlewareFunc) {
		chain = append(chain, Middleware{Name: name, Use: use})
	}

	if opts.Lanes != nil {
		add("lanes", opts.Lanes.Middleware)
	}
	add("recover", middleware.RecoverMiddleware)
	if cfg != nil && cfg.RateLimit.IntervalMS > 0 {
		add("rate_limit", middleware.RateLimitMiddleware(middleware.RateLimitOptions{
			Interval:  time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
			Exclude:   cfg.RateLimit.ExcludeUpdates,
			OnLimited: opts.OnLimited,
		}))
	}
	add("logger", middleware.NewLogger(middleware.LoggerOptions{Sensitive: opts.Sensitive}))
	add("metrics", middleware.MessageMetricsMiddleware)
	return chain
}
