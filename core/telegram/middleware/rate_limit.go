package middleware

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
	tghelpers "github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures RateLimitMiddleware.
type RateLimitOptions struct {
	// Interval is the minimum gap between two updates of one user.
	Interval time.Duration
	// Exclude lists update kinds ("message", "callback") that are never limited.
	Exclude   []string
	OnLimited tele.HandlerFunc
	Now       func() time.Time
}

// throttle remembers when each user was last admitted. Entries older than the
// interval are swept once the table grows past sweepAt.
type throttle struct {
	interval time.Duration
	sweepAt  int

	mu   sync.Mutex
	seen map[int64]time.Time
}

func newThrottle(interval time.Duration) *throttle {
	return &throttle{interval: interval, sweepAt: 4096, seen: make(map[int64]time.Time)}
}

func (t *throttle) admit(userID int64, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.seen[userID]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.seen[userID] = now
	if len(t.seen) > t.sweepAt {
		for id, at := range t.seen {
			if now.Sub(at) >= t.interval {
				delete(t.seen, id)
			}
		}
	}
	return true
}

func updateKind(u tele.Update) string {
	switch {
	case u.Callback != nil:
		return "callback"
	case u.Message != nil:
		return "message"
	}
	return "other"
}

// RateLimitMiddleware drops updates that arrive within Interval of the same
// user's previous admitted update, answering them with OnLimited.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	if opts.Interval <= 0 {
		return func(next tele.HandlerFunc) tele.HandlerFunc { return next }
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	exempt := make(map[string]bool, len(opts.Exclude))
	for _, k := range opts.Exclude {
		exempt[strings.ToLower(strings.TrimSpace(k))] = true
	}
	th := newThrottle(opts.Interval)

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			kind := updateKind(c.Update())
			if user == nil || exempt[kind] || th.admit(user.ID, now()) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), logger.CompTG, "update.rate_limited",
				slog.String("status", "rate_limited"),
				slog.String("kind", kind),
			)
			if opts.OnLimited != nil {
				return opts.OnLimited(c)
			}
			return nil
		}
	}
}
