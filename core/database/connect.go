// Package database opens the Postgres session database and keeps its schema current.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/config"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
)

// ConnectOptions bound how long Connect waits for the server to come up.
type ConnectOptions struct {
	Wait     time.Duration
	Interval time.Duration
}

func (o ConnectOptions) withDefaults() ConnectOptions {
	if o.Wait <= 0 {
		o.Wait = 30 * time.Second
	}
	if o.Interval <= 0 {
		o.Interval = 2 * time.Second
	}
	return o
}

// Connect dials Postgres, retrying until opts.Wait elapses, then sizes the pool.
func Connect(ctx context.Context, cfg config.DatabaseConfig, opts ConnectOptions) (*sqlx.DB, error) {
	opts = opts.withDefaults()
	start := time.Now()
	deadline := start.Add(opts.Wait)
	where := []slog.Attr{
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
	}

	for attempt := 1; ; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		db, err := sqlx.ConnectContext(dialCtx, "postgres", DSN(cfg))
		cancel()
		if err == nil {
			db.SetMaxOpenConns(cfg.MaxConnections)
			db.SetMaxIdleConns(cfg.MaxConnections)
			db.SetConnMaxIdleTime(5 * time.Minute)
			logger.Info(ctx, logger.CompDB, "db.connect", append(where,
				slog.String("status", "ok"),
				slog.Int("attempts", attempt),
				slog.Int("pool_open", cfg.MaxConnections),
				slog.Duration("duration", logger.Took(start)),
			)...)
			return db, nil
		}

		if time.Now().Add(opts.Interval).After(deadline) {
			logger.Error(ctx, logger.CompDB, "db.connect", append(where,
				slog.String("status", "fail"),
				slog.Int("attempts", attempt),
				slog.String("err", err.Error()),
			)...)
			return nil, fmt.Errorf("database: connect after %d attempts: %w", attempt, err)
		}
		logger.Debug(ctx, logger.CompDB, "db.connect", slog.String("status", "retry"), slog.Int("attempts", attempt), slog.String("err", err.Error()))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.Interval):
		}
	}
}
