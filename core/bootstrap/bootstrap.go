// Package bootstrap prepares the process infrastructure: logging and the session
// store backend selected in configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	coreconfig "github.com/ritikbhatt20/copperx-telegram-bot/core/config"
	coredatabase "github.com/ritikbhatt20/copperx-telegram-bot/core/database"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/state"
)

// Options control the bootstrap pipeline. Nil hooks use the real implementations.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error)
	// Migrate runs against the connected pool with database.migrations_dir.
	Migrate func(ctx context.Context, db *sqlx.DB, dir string) error
	// Redis builds the client for the redis backend.
	Redis func(coreconfig.RedisConfig) redis.UniversalClient
}

// Result exposes the infrastructure initialized by Run.
type Result struct {
	Store state.Store
	DB    *sqlx.DB
	Redis redis.UniversalClient
}

// Close releases the backend connections.
func (r *Result) Close() error {
	var errs []error
	if r.DB != nil {
		errs = append(errs, r.DB.Close())
	}
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	return errors.Join(errs...)
}

// Run initializes the logger and opens the session store.
func Run(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	storeOpts := []state.Option{state.WithTTL(cfg.Session.TTL)}
	res := &Result{}
	switch cfg.Session.Backend {
	case coreconfig.SessionBackendRedis:
		newRedis := opts.Redis
		if newRedis == nil {
			newRedis = func(rc coreconfig.RedisConfig) redis.UniversalClient {
				return redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
			}
		}
		res.Redis = newRedis(cfg.Redis)
		res.Store = state.NewRedisStore(res.Redis, cfg.Redis.KeyPrefix, storeOpts...)

	case coreconfig.SessionBackendPostgres:
		connect := opts.Connect
		if connect == nil {
			connect = func(ctx context.Context, dc coreconfig.DatabaseConfig) (*sqlx.DB, error) {
				return coredatabase.Connect(ctx, dc, coredatabase.ConnectOptions{})
			}
		}
		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.Migrate
		}
		db, err := connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database: %w", err)
		}
		if err := migrate(ctx, db, cfg.Database.MigrationsDir); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: migrations: %w", err)
		}
		res.DB = db
		res.Store = state.NewPostgresStore(db, storeOpts...)

	default:
		res.Store = state.NewMemoryStore(storeOpts...)
	}

	if err := res.Store.Ping(ctx); err != nil {
		_ = res.Close()
		return nil, fmt.Errorf("bootstrap: session store %s unreachable: %w", cfg.Session.Backend, err)
	}
	logger.Info(ctx, logger.CompSession, "store.ready",
		slog.String("backend", cfg.Session.Backend),
		slog.Duration("ttl", cfg.Session.TTL),
	)
	return res, nil
}
