package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
	"github.com/ritikbhatt20/copperx-telegram-bot/migrations"
)

// ErrDirty means an earlier migration failed halfway and needs a manual fix.
var ErrDirty = errors.New("database: schema is dirty")

// Migrate applies pending up migrations over a dedicated connection from db.
// An empty dir uses the schema embedded in the binary.
func Migrate(ctx context.Context, db *sqlx.DB, dir string) error {
	src := migrationSource(dir)
	files, err := fs.Glob(src, "*.up.sql")
	if err != nil {
		return fmt.Errorf("database: list migrations: %w", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("database: migration conn: %w", err)
	}
	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("database: migration driver: %w", err)
	}
	source, err := iofs.New(src, ".")
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("database: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = source.Close()
		_ = driver.Close()
		return fmt.Errorf("database: migrate init: %w", err)
	}
	defer func() {
		if err := errors.Join(m.Close()); err != nil {
			logger.Warn(ctx, logger.CompMigrate, "migrate.close_failed", slog.String("err", err.Error()))
		}
	}()

	from, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		from = 0
	case err != nil:
		return fmt.Errorf("database: read version: %w", err)
	case dirty:
		return fmt.Errorf("%w at version %d", ErrDirty, from)
	}

	start := time.Now()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error(ctx, logger.CompMigrate, "migrate.failed",
			slog.Uint64("from_ver", uint64(from)),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
		return fmt.Errorf("database: migrate up: %w", err)
	}
	to, _, _ := m.Version()

	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("source", sourceName(dir)),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Duration("duration", logger.Took(start)),
	}
	if applied := between(files, uint64(from), uint64(to)); len(applied) > 0 {
		preview, cut := logger.SummarizeStrings(applied, 6)
		attrs = append(attrs, slog.Int("applied", len(applied)), slog.String("files", preview))
		if cut {
			attrs = append(attrs, slog.Bool("files_truncated", true))
		}
	}
	logger.Info(ctx, logger.CompMigrate, "migrate.done", attrs...)
	return nil
}

func migrationSource(dir string) fs.FS {
	if strings.TrimSpace(dir) == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func sourceName(dir string) string {
	if strings.TrimSpace(dir) == "" {
		return "embedded"
	}
	return dir
}

// between returns the files whose numeric prefix lies in (from, to].
func between(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		prefix, _, _ := strings.Cut(f, "_")
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err == nil && v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
