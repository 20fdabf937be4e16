package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
)

const (
	pgGetQuery = `UPDATE sessions SET expires_at = $2 WHERE id = $1 AND expires_at > $3 RETURNING data`

	pgLockQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`

	pgSelectQuery = `SELECT data FROM sessions WHERE id = $1 AND expires_at > $2`

	pgUpsertQuery = `INSERT INTO sessions (id, data, expires_at, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`

	pgDeleteQuery = `DELETE FROM sessions WHERE id = $1 AND expires_at > $2`

	pgAuthQuery = `SELECT data FROM sessions WHERE id = $1 AND expires_at > $2`

	pgSweepQuery = `DELETE FROM sessions WHERE expires_at <= $1`
)

// PostgresStore keeps sessions in the sessions table created by the migrations.
// Merge serializes writers per id with a transaction-scoped advisory lock.
type PostgresStore struct {
	db  *sqlx.DB
	ttl time.Duration
	now func() time.Time

	sweepMu   sync.Mutex
	lastSweep time.Time
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sqlx.DB, opts ...Option) *PostgresStore {
	o := buildOptions(opts)
	return &PostgresStore{db: db, ttl: o.ttl, now: o.now, lastSweep: o.now()}
}

// Get returns the live session and slides its expiry in the same statement.
func (p *PostgresStore) Get(ctx context.Context, id string) (*Session, bool, error) {
	if id == "" {
		return nil, false, ErrEmptyID
	}
	now := p.now()
	var data []byte
	err := p.db.QueryRowxContext(ctx, pgGetQuery, id, now.Add(p.ttl), now).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pg get session: %w", err)
	}
	sess, err := decode(id, data)
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// Merge reads and rewrites the row inside one transaction.
func (p *PostgresStore) Merge(ctx context.Context, id string, fn func(*Session)) (out *Session, err error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	p.maybeSweep(ctx)

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("pg begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, pgLockQuery, id); err != nil {
		return nil, fmt.Errorf("pg lock session: %w", err)
	}

	now := p.now()
	var base *Session
	var data []byte
	switch scanErr := tx.QueryRowxContext(ctx, pgSelectQuery, id, now).Scan(&data); {
	case errors.Is(scanErr, sql.ErrNoRows):
	case scanErr != nil:
		err = fmt.Errorf("pg select session: %w", scanErr)
		return nil, err
	default:
		if base, err = decode(id, data); err != nil {
			return nil, err
		}
	}

	sess := apply(id, base, fn, now)
	payload, err := encode(sess)
	if err != nil {
		return nil, err
	}
	// jsonb rejects the bytea encoding lib/pq uses for []byte.
	if _, err = tx.ExecContext(ctx, pgUpsertQuery, id, string(payload), now.Add(p.ttl), now); err != nil {
		return nil, fmt.Errorf("pg upsert session: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("pg commit: %w", err)
	}
	return sess, nil
}

// Delete removes the row.
func (p *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}
	res, err := p.db.ExecContext(ctx, pgDeleteQuery, id, p.now())
	if err != nil {
		return false, fmt.Errorf("pg delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pg delete session: %w", err)
	}
	return n > 0, nil
}

// IsAuthenticated reads without touching the expiry.
func (p *PostgresStore) IsAuthenticated(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}
	now := p.now()
	var data []byte
	err := p.db.QueryRowxContext(ctx, pgAuthQuery, id, now).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pg get session: %w", err)
	}
	sess, err := decode(id, data)
	if err != nil {
		return false, err
	}
	return sess.IsAuthenticatedAt(now), nil
}

// Ping checks database connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Sweep deletes expired rows and returns how many were removed.
func (p *PostgresStore) Sweep(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx, pgSweepQuery, p.now())
	if err != nil {
		return 0, fmt.Errorf("pg sweep sessions: %w", err)
	}
	return res.RowsAffected()
}

func (p *PostgresStore) maybeSweep(ctx context.Context) {
	p.sweepMu.Lock()
	now := p.now()
	due := now.Sub(p.lastSweep) >= 10*time.Minute
	if due {
		p.lastSweep = now
	}
	p.sweepMu.Unlock()
	if !due {
		return
	}
	n, err := p.Sweep(ctx)
	if err != nil {
		logger.Warn(ctx, logger.CompSession, "session.sweep",
			slog.String("status", "fail"),
			slog.String("backend", "postgres"),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.Debug(ctx, logger.CompSession, "session.sweep",
		slog.String("status", "ok"),
		slog.String("backend", "postgres"),
		slog.Int64("count", n),
	)
}
