package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultTTL is the idle horizon after which sessions are reclaimed.
const DefaultTTL = 24 * time.Hour

// ErrEmptyID is returned when a store is addressed without a user identity.
var ErrEmptyID = errors.New("state: empty session id")

// Store persists sessions with a rolling TTL. Merge is atomic per id.
type Store interface {
	// Get returns the live session for id; found is false when absent or expired.
	Get(ctx context.Context, id string) (sess *Session, found bool, err error)
	// Merge loads the session (creating an empty one if absent), applies fn and persists it.
	Merge(ctx context.Context, id string, fn func(*Session)) (*Session, error)
	// Delete removes the session and reports whether a live one existed.
	Delete(ctx context.Context, id string) (bool, error)
	// IsAuthenticated reports whether id holds a usable, unexpired credential.
	IsAuthenticated(ctx context.Context, id string) (bool, error)
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
}

// Option tunes a store.
type Option func(*options)

type options struct {
	ttl time.Duration
	now func() time.Time
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock injects the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func encode(s *Session) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	return data, nil
}

func decode(id string, data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if s.ID == "" {
		s.ID = id
	}
	return &s, nil
}

// apply runs fn over base (or a fresh session) and finalizes the result.
func apply(id string, base *Session, fn func(*Session), now time.Time) *Session {
	sess := base
	if sess == nil {
		sess = New(id)
	}
	if fn != nil {
		fn(sess)
	}
	sess.finalize(id, now)
	return sess
}
