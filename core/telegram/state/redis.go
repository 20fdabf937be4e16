package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisMergeAttempts = 8

// RedisStore keeps one JSON document per session under prefix+id with a native TTL.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore wraps an existing client. The caller owns the client lifecycle.
func NewRedisStore(rdb redis.UniversalClient, prefix string, opts ...Option) *RedisStore {
	o := buildOptions(opts)
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: o.ttl, now: o.now}
}

func (r *RedisStore) key(id string) string { return r.prefix + id }

// Get reads the session with GETEX so every read also slides the TTL.
func (r *RedisStore) Get(ctx context.Context, id string) (*Session, bool, error) {
	if id == "" {
		return nil, false, ErrEmptyID
	}
	data, err := r.rdb.GetEx(ctx, r.key(id), r.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get session: %w", err)
	}
	sess, err := decode(id, data)
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// Merge runs an optimistic WATCH/MULTI transaction, retrying on conflicts.
func (r *RedisStore) Merge(ctx context.Context, id string, fn func(*Session)) (*Session, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	key := r.key(id)
	var out *Session
	txf := func(tx *redis.Tx) error {
		var base *Session
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if base, err = decode(id, data); err != nil {
				return err
			}
		}
		sess := apply(id, base, fn, r.now())
		payload, err := encode(sess)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, payload, r.ttl)
			return nil
		})
		if err == nil {
			out = sess
		}
		return err
	}

	for attempt := 0; attempt < redisMergeAttempts; attempt++ {
		err := r.rdb.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, fmt.Errorf("redis merge session: %w", err)
	}
	return nil, fmt.Errorf("redis merge session %s: too many concurrent writers", id)
}

// Delete removes the key.
func (r *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}
	n, err := r.rdb.Del(ctx, r.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis delete session: %w", err)
	}
	return n > 0, nil
}

// IsAuthenticated reads without touching the TTL.
func (r *RedisStore) IsAuthenticated(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}
	data, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get session: %w", err)
	}
	sess, err := decode(id, data)
	if err != nil {
		return false, err
	}
	return sess.IsAuthenticatedAt(r.now()), nil
}

// Ping checks the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
