package state

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	sess      *Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Expired entries are dropped lazily
// on access and by an opportunistic sweep during Merge.
type MemoryStore struct {
	mu        sync.Mutex
	items     map[string]memoryEntry
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryStore constructs an in-memory Store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		items:     make(map[string]memoryEntry),
		ttl:       o.ttl,
		now:       o.now,
		lastSweep: o.now(),
	}
}

func (m *MemoryStore) live(id string, now time.Time) (memoryEntry, bool) {
	e, ok := m.items[id]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.After(now) {
		delete(m.items, id)
		return memoryEntry{}, false
	}
	return e, true
}

// Get returns a copy of the live session and extends its TTL.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, bool, error) {
	if id == "" {
		return nil, false, ErrEmptyID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e, ok := m.live(id, now)
	if !ok {
		return nil, false, nil
	}
	e.expiresAt = now.Add(m.ttl)
	m.items[id] = e
	return e.sess.Clone(), true, nil
}

// Merge applies fn under the store lock.
func (m *MemoryStore) Merge(_ context.Context, id string, fn func(*Session)) (*Session, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweepLocked(now)

	var base *Session
	if e, ok := m.live(id, now); ok {
		base = e.sess.Clone()
	}
	sess := apply(id, base, fn, now)
	m.items[id] = memoryEntry{sess: sess, expiresAt: now.Add(m.ttl)}
	return sess.Clone(), nil
}

// Delete removes the session.
func (m *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live(id, m.now())
	delete(m.items, id)
	return ok, nil
}

// IsAuthenticated checks the credential without extending the TTL.
func (m *MemoryStore) IsAuthenticated(_ context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e, ok := m.live(id, now)
	return ok && e.sess.IsAuthenticatedAt(now), nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Len reports the number of stored entries, expired ones included until swept.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *MemoryStore) sweepLocked(now time.Time) {
	if now.Sub(m.lastSweep) < time.Minute {
		return
	}
	m.lastSweep = now
	for id, e := range m.items {
		if !e.expiresAt.After(now) {
			delete(m.items, id)
		}
	}
}
