// Package idempotency records keys that must be acted upon at most once.
package idempotency

import (
	"context"
	"sync"
	"time"
)

// Store claims keys. Claim returns true only for the first caller of a key
// until the key expires or is released.
type Store interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// MemoryStore keeps claimed keys in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if expires, ok := m.entries[key]; ok && now.Before(expires) {
		return false, nil
	}

	m.entries[key] = now.Add(ttl)

	if len(m.entries)%1024 == 0 {
		m.evict(now)
	}

	return true, nil
}

func (m *MemoryStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)

	return nil
}

func (m *MemoryStore) evict(now time.Time) {
	for key, expires := range m.entries {
		if !now.Before(expires) {
			delete(m.entries, key)
		}
	}
}

// Once runs fn only if key has not been claimed yet and reports whether it
// ran. A failing fn releases the key so a retry can run it again.
func Once(ctx context.Context, store Store, key string, ttl time.Duration, fn func() error) (bool, error) {
	claimed, err := store.Claim(ctx, key, ttl)
	if err != nil {
		return false, err
	}

	if !claimed {
		return false, nil
	}

	err = fn()
	if err != nil {
		_ = store.Release(context.WithoutCancel(ctx), key)

		return true, err
	}

	return true, nil
}
