package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Memory is a thread-safe in-process Cache.
// Expiry is checked on every read; Run reclaims expired entries in the background.
type Memory struct {
	mu   sync.RWMutex
	data map[string]*Entry
	now  func() time.Time // injectable for deterministic tests
}

// NewMemory creates an empty Memory cache.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]*Entry),
		now:  time.Now,
	}
}

// Get returns the live value for key.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[key]
	if !ok || e.Expired(m.now()) {
		return "", false, nil
	}
	return e.Value, true, nil
}

// Set stores or replaces the value for key.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = &Entry{
		Key:       key,
		Value:     value,
		ExpiresAt: expiry(m.now(), ttl),
	}
	return nil
}

// Invalidate removes key. Removing a missing key is not an error.
func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Count returns the number of entries currently held, including expired ones.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Purge removes entries that are expired at now and returns how many were removed.
func (m *Memory) Purge(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, e := range m.data {
		if e.Expired(now) {
			delete(m.data, k)
			removed++
		}
	}
	return removed
}

// Run purges expired entries every interval (minimum 1 second) until ctx is cancelled.
func (m *Memory) Run(ctx context.Context, interval time.Duration) {
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := m.Purge(now); n > 0 {
				slog.Debug("cache: purged expired entries", "count", n)
			}
		}
	}
}
