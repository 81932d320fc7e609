package cache

import (
	"context"
	"time"
)

// Cache is a key/value store with per-entry expiry.
//
// Get treats expired and absent entries the same way: ok is false. A present
// entry may hold an empty value; callers use ok, not the value, to tell a
// cached empty result from a miss.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Entry is one cached value together with its expiry.
// A zero ExpiresAt never expires.
type Entry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether e is past its expiry at now.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// expiry returns the expiry time for a value written at now with ttl.
func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
