// Package ratelimit implements fixed-window per-credential throttling backed
// by a shared key/value store. Counters live in the store with a TTL equal to
// the window; memory, redis and postgres backends are provided.
package ratelimit

import (
	"context"
	"time"
)

// Store is the counter backend. Increment is atomic: when it creates a key it
// also sets the expiration, so one window spans exactly one TTL.
type Store interface {
	// Get retrieves the current count and window expiry for a key.
	// A missing or expired key reports zero and a zero time.
	Get(ctx context.Context, key string) (int64, time.Time, error)

	// Increment atomically increments the counter for a key, setting the
	// expiration when the key is created.
	Increment(ctx context.Context, key string, expiration time.Duration) (int64, error)

	// Reset resets the counter for a key.
	Reset(ctx context.Context, key string) error

	// ResetAll removes all counters matching a glob pattern.
	ResetAll(ctx context.Context, pattern string) error

	// Close releases the store's resources.
	Close() error
}

// Result reports one rate-limit decision.
type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// Check increments the counter for key and decides whether the request is
// within limit for the current window.
func Check(ctx context.Context, store Store, key string, limit int64, window time.Duration) (*Result, error) {
	count, err := store.Increment(ctx, key, window)
	if err != nil {
		return nil, err
	}
	_, resetAt, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if resetAt.IsZero() {
		resetAt = time.Now().Add(window)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return &Result{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
