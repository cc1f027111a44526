package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	t.Run("allows requests under limit", func(t *testing.T) {
		result, err := Check(ctx, store, "check-under-limit", 10, time.Minute)
		require.NoError(t, err)

		assert.True(t, result.Allowed)
		assert.Equal(t, int64(10), result.Limit)
		assert.Equal(t, int64(9), result.Remaining)
		assert.False(t, result.ResetAt.IsZero())
	})

	t.Run("tracks remaining correctly", func(t *testing.T) {
		for i := 1; i <= 5; i++ {
			result, err := Check(ctx, store, "check-remaining", 10, time.Minute)
			require.NoError(t, err)

			assert.True(t, result.Allowed)
			assert.Equal(t, int64(10-i), result.Remaining)
		}
	})

	t.Run("denies requests past the limit", func(t *testing.T) {
		key := "check-at-limit"
		for i := 0; i < 5; i++ {
			_, err := Check(ctx, store, key, 5, time.Minute)
			require.NoError(t, err)
		}

		result, err := Check(ctx, store, key, 5, time.Minute)
		require.NoError(t, err)

		assert.False(t, result.Allowed)
		assert.Equal(t, int64(0), result.Remaining)
		assert.Equal(t, int64(5), result.Limit)
	})

	t.Run("remaining never goes negative", func(t *testing.T) {
		key := "check-not-negative"
		for i := 0; i < 15; i++ {
			result, err := Check(ctx, store, key, 10, time.Minute)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, result.Remaining, int64(0))
		}
	})

	t.Run("reset time is in the future", func(t *testing.T) {
		result, err := Check(ctx, store, "check-reset-time", 10, time.Minute)
		require.NoError(t, err)

		assert.True(t, result.ResetAt.After(time.Now()))
		expectedReset := time.Now().Add(time.Minute)
		assert.WithinDuration(t, expectedReset, result.ResetAt, 5*time.Second)
	})
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("expired windows restart", func(t *testing.T) {
		store := NewMemoryStore(time.Minute)
		defer func() { _ = store.Close() }()

		count, err := store.Increment(ctx, "short", 10*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		time.Sleep(20 * time.Millisecond)

		count, err = store.Increment(ctx, "short", 10*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count, "expired window restarts the counter")
	})

	t.Run("reset clears the counter", func(t *testing.T) {
		store := NewMemoryStore(time.Minute)
		defer func() { _ = store.Close() }()

		_, err := store.Increment(ctx, "reset-me", time.Minute)
		require.NoError(t, err)
		require.NoError(t, store.Reset(ctx, "reset-me"))

		count, _, err := store.Get(ctx, "reset-me")
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})

	t.Run("reset all by pattern", func(t *testing.T) {
		store := NewMemoryStore(time.Minute)
		defer func() { _ = store.Close() }()

		_, err := store.Increment(ctx, "bearer:abc", time.Minute)
		require.NoError(t, err)
		_, err = store.Increment(ctx, "none:10.0.0.1", time.Minute)
		require.NoError(t, err)

		require.NoError(t, store.ResetAll(ctx, "bearer:*"))

		count, _, err := store.Get(ctx, "bearer:abc")
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)

		count, _, err = store.Get(ctx, "none:10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestNewRedisStore(t *testing.T) {
	t.Run("returns error for invalid URL", func(t *testing.T) {
		store, err := NewRedisStore("invalid-url")
		assert.Error(t, err)
		assert.Nil(t, store)
	})

	t.Run("returns error for malformed URL", func(t *testing.T) {
		store, err := NewRedisStore("://missing-scheme")
		assert.Error(t, err)
		assert.Nil(t, store)
	})

	// Get/Increment/Reset need a live redis and are not exercised here.
}
