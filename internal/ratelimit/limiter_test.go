package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	gerrors "github.com/floodgatehq/floodgate/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		authorization string
		cookie        string
		wantClass     Class
		wantValue     string
	}{
		{"cookie wins", "Bearer tok", "session=abc", ClassCookie, ""},
		{"bearer", "Bearer tok", "", ClassBearer, "tok"},
		{"basic", "Basic dXNlcjpwYXNz", "", ClassBasic, "dXNlcjpwYXNz"},
		{"none", "", "", ClassNone, ""},
		{"empty bearer falls through", "Bearer ", "", ClassNone, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, value := Classify(tt.authorization, tt.cookie)
			assert.Equal(t, tt.wantClass, class)
			assert.Equal(t, tt.wantValue, value)
		})
	}
}

func TestKey(t *testing.T) {
	t.Run("credentials are hashed", func(t *testing.T) {
		key := Key(ClassBearer, "secret-token", "")
		sum := sha256.Sum256([]byte("secret-token"))

		assert.Equal(t, "bearer:"+hex.EncodeToString(sum[:]), key)
		assert.NotContains(t, key, "secret-token")
	})

	t.Run("anonymous keys on client ip", func(t *testing.T) {
		assert.Equal(t, "none:10.1.2.3", Key(ClassNone, "", "10.1.2.3"))
	})
}

func TestLimiterAllow(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled limiter allows everything", func(t *testing.T) {
		l := NewLimiter(nil, 1, time.Minute, false)
		for i := 0; i < 10; i++ {
			d, err := l.Allow(ctx, "Bearer tok", "", "1.2.3.4")
			require.NoError(t, err)
			assert.True(t, d.Allowed)
			assert.True(t, d.Bypassed)
		}
	})

	t.Run("cookies bypass the limiter", func(t *testing.T) {
		store := NewMemoryStore(time.Minute)
		defer func() { _ = store.Close() }()
		l := NewLimiter(store, 1, time.Minute, true)

		for i := 0; i < 5; i++ {
			d, err := l.Allow(ctx, "", "session=abc", "1.2.3.4")
			require.NoError(t, err)
			assert.True(t, d.Allowed)
			assert.True(t, d.Bypassed)
		}
	})

	t.Run("limit plus one is denied", func(t *testing.T) {
		store := NewMemoryStore(time.Minute)
		defer func() { _ = store.Close() }()
		l := NewLimiter(store, 2, time.Minute, true)

		for i := 0; i < 2; i++ {
			d, err := l.Allow(ctx, "Bearer same-token", "", "1.2.3.4")
			require.NoError(t, err)
			assert.True(t, d.Allowed, "request %d", i+1)
		}

		d, err := l.Allow(ctx, "Bearer same-token", "", "1.2.3.4")
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, int64(0), d.Remaining)
		assert.LessOrEqual(t, d.RetryAfter(), int64(61))
		assert.Positive(t, d.RetryAfter())
	})

	t.Run("distinct tokens have distinct windows", func(t *testing.T) {
		store := NewMemoryStore(time.Minute)
		defer func() { _ = store.Close() }()
		l := NewLimiter(store, 1, time.Minute, true)

		d, err := l.Allow(ctx, "Bearer one", "", "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed)

		d, err = l.Allow(ctx, "Bearer two", "", "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})

	t.Run("store failure is service unavailable", func(t *testing.T) {
		l := NewLimiter(&failingStore{}, 1, time.Minute, true)
		_, err := l.Allow(ctx, "Bearer tok", "", "1.2.3.4")
		assert.True(t, gerrors.IsKind(err, gerrors.KindServiceUnavailable))
	})
}

type failingStore struct{}

func (f *failingStore) Get(ctx context.Context, key string) (int64, time.Time, error) {
	return 0, time.Time{}, context.DeadlineExceeded
}

func (f *failingStore) Increment(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	return 0, context.DeadlineExceeded
}

func (f *failingStore) Reset(ctx context.Context, key string) error    { return context.DeadlineExceeded }
func (f *failingStore) ResetAll(ctx context.Context, p string) error   { return context.DeadlineExceeded }
func (f *failingStore) Close() error                                   { return nil }
