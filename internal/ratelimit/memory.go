package ratelimit

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// maxMemoryKeys bounds the in-memory store; past it the least recently used
// window is evicted, which can only under-count.
const maxMemoryKeys = 100_000

type entry struct {
	mu        sync.Mutex
	count     int64
	expiresAt time.Time
}

// MemoryStore implements Store in process memory on an expiring LRU. It is
// the default for single-instance deployments; counters are per instance
// only.
type MemoryStore struct {
	mu     sync.Mutex
	lru    *expirable.LRU[string, *entry]
	window time.Duration
}

// NewMemoryStore creates an in-memory store. window is used as the eviction
// TTL backstop; per-entry expiry is tracked exactly.
func NewMemoryStore(window time.Duration) *MemoryStore {
	if window <= 0 {
		window = time.Hour
	}
	return &MemoryStore{
		lru:    expirable.NewLRU[string, *entry](maxMemoryKeys, nil, window),
		window: window,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (int64, time.Time, error) {
	e, ok := s.lru.Get(key)
	if !ok {
		return 0, time.Time{}, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if time.Now().After(e.expiresAt) {
		return 0, time.Time{}, nil
	}
	return e.count, e.expiresAt, nil
}

func (s *MemoryStore) Increment(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	s.mu.Lock()
	e, ok := s.lru.Get(key)
	if !ok {
		e = &entry{}
		s.lru.Add(key, e)
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	if e.count == 0 || now.After(e.expiresAt) {
		e.count = 1
		e.expiresAt = now.Add(expiration)
		return 1, nil
	}
	e.count++
	return e.count, nil
}

func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	s.lru.Remove(key)
	return nil
}

func (s *MemoryStore) ResetAll(ctx context.Context, pattern string) error {
	for _, key := range s.lru.Keys() {
		matched, err := filepath.Match(pattern, key)
		if err != nil {
			continue
		}
		if matched {
			s.lru.Remove(key)
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.lru.Purge()
	return nil
}
