package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces rate-limit counters in a shared redis.
const keyPrefix = "ratelimit:"

// RedisStore implements Store on redis, sharing counters across gateway
// instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redis at url (redis:// form).
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

// Client exposes the underlying client for health checks.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) Get(ctx context.Context, key string) (int64, time.Time, error) {
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, keyPrefix+key)
	ttlCmd := pipe.PTTL(ctx, keyPrefix+key)
	if _, err := pipe.Exec(ctx); err != nil {
		if err == redis.Nil {
			return 0, time.Time{}, nil
		}
		return 0, time.Time{}, fmt.Errorf("redis get: %w", err)
	}

	count, err := getCmd.Int64()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis get: %w", err)
	}
	ttl := ttlCmd.Val()
	if ttl < 0 {
		return count, time.Time{}, nil
	}
	return count, time.Now().Add(ttl), nil
}

func (s *RedisStore) Increment(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	pipe := s.client.Pipeline()
	incrCmd := pipe.Incr(ctx, keyPrefix+key)
	// NX: only stamp the TTL when the key was just created, so the window
	// keeps its original start.
	pipe.ExpireNX(ctx, keyPrefix+key, expiration)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis increment: %w", err)
	}
	return incrCmd.Val(), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis reset: %w", err)
	}
	return nil
}

func (s *RedisStore) ResetAll(ctx context.Context, pattern string) error {
	iter := s.client.Scan(ctx, 0, keyPrefix+pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis reset all: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis reset all: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
