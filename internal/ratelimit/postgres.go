package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a postgres table, for deployments that
// already run postgres and do not want a redis.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS rate_limits (
	key        TEXT PRIMARY KEY,
	count      BIGINT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
)`

// NewPostgresStore connects to postgres at dsn and ensures the counter table
// exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure rate_limits table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (int64, time.Time, error) {
	var count int64
	var expiresAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT count, expires_at FROM rate_limits WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&count, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, time.Time{}, nil
		}
		return 0, time.Time{}, fmt.Errorf("postgres get: %w", err)
	}
	return count, expiresAt, nil
}

func (s *PostgresStore) Increment(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	// An expired row restarts the window; a live row keeps its expiry.
	var count int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rate_limits (key, count, expires_at)
		VALUES ($1, 1, now() + make_interval(secs => $2))
		ON CONFLICT (key) DO UPDATE SET
			count = CASE WHEN rate_limits.expires_at <= now() THEN 1 ELSE rate_limits.count + 1 END,
			expires_at = CASE WHEN rate_limits.expires_at <= now() THEN now() + make_interval(secs => $2) ELSE rate_limits.expires_at END
		RETURNING count`,
		key, expiration.Seconds(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres increment: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Reset(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM rate_limits WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) ResetAll(ctx context.Context, pattern string) error {
	// Glob to SQL LIKE: * matches any run, ? a single character.
	like := ""
	for _, r := range pattern {
		switch r {
		case '*':
			like += "%"
		case '?':
			like += "_"
		case '%', '_', '\\':
			like += `\` + string(r)
		default:
			like += string(r)
		}
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM rate_limits WHERE key LIKE $1`, like); err != nil {
		return fmt.Errorf("postgres reset all: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
