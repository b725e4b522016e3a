package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"healthdash/pkg/platform/sentinel"
	"healthdash/pkg/requestcontext"
)

const createMemoTable = `
CREATE TABLE IF NOT EXISTS upstream_memo (
	key        TEXT PRIMARY KEY,
	body       BYTEA NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore keeps memoized bodies across restarts. Rows older than the
// TTL are treated as missing and removed by Prune.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func NewPostgresStore(pool *pgxpool.Pool, ttl time.Duration) *PostgresStore {
	return &PostgresStore{pool: pool, ttl: ttl}
}

// EnsureSchema creates the memo table if needed.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createMemoTable); err != nil {
		return fmt.Errorf("create upstream_memo: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	cutoff := requestcontext.Now(ctx).Add(-s.ttl)
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM upstream_memo WHERE key = $1 AND fetched_at > $2`,
		key, cutoff,
	).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("postgres memo get: %w", err)
	}
	return body, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, body []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO upstream_memo (key, body, fetched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET body = EXCLUDED.body, fetched_at = EXCLUDED.fetched_at`,
		key, body, requestcontext.Now(ctx),
	)
	if err != nil {
		return fmt.Errorf("postgres memo set: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM upstream_memo WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres memo delete: %w", err)
	}
	return nil
}

// Prune deletes expired rows and returns how many were removed.
func (s *PostgresStore) Prune(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM upstream_memo WHERE fetched_at <= $1`,
		requestcontext.Now(ctx).Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("postgres memo prune: %w", err)
	}
	return tag.RowsAffected(), nil
}
