package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var (
	_ Store     = (*SQLStore)(nil)
	_ Estimator = (*SQLStore)(nil)
)

const sqlSchema = `
CREATE TABLE IF NOT EXISTS public.cache_entries (
    cache_key   TEXT PRIMARY KEY,
    cache_value TEXT NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// SQLStore keeps values in a Postgres table. A positive quota is enforced on
// write against the summed byte length of every row.
type SQLStore struct {
	conn  sqlx.SqlConn
	quota int64
}

// NewSQLStore wraps an existing connection. Call EnsureSchema once before use.
func NewSQLStore(conn sqlx.SqlConn, quota int64) *SQLStore {
	return &SQLStore{conn: conn, quota: quota}
}

// EnsureSchema creates the backing table when missing.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.conn.ExecCtx(ctx, sqlSchema); err != nil {
		return fmt.Errorf("kvstore: ensure schema: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.conn.QueryRowCtx(ctx, &value, `SELECT cache_value FROM public.cache_entries WHERE cache_key = $1`, key)
	switch {
	case errors.Is(err, sqlx.ErrNotFound):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("kvstore: sql get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	if s.quota > 0 {
		usage, err := s.usage(ctx)
		if err != nil {
			return err
		}
		var old int64
		if err := s.conn.QueryRowCtx(ctx, &old,
			`SELECT COALESCE(SUM(octet_length(cache_key) + octet_length(cache_value)), 0) FROM public.cache_entries WHERE cache_key = $1`,
			key); err != nil && !errors.Is(err, sqlx.ErrNotFound) {
			return fmt.Errorf("kvstore: sql size %s: %w", key, err)
		}
		if usage-old+entrySize(key, value) > s.quota {
			return ErrQuotaExceeded
		}
	}
	const stmt = `
INSERT INTO public.cache_entries (cache_key, cache_value, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (cache_key) DO UPDATE SET
    cache_value = EXCLUDED.cache_value,
    updated_at = NOW();`
	if _, err := s.conn.ExecCtx(ctx, stmt, key, value); err != nil {
		return fmt.Errorf("kvstore: sql set %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Remove(ctx context.Context, key string) error {
	if _, err := s.conn.ExecCtx(ctx, `DELETE FROM public.cache_entries WHERE cache_key = $1`, key); err != nil {
		return fmt.Errorf("kvstore: sql delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := s.conn.QueryRowsCtx(ctx, &keys, `SELECT cache_key FROM public.cache_entries ORDER BY cache_key`); err != nil {
		return nil, fmt.Errorf("kvstore: sql keys: %w", err)
	}
	return keys, nil
}

func (s *SQLStore) Estimate(ctx context.Context) (Estimate, error) {
	usage, err := s.usage(ctx)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{Usage: usage, Quota: s.quota}, nil
}

func (s *SQLStore) usage(ctx context.Context) (int64, error) {
	var usage int64
	if err := s.conn.QueryRowCtx(ctx, &usage,
		`SELECT COALESCE(SUM(octet_length(cache_key) + octet_length(cache_value)), 0) FROM public.cache_entries`); err != nil {
		return 0, fmt.Errorf("kvstore: sql usage: %w", err)
	}
	return usage, nil
}
