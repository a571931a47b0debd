package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/cryptodash/internal/cache"
)

const cacheEntrySchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	stored_at  TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// CacheEntryRepo is a durable cache.Store on Postgres. The payload column
// holds the same {"data":...,"timestamp":...} envelope the other durable
// stores write.
type CacheEntryRepo struct {
	pool *pgxpool.Pool
}

var _ cache.Store = (*CacheEntryRepo)(nil)

func NewCacheEntryRepo(pool *pgxpool.Pool) *CacheEntryRepo {
	return &CacheEntryRepo{pool: pool}
}

func (r *CacheEntryRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, cacheEntrySchema); err != nil {
		return fmt.Errorf("create cache_entries: %w", err)
	}
	return nil
}

func (r *CacheEntryRepo) Name() string { return "postgres" }

func (r *CacheEntryRepo) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	var payload string
	err := r.pool.QueryRow(ctx,
		`SELECT payload FROM cache_entries WHERE key = $1`,
		key,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("select cache entry %s: %w", key, err)
	}

	e, err := cache.Decode([]byte(payload))
	if err != nil {
		return cache.Entry{}, false, err
	}
	return e, true, nil
}

func (r *CacheEntryRepo) Set(ctx context.Context, key string, e cache.Entry) error {
	payload, err := cache.Encode(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO cache_entries (key, payload, stored_at, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (key) DO UPDATE
		 SET payload = EXCLUDED.payload, stored_at = EXCLUDED.stored_at, updated_at = NOW()`,
		key, string(payload), e.StoredAt,
	)
	if err != nil {
		return fmt.Errorf("upsert cache entry %s: %w", key, err)
	}
	return nil
}

func (r *CacheEntryRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
