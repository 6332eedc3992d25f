package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opencouncil/meeting-search/internal/core/domain"
)

// CacheRepository persists completed answers for link sharing. Entries are
// immutable once written and expired rows behave as not-found until the
// sweeper deletes them.
type CacheRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewCacheRepository(db *sql.DB) *CacheRepository {
	return &CacheRepository{db: db, now: time.Now}
}

// Put inserts if absent. A cache id collision reports as a temporary error
// so the caller can retry with a fresh id.
func (r *CacheRepository) Put(ctx context.Context, answer domain.CachedAnswer) error {
	citationsJSON, err := json.Marshal(answer.Citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
INSERT INTO answer_cache (cache_id, query, answer, citations, created_at, expires_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (cache_id) DO NOTHING
`,
		answer.CacheID, answer.Query, answer.Answer, citationsJSON, answer.CreatedAt, answer.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert cached answer: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("cached answer rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrTemporary, "cache id collision", fmt.Errorf("cache_id %s taken", answer.CacheID))
	}
	return nil
}

// Get returns the cached answer, treating expired rows as not-found.
func (r *CacheRepository) Get(ctx context.Context, cacheID string) (*domain.CachedAnswer, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT cache_id, query, answer, citations, created_at, expires_at
FROM answer_cache
WHERE cache_id = $1 AND expires_at > $2
`, cacheID, r.now().UTC())

	var answer domain.CachedAnswer
	var citationsRaw []byte
	err := row.Scan(&answer.CacheID, &answer.Query, &answer.Answer, &citationsRaw, &answer.CreatedAt, &answer.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "cached answer", fmt.Errorf("cache_id %s", cacheID))
		}
		return nil, fmt.Errorf("scan cached answer: %w", err)
	}

	if err := json.Unmarshal(citationsRaw, &answer.Citations); err != nil {
		return nil, fmt.Errorf("unmarshal citations: %w", err)
	}
	return &answer, nil
}

// DeleteExpired removes rows past their expiry. Used by the sweeper.
func (r *CacheRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM answer_cache WHERE expires_at <= $1
`, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired cache rows: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired cache rows affected: %w", err)
	}
	return deleted, nil
}
