package repositories

import (
	"context"
	"time"

	"github.com/ciro140903/airag-auth/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RateLimitRepository struct {
	pool *pgxpool.Pool
}

func NewRateLimitRepository(db *database.DB) *RateLimitRepository {
	return &RateLimitRepository{pool: db.Pool}
}

// Increment bumps the fixed-window counter for key and returns the
// post-increment count plus the window expiry. A counter whose window has
// lapsed is reset to 1 with a fresh expiry. The upsert does the read,
// reset decision and write in one statement so concurrent callers all see
// consistent counts.
func (r *RateLimitRepository) Increment(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	query := `
		INSERT INTO rate_limit_counters (key, count, expires_at)
		VALUES ($1, 1, now() + $2)
		ON CONFLICT (key) DO UPDATE
		SET count = CASE WHEN rate_limit_counters.expires_at <= now() THEN 1 ELSE rate_limit_counters.count + 1 END,
		    expires_at = CASE WHEN rate_limit_counters.expires_at <= now() THEN now() + $2 ELSE rate_limit_counters.expires_at END
		RETURNING count, expires_at
	`

	var count int
	var expiresAt time.Time
	err := r.pool.QueryRow(ctx, query, key, window).Scan(&count, &expiresAt)
	if err != nil {
		return 0, time.Time{}, database.MapPostgresError(err)
	}

	return count, expiresAt, nil
}

// Reset deletes the counter for key, reopening the window immediately.
func (r *RateLimitRepository) Reset(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM rate_limit_counters WHERE key = $1`, key)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// CleanupExpired drops counters whose windows have lapsed.
func (r *RateLimitRepository) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM rate_limit_counters WHERE expires_at < now()`)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
