package repositories

import (
	"context"
	"time"

	"github.com/ciro140903/airag-auth/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TokenRevocationRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRevocationRepository(db *database.DB) *TokenRevocationRepository {
	return &TokenRevocationRepository{pool: db.Pool}
}

// Revoke adds a token ID to the blacklist until the token's own expiry.
// Revoking an already-revoked token is a no-op, keeping revocation terminal.
func (r *TokenRevocationRepository) Revoke(ctx context.Context, jti string, expiresAt time.Time, reason string) error {
	query := `
		INSERT INTO revoked_tokens (jti, expires_at, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (jti) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query, jti, expiresAt, reason)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// IsRevoked checks whether a token ID is on the blacklist.
func (r *TokenRevocationRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti = $1)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, jti).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return exists, nil
}

// CleanupExpired removes blacklist entries whose tokens have expired on
// their own; those tokens already fail the expiry check.
func (r *TokenRevocationRepository) CleanupExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM revoked_tokens WHERE expires_at < $1`

	result, err := r.pool.Exec(ctx, query, time.Now())
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
