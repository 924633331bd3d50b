package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ciro140903/airag-auth/internal/database"
	"github.com/ciro140903/airag-auth/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

const userColumns = `id, username, email, password_hash, role, is_active, is_verified,
	failed_attempts, locked_until, last_login, login_count, password_changed_at,
	created_at, updated_at`

// rowScanner interface for scanning user rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUserRow handles nullable fields and populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var lockedUntil, lastLogin, passwordChangedAt *time.Time

	err := scanner.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.Role, &user.IsActive, &user.IsVerified,
		&user.FailedAttempts, &lockedUntil, &lastLogin, &user.LoginCount,
		&passwordChangedAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	user.LockedUntil = lockedUntil
	user.LastLogin = lastLogin
	user.PasswordChangedAt = passwordChangedAt

	return &user, nil
}

// scanUserRows iterates through rows and scans each into User models
func scanUserRows(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)

	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

// GetByIdentifier resolves a user by username or email, case-insensitively.
func (r *UserRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = lower($1) OR email = lower($1)`

	return scanUserRow(r.pool.QueryRow(ctx, query, strings.TrimSpace(identifier)))
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	return scanUserRows(rows)
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Role == "" {
		user.Role = "user"
	}

	query := `
		INSERT INTO users (id, username, email, password_hash, role, is_active, is_verified, created_at, updated_at)
		VALUES ($1, lower($2), lower($3), $4, $5, $6, $7, $8, $9)
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash,
		user.Role, user.IsActive, user.IsVerified,
		user.CreatedAt, user.UpdatedAt,
	))
}

// RecordFailedLogin increments the failed-attempt counter and, when the
// post-increment count reaches maxAttempts, sets the lockout expiration.
// The increment and the threshold comparison happen in a single statement
// so concurrent failures cannot read a stale counter.
func (r *UserRepository) RecordFailedLogin(ctx context.Context, id string, maxAttempts int, lockout time.Duration) (int, *time.Time, error) {
	query := `
		UPDATE users
		SET failed_attempts = failed_attempts + 1,
		    locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN now() + $3 ELSE locked_until END,
		    updated_at = now()
		WHERE id = $1
		RETURNING failed_attempts, locked_until
	`

	var attempts int
	var lockedUntil *time.Time
	err := r.pool.QueryRow(ctx, query, id, maxAttempts, lockout).Scan(&attempts, &lockedUntil)
	if err != nil {
		return 0, nil, database.MapPostgresError(err)
	}

	return attempts, lockedUntil, nil
}

// RecordSuccessfulLogin clears the failure counter and lockout, stamps the
// login time and bumps the login counter.
func (r *UserRepository) RecordSuccessfulLogin(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET failed_attempts = 0, locked_until = NULL,
		    last_login = now(), login_count = login_count + 1, updated_at = now()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $2, password_changed_at = now(),
		    failed_attempts = 0, locked_until = NULL, updated_at = now()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, active)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *UserRepository) SetRole(ctx context.Context, id, role string) error {
	query := `UPDATE users SET role = $2, updated_at = now() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, role)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *UserRepository) SetVerified(ctx context.Context, id string, verified bool) error {
	query := `UPDATE users SET is_verified = $2, updated_at = now() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, verified)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// Unlock clears a lockout ahead of its expiration.
func (r *UserRepository) Unlock(ctx context.Context, id string) error {
	query := `UPDATE users SET failed_attempts = 0, locked_until = NULL, updated_at = now() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
