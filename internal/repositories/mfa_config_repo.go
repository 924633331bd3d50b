package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ciro140903/airag-auth/internal/database"
	"github.com/ciro140903/airag-auth/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MFAConfigRepository defines persistence for per-user TOTP enrollment state.
type MFAConfigRepository interface {
	Get(ctx context.Context, userID string) (*models.MFAConfig, error)
	StartEnrollment(ctx context.Context, config *models.MFAConfig) error
	Enable(ctx context.Context, userID string, codes []models.BackupCodeEntry) error
	Clear(ctx context.Context, userID string) error
	UpdateLastUsed(ctx context.Context, userID string, at time.Time) error
	UpdateBackupCodes(ctx context.Context, userID string, codes []models.BackupCodeEntry) error
}

type mfaConfigRepoImpl struct {
	db *pgxpool.Pool
}

func NewMFAConfigRepository(db *database.DB) MFAConfigRepository {
	return &mfaConfigRepoImpl{db: db.Pool}
}

// Get retrieves a user's MFA configuration
func (r *mfaConfigRepoImpl) Get(ctx context.Context, userID string) (*models.MFAConfig, error) {
	config := &models.MFAConfig{}
	var backupCodesJSON []byte

	query := `
		SELECT user_id, enabled, secret_encrypted, secret_nonce, backup_codes,
		       setup_completed, last_used, created_at, updated_at
		FROM mfa_configs
		WHERE user_id = $1
	`

	err := r.db.QueryRow(ctx, query, userID).Scan(
		&config.UserID,
		&config.Enabled,
		&config.SecretEncrypted,
		&config.SecretNonce,
		&backupCodesJSON,
		&config.SetupCompleted,
		&config.LastUsed,
		&config.CreatedAt,
		&config.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get MFA config: %w", err)
	}

	if err := json.Unmarshal(backupCodesJSON, &config.BackupCodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal backup codes: %w", err)
	}

	return config, nil
}

// StartEnrollment writes a fresh, not-yet-enabled enrollment. A previous
// pending enrollment for the same user is replaced wholesale; an enabled
// one must be disabled first, which the service layer enforces.
func (r *mfaConfigRepoImpl) StartEnrollment(ctx context.Context, config *models.MFAConfig) error {
	backupCodesJSON, err := json.Marshal([]models.BackupCodeEntry{})
	if err != nil {
		return fmt.Errorf("failed to marshal backup codes: %w", err)
	}

	query := `
		INSERT INTO mfa_configs (user_id, enabled, secret_encrypted, secret_nonce, backup_codes, setup_completed)
		VALUES ($1, FALSE, $2, $3, $4, FALSE)
		ON CONFLICT (user_id) DO UPDATE
		SET enabled = FALSE, secret_encrypted = $2, secret_nonce = $3,
		    backup_codes = $4, setup_completed = FALSE, last_used = NULL, updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		config.UserID,
		config.SecretEncrypted,
		config.SecretNonce,
		backupCodesJSON,
	).Scan(&config.CreatedAt, &config.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to start MFA enrollment: %w", err)
	}

	return nil
}

// Enable flips a pending enrollment to active and stores its backup codes.
func (r *mfaConfigRepoImpl) Enable(ctx context.Context, userID string, codes []models.BackupCodeEntry) error {
	backupCodesJSON, err := json.Marshal(codes)
	if err != nil {
		return fmt.Errorf("failed to marshal backup codes: %w", err)
	}

	query := `
		UPDATE mfa_configs
		SET enabled = TRUE, setup_completed = TRUE, backup_codes = $2, updated_at = NOW()
		WHERE user_id = $1
	`

	commandTag, err := r.db.Exec(ctx, query, userID, backupCodesJSON)
	if err != nil {
		return fmt.Errorf("failed to enable MFA: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// Clear removes a user's MFA configuration entirely.
func (r *mfaConfigRepoImpl) Clear(ctx context.Context, userID string) error {
	query := `DELETE FROM mfa_configs WHERE user_id = $1`

	commandTag, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to clear MFA config: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// UpdateLastUsed records the time of a successful TOTP verification.
func (r *mfaConfigRepoImpl) UpdateLastUsed(ctx context.Context, userID string, at time.Time) error {
	query := `UPDATE mfa_configs SET last_used = $2, updated_at = NOW() WHERE user_id = $1`

	commandTag, err := r.db.Exec(ctx, query, userID, at)
	if err != nil {
		return fmt.Errorf("failed to update last_used: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// UpdateBackupCodes replaces the stored backup-code set, used both for
// marking a code consumed and for regenerating the full set.
func (r *mfaConfigRepoImpl) UpdateBackupCodes(ctx context.Context, userID string, codes []models.BackupCodeEntry) error {
	backupCodesJSON, err := json.Marshal(codes)
	if err != nil {
		return fmt.Errorf("failed to marshal backup codes: %w", err)
	}

	query := `UPDATE mfa_configs SET backup_codes = $2, updated_at = NOW() WHERE user_id = $1`

	commandTag, err := r.db.Exec(ctx, query, userID, backupCodesJSON)
	if err != nil {
		return fmt.Errorf("failed to update backup codes: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
