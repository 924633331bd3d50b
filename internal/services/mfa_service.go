package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ciro140903/airag-auth/internal/auth"
	"github.com/ciro140903/airag-auth/internal/models"
	"github.com/ciro140903/airag-auth/internal/repositories"
	pkgauth "github.com/ciro140903/airag-auth/pkg/auth"
)

// MFASetupResponse is returned when enrollment starts. The shared secret and
// QR code are shown to the user exactly once.
type MFASetupResponse struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
	QRCode     string `json:"qr_code"`
}

// MFAStatusResponse describes a user's current MFA state
type MFAStatusResponse struct {
	Enabled              bool       `json:"enabled"`
	SetupPending         bool       `json:"setup_pending"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
	LastUsed             *time.Time `json:"last_used,omitempty"`
}

// MFAService handles TOTP enrollment and verification
type MFAService struct {
	configs         repositories.MFAConfigRepository
	users           UserRepository
	totp            *auth.TOTPManager
	audit           *AuditService
	backupCodeCount int
	logger          *slog.Logger
	now             func() time.Time
}

func NewMFAService(configs repositories.MFAConfigRepository, users UserRepository, totp *auth.TOTPManager, audit *AuditService, backupCodeCount int, logger *slog.Logger) *MFAService {
	return &MFAService{
		configs:         configs,
		users:           users,
		totp:            totp,
		audit:           audit,
		backupCodeCount: backupCodeCount,
		logger:          logger,
		now:             time.Now,
	}
}

// StartSetup begins TOTP enrollment. The plaintext secret is returned to the
// caller and only the ciphertext is stored. Starting over replaces any
// previous pending enrollment; an active enrollment must be disabled first.
func (s *MFAService) StartSetup(ctx context.Context, userID string, origin models.RequestOrigin) (*MFASetupResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user for MFA setup", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	config, err := s.configs.Get(ctx, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to get MFA config", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if config != nil && config.Enabled {
		return nil, models.ErrConflict
	}

	enrollment, err := s.totp.GenerateEnrollment(user.Email)
	if err != nil {
		s.logger.Error("failed to generate TOTP enrollment", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	newConfig := &models.MFAConfig{
		UserID:          userID,
		SecretEncrypted: enrollment.SecretEncrypted,
		SecretNonce:     enrollment.SecretNonce,
	}
	if err := s.configs.StartEnrollment(ctx, newConfig); err != nil {
		s.logger.Error("failed to store MFA enrollment", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.Success("mfa_setup_started", &userID, origin, nil)

	return &MFASetupResponse{
		Secret:     enrollment.Secret,
		OTPAuthURL: enrollment.OTPAuthURL,
		QRCode:     enrollment.QRCode,
	}, nil
}

// ConfirmSetup verifies a first code against the pending enrollment and,
// on success, activates MFA and returns the plaintext backup codes. They
// are shown exactly once; only hashes are stored.
func (s *MFAService) ConfirmSetup(ctx context.Context, userID, code string, origin models.RequestOrigin) ([]string, error) {
	config, err := s.configs.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrMFANotPending
		}
		s.logger.Error("failed to get MFA config", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !config.Pending() {
		return nil, models.ErrMFANotPending
	}

	secret, err := s.totp.DecryptSecret(config.SecretEncrypted, config.SecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !s.totp.ValidateCode(secret, code, nil) {
		s.audit.Failure("mfa_setup_failed", &userID, origin, map[string]string{"reason": "invalid_code"})
		return nil, models.ErrInvalidCredentials
	}

	codes, err := s.totp.GenerateBackupCodes(s.backupCodeCount)
	if err != nil {
		s.logger.Error("failed to generate backup codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	entries, err := hashBackupCodes(codes, s.now())
	if err != nil {
		s.logger.Error("failed to hash backup codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.configs.Enable(ctx, userID, entries); err != nil {
		s.logger.Error("failed to enable MFA", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.configs.UpdateLastUsed(ctx, userID, s.now()); err != nil {
		s.logger.Warn("failed to record TOTP use", slog.Any("error", err))
	}

	s.audit.Success("mfa_enabled", &userID, origin, nil)
	return codes, nil
}

// Disable removes MFA after re-verifying the user's password and a current
// TOTP or backup code.
func (s *MFAService) Disable(ctx context.Context, userID, password, code string, origin models.RequestOrigin) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to get user for MFA disable", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !pkgauth.VerifyPassword(password, user.PasswordHash) {
		s.audit.Failure("mfa_disable_failed", &userID, origin, map[string]string{"reason": "wrong_password"})
		return models.ErrInvalidCredentials
	}

	config, err := s.configs.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrMFANotEnabled
		}
		s.logger.Error("failed to get MFA config", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !config.Enabled {
		return models.ErrMFANotEnabled
	}

	if err := s.verifyAgainstConfig(ctx, config, code); err != nil {
		s.audit.Failure("mfa_disable_failed", &userID, origin, map[string]string{"reason": "invalid_code"})
		return err
	}

	if err := s.configs.Clear(ctx, userID); err != nil {
		s.logger.Error("failed to clear MFA config", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.Success("mfa_disabled", &userID, origin, nil)
	return nil
}

// Enabled reports whether a user has active MFA.
func (s *MFAService) Enabled(ctx context.Context, userID string) (bool, error) {
	config, err := s.configs.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return config.Enabled, nil
}

// VerifyLoginCode checks a TOTP or backup code during login.
func (s *MFAService) VerifyLoginCode(ctx context.Context, userID, code string) error {
	config, err := s.configs.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrMFANotEnabled
		}
		s.logger.Error("failed to get MFA config", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !config.Enabled {
		return models.ErrMFANotEnabled
	}

	return s.verifyAgainstConfig(ctx, config, code)
}

// RegenerateBackupCodes replaces the full backup-code set after verifying a
// current code. All previous codes stop working.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, userID, code string, origin models.RequestOrigin) ([]string, error) {
	if err := s.VerifyLoginCode(ctx, userID, code); err != nil {
		return nil, err
	}

	codes, err := s.totp.GenerateBackupCodes(s.backupCodeCount)
	if err != nil {
		s.logger.Error("failed to generate backup codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	entries, err := hashBackupCodes(codes, s.now())
	if err != nil {
		s.logger.Error("failed to hash backup codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.configs.UpdateBackupCodes(ctx, userID, entries); err != nil {
		s.logger.Error("failed to store backup codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.Success("mfa_backup_codes_regenerated", &userID, origin, nil)
	return codes, nil
}

// Status returns the user's MFA state.
func (s *MFAService) Status(ctx context.Context, userID string) (*MFAStatusResponse, error) {
	config, err := s.configs.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &MFAStatusResponse{}, nil
		}
		s.logger.Error("failed to get MFA config", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	remaining := 0
	for _, entry := range config.BackupCodes {
		if entry.UsedAt == nil {
			remaining++
		}
	}

	return &MFAStatusResponse{
		Enabled:              config.Enabled,
		SetupPending:         config.Pending(),
		BackupCodesRemaining: remaining,
		LastUsed:             config.LastUsed,
	}, nil
}

// verifyAgainstConfig accepts either a live TOTP code or an unused backup
// code. TOTP success advances last_used for the replay guard; a matched
// backup code is consumed permanently.
func (s *MFAService) verifyAgainstConfig(ctx context.Context, config *models.MFAConfig, code string) error {
	secret, err := s.totp.DecryptSecret(config.SecretEncrypted, config.SecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt TOTP secret", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if s.totp.ValidateCode(secret, code, config.LastUsed) {
		if err := s.configs.UpdateLastUsed(ctx, config.UserID, s.now()); err != nil {
			s.logger.Warn("failed to record TOTP use", slog.Any("error", err))
		}
		return nil
	}

	for i := range config.BackupCodes {
		entry := &config.BackupCodes[i]
		if entry.UsedAt != nil {
			continue
		}
		if pkgauth.VerifyPassword(code, entry.CodeHash) {
			usedAt := s.now()
			entry.UsedAt = &usedAt
			if err := s.configs.UpdateBackupCodes(ctx, config.UserID, config.BackupCodes); err != nil {
				s.logger.Error("failed to consume backup code", slog.Any("error", err))
				return models.ErrInternalServer
			}
			return nil
		}
	}

	return models.ErrInvalidCredentials
}

func hashBackupCodes(codes []string, createdAt time.Time) ([]models.BackupCodeEntry, error) {
	entries := make([]models.BackupCodeEntry, 0, len(codes))
	for _, code := range codes {
		hash, err := pkgauth.HashPassword(code)
		if err != nil {
			return nil, err
		}
		entries = append(entries, models.BackupCodeEntry{
			CodeHash:  hash,
			CreatedAt: createdAt,
		})
	}
	return entries, nil
}
