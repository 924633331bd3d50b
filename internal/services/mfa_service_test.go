package services

import (
	"context"
	"testing"
	"time"

	"github.com/ciro140903/airag-auth/internal/auth"
	"github.com/ciro140903/airag-auth/internal/models"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestTOTPManager(t *testing.T) *auth.TOTPManager {
	t.Helper()
	tm, err := auth.NewTOTPManager([]byte("0123456789abcdef0123456789abcdef"), "AIRAGPortal")
	require.NoError(t, err)
	return tm
}

func newTestMFAService(t *testing.T, configs *MockMFAConfigRepository, users *MockUserRepository) *MFAService {
	t.Helper()
	if configs == nil {
		configs = &MockMFAConfigRepository{}
	}
	if users == nil {
		users = &MockUserRepository{}
	}
	return NewMFAService(
		configs,
		users,
		newTestTOTPManager(t),
		newTestAuditService(&MockAuditRepository{}),
		10,
		discardLogger(),
	)
}

// pendingConfig builds a not-yet-enabled enrollment whose ciphertext holds
// the given secret
func pendingConfig(t *testing.T, totpMgr *auth.TOTPManager, userID, secret string) *models.MFAConfig {
	t.Helper()
	encrypted, nonce, err := totpMgr.EncryptSecret(secret)
	require.NoError(t, err)
	return &models.MFAConfig{
		UserID:          userID,
		SecretEncrypted: encrypted,
		SecretNonce:     nonce,
	}
}

func enabledConfig(t *testing.T, totpMgr *auth.TOTPManager, userID, secret string) *models.MFAConfig {
	t.Helper()
	config := pendingConfig(t, totpMgr, userID, secret)
	config.Enabled = true
	config.SetupCompleted = true
	return config
}

func currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

func TestStartSetup_StoresOnlyCiphertext(t *testing.T) {
	user := NewTestUser("user-1", "alice", "alice@example.com")

	var stored *models.MFAConfig
	configs := &MockMFAConfigRepository{
		StartEnrollmentFunc: func(ctx context.Context, config *models.MFAConfig) error {
			stored = config
			return nil
		},
	}
	users := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) { return user, nil },
	}

	svc := newTestMFAService(t, configs, users)
	resp, err := svc.StartSetup(context.Background(), "user-1", testOrigin())
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Secret)
	assert.Contains(t, resp.OTPAuthURL, "otpauth://totp/")
	assert.NotEmpty(t, resp.QRCode)

	require.NotNil(t, stored)
	assert.NotEmpty(t, stored.SecretEncrypted)
	assert.NotContains(t, string(stored.SecretEncrypted), resp.Secret)
	assert.False(t, stored.Enabled)
}

func TestStartSetup_AlreadyEnabled(t *testing.T) {
	totpMgr := newTestTOTPManager(t)
	user := NewTestUser("user-1", "alice", "alice@example.com")

	configs := &MockMFAConfigRepository{
		GetFunc: func(ctx context.Context, userID string) (*models.MFAConfig, error) {
			return enabledConfig(t, totpMgr, userID, "JBSWY3DPEHPK3PXP"), nil
		},
	}
	users := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) { return user, nil },
	}

	svc := newTestMFAService(t, configs, users)
	_, err := svc.StartSetup(context.Background(), "user-1", testOrigin())
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestConfirmSetup_EnablesAndReturnsBackupCodes(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	totpMgr := newTestTOTPManager(t)

	var enabledCodes []models.BackupCodeEntry
	configs := &MockMFAConfigRepository{
		GetFunc: func(ctx context.Context, userID string) (*models.MFAConfig, error) {
			return pendingConfig(t, totpMgr, userID, secret), nil
		},
		EnableFunc: func(ctx context.Context, userID string, codes []models.BackupCodeEntry) error {
			enabledCodes = codes
			return nil
		},
	}

	svc := NewMFAService(configs, &MockUserRepository{}, totpMgr, newTestAuditService(&MockAuditRepository{}), 10, discardLogger())

	backupCodes, err := svc.ConfirmSetup(context.Background(), "user-1", currentCode(t, secret), testOrigin())
	require.NoError(t, err)
	require.Len(t, backupCodes, 10)
	require.Len(t, enabledCodes, 10)

	// Stored entries are bcrypt hashes of the returned plaintext codes
	for i, code := range backupCodes {
		assert.NotEqual(t, code, enabledCodes[i].CodeHash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(enabledCodes[i].CodeHash), []byte(code)))
	}
}

func TestConfirmSetup_WrongCode(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	totpMgr := newTestTOTPManager(t)

	configs := &MockMFAConfigRepository{
		GetFunc: func(ctx context.Context, userID string) (*models.MFAConfig, error) {
			return pendingConfig(t, totpMgr, userID, secret), nil
		},
	}

	svc := NewMFAService(configs, &MockUserRepository{}, totpMgr, newTestAuditService(&MockAuditRepository{}), 10, discardLogger())

	_, err := svc.ConfirmSetup(context.Background(), "user-1", "000000", testOrigin())
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestConfirmSetup_NothingPending(t *testing.T) {
	svc := newTestMFAService(t, nil, nil)

	_, err := svc.ConfirmSetup(context.Background(), "user-1", "123456", testOrigin())
	assert.ErrorIs(t, err, models.ErrMFANotPending)
}

func TestVerifyLoginCode_TOTP(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	totpMgr := newTestTOTPManager(t)

	lastUsedUpdated := false
	configs := &MockMFAConfigRepository{
		GetFunc: func(ctx context.Context, userID string) (*models.MFAConfig, error) {
			return enabledConfig(t, totpMgr, userID, secret), nil
		},
		UpdateLastUsedFunc: func(ctx context.Context, userID string, at time.Time) error {
			lastUsedUpdated = true
			return nil
		},
	}

	svc := NewMFAService(configs, &MockUserRepository{}, totpMgr, newTestAuditService(&MockAuditRepository{}), 10, discardLogger())

	err := svc.VerifyLoginCode(context.Background(), "user-1", currentCode(t, secret))
	require.NoError(t, err)
	assert.True(t, lastUsedUpdated)
}

func TestVerifyLoginCode_ReplayRejected(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	totpMgr := newTestTOTPManager(t)

	configs := &MockMFAConfigRepository{
		GetFunc: func(ctx context.Context, userID string) (*models.MFAConfig, error) {
			config := enabledConfig(t, totpMgr, userID, secret)
			justUsed := time.Now().Add(-time.Second)
			config.LastUsed = &justUsed
			return config, nil
		},
	}

	svc := NewMFAService(configs, &MockUserRepository{}, totpMgr, newTestAuditService(&MockAuditRepository{}), 10, discardLogger())

	err := svc.VerifyLoginCode(context.Background(), "user-1", currentCode(t, secret))
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestVerifyLoginCode_BackupCodeConsumedOnce(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	totpMgr := newTestTOTPManager(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("ABCD2345"), bcrypt.MinCost)
	require.NoError(t, err)

	config := enabledConfig(t, totpMgr, "user-1", secret)
	config.BackupCodes = []models.BackupCodeEntry{
		{CodeHash: string(hash), CreatedAt: time.Now()},
	}

	var savedCodes []models.BackupCodeEntry
	configs := &MockMFAConfigRepository{
		GetFunc: func(ctx context.Context, userID string) (*models.MFAConfig, error) {
			return config, nil
		},
		UpdateBackupCodesFunc: func(ctx context.Context, userID string, codes []models.BackupCodeEntry) error {
			savedCodes = codes
			return nil
		},
	}

	svc := NewMFAService(configs, &MockUserRepository{}, totpMgr, newTestAuditService(&MockAuditRepository{}), 10, discardLogger())

	require.NoError(t, svc.VerifyLoginCode(context.Background(), "user-1", "ABCD2345"))
	require.Len(t, savedCodes, 1)
	assert.NotNil(t, savedCodes[0].UsedAt)

	// Second use of the same code fails
	err = svc.VerifyLoginCode(context.Background(), "user-1", "ABCD2345")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestVerifyLoginCode_NotEnabled(t *testing.T) {
	svc := newTestMFAService(t, nil, nil)

	err := svc.VerifyLoginCode(context.Background(), "user-1", "123456")
	assert.ErrorIs(t, err, models.ErrMFANotEnabled)
}

func TestDisable_RequiresPasswordAndCode(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	totpMgr := newTestTOTPManager(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("Correct1Password"), bcrypt.MinCost)
	require.NoError(t, err)
	user := NewTestUserWithPassword("user-1", "alice", "alice@example.com", string(hash))

	cleared := false
	configs := &MockMFAConfigRepository{
		GetFunc: func(ctx context.Context, userID string) (*models.MFAConfig, error) {
			return enabledConfig(t, totpMgr, userID, secret), nil
		},
		ClearFunc: func(ctx context.Context, userID string) error {
			cleared = true
			return nil
		},
	}
	users := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) { return user, nil },
	}

	svc := NewMFAService(configs, users, totpMgr, newTestAuditService(&MockAuditRepository{}), 10, discardLogger())

	// Wrong password
	err = svc.Disable(context.Background(), "user-1", "wrong", currentCode(t, secret), testOrigin())
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.False(t, cleared)

	// Correct password + current code
	err = svc.Disable(context.Background(), "user-1", "Correct1Password", currentCode(t, secret), testOrigin())
	require.NoError(t, err)
	assert.True(t, cleared)
}

func TestStatus_CountsUnusedBackupCodes(t *testing.T) {
	totpMgr := newTestTOTPManager(t)
	usedAt := time.Now()

	config := enabledConfig(t, totpMgr, "user-1", "JBSWY3DPEHPK3PXP")
	config.BackupCodes = []models.BackupCodeEntry{
		{CodeHash: "h1"},
		{CodeHash: "h2", UsedAt: &usedAt},
		{CodeHash: "h3"},
	}

	configs := &MockMFAConfigRepository{
		GetFunc: func(ctx context.Context, userID string) (*models.MFAConfig, error) {
			return config, nil
		},
	}

	svc := NewMFAService(configs, &MockUserRepository{}, totpMgr, newTestAuditService(&MockAuditRepository{}), 10, discardLogger())

	status, err := svc.Status(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	assert.Equal(t, 2, status.BackupCodesRemaining)
}

func TestStatus_NoConfig(t *testing.T) {
	svc := newTestMFAService(t, nil, nil)

	status, err := svc.Status(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, status.Enabled)
	assert.False(t, status.SetupPending)
}
