package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/ciro140903/airag-auth/internal/models"
	pkglogger "github.com/ciro140903/airag-auth/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc               func(ctx context.Context, id string) (*models.User, error)
	GetByIdentifierFunc       func(ctx context.Context, identifier string) (*models.User, error)
	ListFunc                  func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CountFunc                 func(ctx context.Context) (int, error)
	CreateFunc                func(ctx context.Context, user *models.User) (*models.User, error)
	RecordFailedLoginFunc     func(ctx context.Context, id string, maxAttempts int, lockout time.Duration) (int, *time.Time, error)
	RecordSuccessfulLoginFunc func(ctx context.Context, id string) error
	UpdatePasswordFunc        func(ctx context.Context, id, passwordHash string) error
	SetActiveFunc             func(ctx context.Context, id string, active bool) error
	SetRoleFunc               func(ctx context.Context, id, role string) error
	SetVerifiedFunc           func(ctx context.Context, id string, verified bool) error
	UnlockFunc                func(ctx context.Context, id string) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	if m.GetByIdentifierFunc != nil {
		return m.GetByIdentifierFunc(ctx, identifier)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

func (m *MockUserRepository) Count(ctx context.Context) (int, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}
	return 0, nil
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) RecordFailedLogin(ctx context.Context, id string, maxAttempts int, lockout time.Duration) (int, *time.Time, error) {
	if m.RecordFailedLoginFunc != nil {
		return m.RecordFailedLoginFunc(ctx, id, maxAttempts, lockout)
	}
	return 1, nil, nil
}

func (m *MockUserRepository) RecordSuccessfulLogin(ctx context.Context, id string) error {
	if m.RecordSuccessfulLoginFunc != nil {
		return m.RecordSuccessfulLoginFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockUserRepository) SetActive(ctx context.Context, id string, active bool) error {
	if m.SetActiveFunc != nil {
		return m.SetActiveFunc(ctx, id, active)
	}
	return nil
}

func (m *MockUserRepository) SetRole(ctx context.Context, id, role string) error {
	if m.SetRoleFunc != nil {
		return m.SetRoleFunc(ctx, id, role)
	}
	return nil
}

func (m *MockUserRepository) SetVerified(ctx context.Context, id string, verified bool) error {
	if m.SetVerifiedFunc != nil {
		return m.SetVerifiedFunc(ctx, id, verified)
	}
	return nil
}

func (m *MockUserRepository) Unlock(ctx context.Context, id string) error {
	if m.UnlockFunc != nil {
		return m.UnlockFunc(ctx, id)
	}
	return nil
}

// MockTokenManager implements TokenManager for testing
type MockTokenManager struct {
	IssueFunc  func(user *models.User, kind string, ttl time.Duration) (string, *models.TokenClaims, error)
	VerifyFunc func(ctx context.Context, tokenString, expectedKind string) (*models.TokenClaims, error)
	RevokeFunc func(ctx context.Context, tokenString, reason string) error
}

func (m *MockTokenManager) Issue(user *models.User, kind string, ttl time.Duration) (string, *models.TokenClaims, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(user, kind, ttl)
	}
	return kind + "_token_" + user.ID, NewTokenClaims(user.ID, kind, ttl), nil
}

func (m *MockTokenManager) Verify(ctx context.Context, tokenString, expectedKind string) (*models.TokenClaims, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, tokenString, expectedKind)
	}
	return nil, models.ErrTokenInvalid
}

func (m *MockTokenManager) Revoke(ctx context.Context, tokenString, reason string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, tokenString, reason)
	}
	return nil
}

// MockMFAVerifier implements MFAVerifier for testing
type MockMFAVerifier struct {
	EnabledFunc         func(ctx context.Context, userID string) (bool, error)
	VerifyLoginCodeFunc func(ctx context.Context, userID, code string) error
}

func (m *MockMFAVerifier) Enabled(ctx context.Context, userID string) (bool, error) {
	if m.EnabledFunc != nil {
		return m.EnabledFunc(ctx, userID)
	}
	return false, nil
}

func (m *MockMFAVerifier) VerifyLoginCode(ctx context.Context, userID, code string) error {
	if m.VerifyLoginCodeFunc != nil {
		return m.VerifyLoginCodeFunc(ctx, userID, code)
	}
	return models.ErrInvalidCredentials
}

// MockRateLimiter implements LoginRateLimiter for testing
type MockRateLimiter struct {
	CheckLoginRateFunc func(ctx context.Context, ipAddress string) error
}

func (m *MockRateLimiter) CheckLoginRate(ctx context.Context, ipAddress string) error {
	if m.CheckLoginRateFunc != nil {
		return m.CheckLoginRateFunc(ctx, ipAddress)
	}
	return nil
}

// MockTimingWaiter is a no-delay TimingWaiter so tests run fast
type MockTimingWaiter struct{}

func (m *MockTimingWaiter) WaitOnFailure(success bool) {}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendPasswordResetEmailFunc func(ctx context.Context, email, token string, expiresAt time.Time) error
	SentTokens                 []string
}

func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	if m.SendPasswordResetEmailFunc != nil {
		return m.SendPasswordResetEmailFunc(ctx, email, token, expiresAt)
	}
	m.SentTokens = append(m.SentTokens, token)
	return nil
}

// MockAuditRepository implements AuditRepository for testing
type MockAuditRepository struct {
	CreateFunc      func(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error)
	ListByActorFunc func(ctx context.Context, actorID string, limit int, offset int) ([]*models.SecurityEvent, error)
	CountByActorFunc func(ctx context.Context, actorID string) (int64, error)
	ListFailuresFunc func(ctx context.Context, limit int, offset int) ([]*models.SecurityEvent, error)
}

func (m *MockAuditRepository) Create(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, event)
	}
	return event, nil
}

func (m *MockAuditRepository) ListByActor(ctx context.Context, actorID string, limit int, offset int) ([]*models.SecurityEvent, error) {
	if m.ListByActorFunc != nil {
		return m.ListByActorFunc(ctx, actorID, limit, offset)
	}
	return []*models.SecurityEvent{}, nil
}

func (m *MockAuditRepository) CountByActor(ctx context.Context, actorID string) (int64, error) {
	if m.CountByActorFunc != nil {
		return m.CountByActorFunc(ctx, actorID)
	}
	return 0, nil
}

func (m *MockAuditRepository) ListFailures(ctx context.Context, limit int, offset int) ([]*models.SecurityEvent, error) {
	if m.ListFailuresFunc != nil {
		return m.ListFailuresFunc(ctx, limit, offset)
	}
	return []*models.SecurityEvent{}, nil
}

// MockMFAConfigRepository implements repositories.MFAConfigRepository for testing
type MockMFAConfigRepository struct {
	GetFunc               func(ctx context.Context, userID string) (*models.MFAConfig, error)
	StartEnrollmentFunc   func(ctx context.Context, config *models.MFAConfig) error
	EnableFunc            func(ctx context.Context, userID string, codes []models.BackupCodeEntry) error
	ClearFunc             func(ctx context.Context, userID string) error
	UpdateLastUsedFunc    func(ctx context.Context, userID string, at time.Time) error
	UpdateBackupCodesFunc func(ctx context.Context, userID string, codes []models.BackupCodeEntry) error
}

func (m *MockMFAConfigRepository) Get(ctx context.Context, userID string) (*models.MFAConfig, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockMFAConfigRepository) StartEnrollment(ctx context.Context, config *models.MFAConfig) error {
	if m.StartEnrollmentFunc != nil {
		return m.StartEnrollmentFunc(ctx, config)
	}
	return nil
}

func (m *MockMFAConfigRepository) Enable(ctx context.Context, userID string, codes []models.BackupCodeEntry) error {
	if m.EnableFunc != nil {
		return m.EnableFunc(ctx, userID, codes)
	}
	return nil
}

func (m *MockMFAConfigRepository) Clear(ctx context.Context, userID string) error {
	if m.ClearFunc != nil {
		return m.ClearFunc(ctx, userID)
	}
	return nil
}

func (m *MockMFAConfigRepository) UpdateLastUsed(ctx context.Context, userID string, at time.Time) error {
	if m.UpdateLastUsedFunc != nil {
		return m.UpdateLastUsedFunc(ctx, userID, at)
	}
	return nil
}

func (m *MockMFAConfigRepository) UpdateBackupCodes(ctx context.Context, userID string, codes []models.BackupCodeEntry) error {
	if m.UpdateBackupCodesFunc != nil {
		return m.UpdateBackupCodesFunc(ctx, userID, codes)
	}
	return nil
}

// MockRateLimitCounterRepository implements RateLimitCounterRepository for testing
type MockRateLimitCounterRepository struct {
	IncrementFunc func(ctx context.Context, key string, window time.Duration) (int, time.Time, error)
	ResetFunc     func(ctx context.Context, key string) error
}

func (m *MockRateLimitCounterRepository) Increment(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	if m.IncrementFunc != nil {
		return m.IncrementFunc(ctx, key, window)
	}
	return 1, time.Now().Add(window), nil
}

func (m *MockRateLimitCounterRepository) Reset(ctx context.Context, key string) error {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, key)
	}
	return nil
}

// NewTestUser builds an active, verified user
func NewTestUser(id, username, email string) *models.User {
	now := time.Now()
	return &models.User{
		ID:         id,
		Username:   username,
		Email:      email,
		Role:       "user",
		IsActive:   true,
		IsVerified: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewTestUserWithPassword builds a user with a precomputed password hash
func NewTestUserWithPassword(id, username, email, passwordHash string) *models.User {
	user := NewTestUser(id, username, email)
	user.PasswordHash = passwordHash
	return user
}

// NewTestUserLocked builds a user under an active lockout
func NewTestUserLocked(id, username, email string) *models.User {
	user := NewTestUser(id, username, email)
	lockedUntil := time.Now().Add(15 * time.Minute)
	user.LockedUntil = &lockedUntil
	user.FailedAttempts = 5
	return user
}

// NewTokenClaims builds valid claims for the given subject and kind
func NewTokenClaims(userID, kind string, ttl time.Duration) *models.TokenClaims {
	now := time.Now()
	return &models.TokenClaims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        "jti_" + userID + "_" + kind,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

// newTestAuditService builds an AuditService over a mock repository with
// logging discarded
func newTestAuditService(repo AuditRepository) *AuditService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuditService(repo, pkglogger.NewAuditLogger(logger), logger)
}

// discardLogger returns a logger whose output goes nowhere
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
