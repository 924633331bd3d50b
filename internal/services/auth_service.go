package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ciro140903/airag-auth/internal/config"
	"github.com/ciro140903/airag-auth/internal/models"
	pkgauth "github.com/ciro140903/airag-auth/pkg/auth"
)

// TokenManager defines the interface for session token operations
type TokenManager interface {
	Issue(user *models.User, kind string, ttl time.Duration) (string, *models.TokenClaims, error)
	Verify(ctx context.Context, tokenString, expectedKind string) (*models.TokenClaims, error)
	Revoke(ctx context.Context, tokenString, reason string) error
}

// MFAVerifier is the slice of MFAService the login flow needs
type MFAVerifier interface {
	Enabled(ctx context.Context, userID string) (bool, error)
	VerifyLoginCode(ctx context.Context, userID, code string) error
}

// LoginRateLimiter throttles login attempts per client IP
type LoginRateLimiter interface {
	CheckLoginRate(ctx context.Context, ipAddress string) error
}

// TimingWaiter pads failed attempts so response time does not leak whether
// an account exists
type TimingWaiter interface {
	WaitOnFailure(success bool)
}

// AuthService orchestrates login, registration, token refresh and password
// management
type AuthService struct {
	users     UserRepository
	tokens    TokenManager
	mfa       MFAVerifier
	rateLimit LoginRateLimiter
	timing    TimingWaiter
	email     EmailService
	audit     *AuditService
	config    config.AuthConfig
	logger    *slog.Logger
}

func NewAuthService(
	users UserRepository,
	tokens TokenManager,
	mfa MFAVerifier,
	rateLimit LoginRateLimiter,
	timing TimingWaiter,
	email EmailService,
	audit *AuditService,
	cfg config.AuthConfig,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		mfa:       mfa,
		rateLimit: rateLimit,
		timing:    timing,
		email:     email,
		audit:     audit,
		config:    cfg,
		logger:    logger,
	}
}

// UserResponse represents a user in HTTP responses
type UserResponse struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	Email      string  `json:"email"`
	Role       string  `json:"role"`
	IsActive   bool    `json:"is_active"`
	IsVerified bool    `json:"is_verified"`
	LastLogin  *string `json:"last_login,omitempty"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

// AuthResponse is the token payload returned by login, register and refresh
type AuthResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	User         *UserResponse `json:"user"`
}

// LoginRequest carries the credentials for a login attempt
type LoginRequest struct {
	Identifier string // Username or email
	Password   string
	MFACode    string
	RememberMe bool
}

// Login authenticates a user and returns a token pair.
//
// Failures deliberately collapse to ErrInvalidCredentials wherever revealing
// the real cause would tell an attacker whether the account exists. Lockout
// and rate-limit errors are the exception: the caller already proved they
// know a valid identifier, and the client needs the retry hint.
func (s *AuthService) Login(ctx context.Context, req LoginRequest, origin models.RequestOrigin) (*AuthResponse, error) {
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" || req.Password == "" {
		return nil, models.ErrInvalidCredentials
	}

	if err := s.rateLimit.CheckLoginRate(ctx, origin.IPAddress); err != nil {
		s.audit.Failure("login_failed:rate_limited", nil, origin, nil)
		return nil, err
	}

	user, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("login failed: invalid credentials")
			s.audit.Failure("login_failed:user_not_found", nil, origin, nil)
			s.timing.WaitOnFailure(false)
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to resolve login identifier", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !user.IsActive {
		s.audit.Failure("login_failed:account_disabled", &user.ID, origin, nil)
		return nil, models.ErrAccountDisabled
	}

	if user.IsLocked(time.Now()) {
		s.audit.Failure("login_failed:account_locked", &user.ID, origin, nil)
		return nil, &models.AccountLockedError{Until: *user.LockedUntil}
	}

	if !pkgauth.VerifyPassword(req.Password, user.PasswordHash) {
		return nil, s.handleFailedPassword(ctx, user, origin)
	}

	mfaEnabled, err := s.mfa.Enabled(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to check MFA state", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if mfaEnabled {
		if req.MFACode == "" {
			return nil, models.ErrMFARequired
		}
		if err := s.mfa.VerifyLoginCode(ctx, user.ID, req.MFACode); err != nil {
			if errors.Is(err, models.ErrInvalidCredentials) {
				// MFA failures do not feed the lockout counter: the
				// password was correct, so this is not a guessing attack
				// on the credential the counter protects.
				s.audit.Failure("login_failed:invalid_mfa_code", &user.ID, origin, nil)
				s.timing.WaitOnFailure(false)
				return nil, models.ErrInvalidCredentials
			}
			return nil, err
		}
	}

	if err := s.users.RecordSuccessfulLogin(ctx, user.ID); err != nil {
		s.logger.Error("failed to record successful login", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	response, err := s.issueTokenPair(user, req.RememberMe)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.audit.Success("login_success", &user.ID, origin, nil)

	return response, nil
}

// handleFailedPassword runs the counter increment. The response is a generic
// credential error even on the attempt that crosses the lockout threshold, so
// a guesser cannot tell a freshly locked account from a wrong password; the
// pre-verification lockout check reports the locked state on the next attempt.
func (s *AuthService) handleFailedPassword(ctx context.Context, user *models.User, origin models.RequestOrigin) error {
	attempts, lockedUntil, err := s.users.RecordFailedLogin(ctx, user.ID, s.config.MaxLoginAttempts, s.config.LockoutDuration)
	if err != nil {
		s.logger.Error("failed to record failed login", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("login failed: invalid credentials", slog.Int("failed_attempts", attempts))
	s.audit.Failure("login_failed:wrong_password", &user.ID, origin, map[string]string{
		"failed_attempts": strconv.Itoa(attempts),
	})
	if lockedUntil != nil {
		s.audit.Failure("account_locked", &user.ID, origin, nil)
	}
	s.timing.WaitOnFailure(false)

	return models.ErrInvalidCredentials
}

// RegisterRequest carries the fields for self-registration
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

// Register creates a new account and logs it straight in. Self-registered
// accounts always get the "user" role.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest, origin models.RequestOrigin) (*AuthResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if err := pkgauth.ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := pkgauth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         "user",
		IsActive:     true,
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.logger.Info("registration failed: identifier already in use")
			return nil, err
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user registered", slog.String("user_id", created.ID))
	s.audit.Success("user_registered", &created.ID, origin, nil)

	return s.issueTokenPair(created, false)
}

// Refresh redeems a refresh token for a new pair. Identity and role come
// from the live user record, never from the old token, so role changes and
// deactivations take effect at the next refresh. The old refresh token is
// revoked: each one is redeemable once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := s.tokens.Verify(ctx, refreshToken, models.TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTokenInvalid
		}
		s.logger.Error("failed to get user for refresh", slog.String("user_id", claims.Subject), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !user.IsActive {
		return nil, models.ErrAccountDisabled
	}

	if user.PasswordChangedAt != nil && claims.IssuedAt != nil &&
		claims.IssuedAt.Time.Before(*user.PasswordChangedAt) {
		s.logger.Info("refresh blocked: token issued before password change", slog.String("user_id", user.ID))
		return nil, models.ErrTokenInvalid
	}

	if err := s.tokens.Revoke(ctx, refreshToken, "rotated"); err != nil {
		s.logger.Error("failed to revoke rotated refresh token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	response, err := s.issueTokenPair(user, false)
	if err != nil {
		return nil, err
	}

	s.logger.Info("token refreshed", slog.String("user_id", user.ID))
	return response, nil
}

// Logout revokes the current access token and, when the client supplies its
// refresh token too, that one as well. An already-expired refresh token is
// not an error here.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string, origin models.RequestOrigin) error {
	claims, err := s.tokens.Verify(ctx, accessToken, models.TokenKindAccess)
	if err != nil {
		return err
	}

	if err := s.tokens.Revoke(ctx, accessToken, "logout"); err != nil {
		s.logger.Error("failed to revoke access token", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if refreshToken != "" {
		if err := s.tokens.Revoke(ctx, refreshToken, "logout"); err != nil && !errors.Is(err, models.ErrTokenInvalid) {
			s.logger.Error("failed to revoke refresh token", slog.Any("error", err))
			return models.ErrInternalServer
		}
	}

	s.logger.Info("user logged out", slog.String("user_id", claims.Subject))
	s.audit.Success("logout", &claims.Subject, origin, nil)
	return nil
}

// ChangePassword updates the password after re-verifying the current one.
// The password_changed_at stamp invalidates every refresh token issued
// before the change.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, origin models.RequestOrigin) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to get user for password change", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !pkgauth.VerifyPassword(currentPassword, user.PasswordHash) {
		s.audit.Failure("password_change_failed", &userID, origin, map[string]string{"reason": "wrong_password"})
		s.timing.WaitOnFailure(false)
		return models.ErrInvalidCredentials
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		s.logger.Error("failed to update password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.Success("password_changed", &userID, origin, nil)
	return nil
}

// RequestPasswordReset issues a reset token and mails it. The response is
// identical whether or not the identifier matched an account.
func (s *AuthService) RequestPasswordReset(ctx context.Context, identifier string, origin models.RequestOrigin) error {
	user, err := s.users.GetByIdentifier(ctx, strings.TrimSpace(identifier))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset requested for unknown identifier")
			return nil
		}
		s.logger.Error("failed to resolve reset identifier", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !user.IsActive {
		return nil
	}

	token, claims, err := s.tokens.Issue(user, models.TokenKindReset, s.config.ResetTokenTTL)
	if err != nil {
		s.logger.Error("failed to issue reset token", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.email.SendPasswordResetEmail(ctx, user.Email, token, claims.ExpiresAt.Time); err != nil {
		s.logger.Error("failed to send password reset email", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.Success("password_reset_requested", &user.ID, origin, nil)
	return nil
}

// ResetPassword redeems a reset token. The token is revoked before the
// password update so a concurrent second redemption fails.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string, origin models.RequestOrigin) error {
	claims, err := s.tokens.Verify(ctx, resetToken, models.TokenKindReset)
	if err != nil {
		return err
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	if err := s.tokens.Revoke(ctx, resetToken, "redeemed"); err != nil {
		s.logger.Error("failed to revoke reset token", slog.Any("error", err))
		return models.ErrInternalServer
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.users.UpdatePassword(ctx, claims.Subject, hash); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTokenInvalid
		}
		s.logger.Error("failed to update password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.Success("password_reset_completed", &claims.Subject, origin, nil)
	return nil
}

func (s *AuthService) issueTokenPair(user *models.User, rememberMe bool) (*AuthResponse, error) {
	accessTTL := s.config.AccessTokenTTL
	if rememberMe {
		accessTTL = s.config.RememberMeAccessTTL
	}

	accessToken, _, err := s.tokens.Issue(user, models.TokenKindAccess, accessTTL)
	if err != nil {
		s.logger.Error("failed to issue access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, _, err := s.tokens.Issue(user, models.TokenKindRefresh, s.config.RefreshTokenTTL)
	if err != nil {
		s.logger.Error("failed to issue refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(accessTTL.Seconds()),
		User:         userModelToResponse(user),
	}, nil
}

func userModelToResponse(user *models.User) *UserResponse {
	resp := &UserResponse{
		ID:         user.ID,
		Username:   user.Username,
		Email:      user.Email,
		Role:       user.Role,
		IsActive:   user.IsActive,
		IsVerified: user.IsVerified,
		CreatedAt:  user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  user.UpdatedAt.Format(time.RFC3339),
	}
	if user.LastLogin != nil {
		lastLogin := user.LastLogin.Format(time.RFC3339)
		resp.LastLogin = &lastLogin
	}
	return resp
}
