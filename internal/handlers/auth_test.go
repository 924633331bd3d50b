package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ciro140903/airag-auth/internal/models"
	"github.com/ciro140903/airag-auth/internal/services"
	pkghttp "github.com/ciro140903/airag-auth/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAuthService implements AuthServiceInterface with overridable funcs
type mockAuthService struct {
	LoginFunc                func(ctx context.Context, req services.LoginRequest, origin models.RequestOrigin) (*services.AuthResponse, error)
	RegisterFunc             func(ctx context.Context, req services.RegisterRequest, origin models.RequestOrigin) (*services.AuthResponse, error)
	RefreshFunc              func(ctx context.Context, refreshToken string) (*services.AuthResponse, error)
	LogoutFunc               func(ctx context.Context, accessToken, refreshToken string, origin models.RequestOrigin) error
	ChangePasswordFunc       func(ctx context.Context, userID, currentPassword, newPassword string, origin models.RequestOrigin) error
	RequestPasswordResetFunc func(ctx context.Context, identifier string, origin models.RequestOrigin) error
	ResetPasswordFunc        func(ctx context.Context, resetToken, newPassword string, origin models.RequestOrigin) error
}

func (m *mockAuthService) Login(ctx context.Context, req services.LoginRequest, origin models.RequestOrigin) (*services.AuthResponse, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, req, origin)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *mockAuthService) Register(ctx context.Context, req services.RegisterRequest, origin models.RequestOrigin) (*services.AuthResponse, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, req, origin)
	}
	return nil, models.ErrInternalServer
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (*services.AuthResponse, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	return nil, models.ErrTokenInvalid
}

func (m *mockAuthService) Logout(ctx context.Context, accessToken, refreshToken string, origin models.RequestOrigin) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, accessToken, refreshToken, origin)
	}
	return nil
}

func (m *mockAuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, origin models.RequestOrigin) error {
	if m.ChangePasswordFunc != nil {
		return m.ChangePasswordFunc(ctx, userID, currentPassword, newPassword, origin)
	}
	return nil
}

func (m *mockAuthService) RequestPasswordReset(ctx context.Context, identifier string, origin models.RequestOrigin) error {
	if m.RequestPasswordResetFunc != nil {
		return m.RequestPasswordResetFunc(ctx, identifier, origin)
	}
	return nil
}

func (m *mockAuthService) ResetPassword(ctx context.Context, resetToken, newPassword string, origin models.RequestOrigin) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, resetToken, newPassword, origin)
	}
	return nil
}

func newTestAuthHandler(svc *mockAuthService) *AuthHandler {
	return NewAuthHandler(svc, &pkghttp.IPConfig{})
}

func postJSON(t *testing.T, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.10:52100"
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestLoginHandler_Success(t *testing.T) {
	svc := &mockAuthService{
		LoginFunc: func(ctx context.Context, req services.LoginRequest, origin models.RequestOrigin) (*services.AuthResponse, error) {
			assert.Equal(t, "alice", req.Identifier)
			assert.Equal(t, "203.0.113.10", origin.IPAddress)
			return &services.AuthResponse{
				AccessToken:  "access",
				RefreshToken: "refresh",
				TokenType:    "bearer",
				ExpiresIn:    1800,
				User:         &services.UserResponse{ID: "user-1", Username: "alice"},
			}, nil
		},
	}

	rec := postJSON(t, newTestAuthHandler(svc).Login, "/auth/login",
		`{"identifier":"alice","password":"Correct1Password"}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp services.AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "access", resp.AccessToken)
	assert.Equal(t, "bearer", resp.TokenType)
}

func TestLoginHandler_InvalidBody(t *testing.T) {
	rec := postJSON(t, newTestAuthHandler(&mockAuthService{}).Login, "/auth/login", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginHandler_MissingFields(t *testing.T) {
	rec := postJSON(t, newTestAuthHandler(&mockAuthService{}).Login, "/auth/login",
		`{"identifier":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginHandler_InvalidCredentials(t *testing.T) {
	rec := postJSON(t, newTestAuthHandler(&mockAuthService{}).Login, "/auth/login",
		`{"identifier":"alice","password":"wrong"}`)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "unauthorized", resp.Error)
}

func TestLoginHandler_MFARequired(t *testing.T) {
	svc := &mockAuthService{
		LoginFunc: func(ctx context.Context, req services.LoginRequest, origin models.RequestOrigin) (*services.AuthResponse, error) {
			return nil, models.ErrMFARequired
		},
	}

	rec := postJSON(t, newTestAuthHandler(svc).Login, "/auth/login",
		`{"identifier":"alice","password":"Correct1Password"}`)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "mfa_required", resp.Error)
}

func TestLoginHandler_Locked(t *testing.T) {
	until := time.Now().Add(15 * time.Minute).UTC()
	svc := &mockAuthService{
		LoginFunc: func(ctx context.Context, req services.LoginRequest, origin models.RequestOrigin) (*services.AuthResponse, error) {
			return nil, &models.AccountLockedError{Until: until}
		},
	}

	rec := postJSON(t, newTestAuthHandler(svc).Login, "/auth/login",
		`{"identifier":"alice","password":"Correct1Password"}`)

	require.Equal(t, http.StatusLocked, rec.Code)

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "account_locked", resp.Error)
	assert.Equal(t, until.Format(time.RFC3339), resp.Details)
}

func TestLoginHandler_RateLimited(t *testing.T) {
	svc := &mockAuthService{
		LoginFunc: func(ctx context.Context, req services.LoginRequest, origin models.RequestOrigin) (*services.AuthResponse, error) {
			return nil, &models.RateLimitedError{RetryAfter: 30 * time.Second}
		},
	}

	rec := postJSON(t, newTestAuthHandler(svc).Login, "/auth/login",
		`{"identifier":"alice","password":"Correct1Password"}`)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
}

func TestRegisterHandler_Conflict(t *testing.T) {
	svc := &mockAuthService{
		RegisterFunc: func(ctx context.Context, req services.RegisterRequest, origin models.RequestOrigin) (*services.AuthResponse, error) {
			return nil, &models.ConflictError{Field: "username"}
		},
	}

	rec := postJSON(t, newTestAuthHandler(svc).Register, "/auth/register",
		`{"username":"alice","email":"alice@example.com","password":"Str0ngEnough"}`)

	require.Equal(t, http.StatusConflict, rec.Code)

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "username", resp.Details)
}

func TestRegisterHandler_Created(t *testing.T) {
	svc := &mockAuthService{
		RegisterFunc: func(ctx context.Context, req services.RegisterRequest, origin models.RequestOrigin) (*services.AuthResponse, error) {
			return &services.AuthResponse{
				AccessToken: "access",
				TokenType:   "bearer",
				User:        &services.UserResponse{Username: req.Username},
			}, nil
		},
	}

	rec := postJSON(t, newTestAuthHandler(svc).Register, "/auth/register",
		`{"username":"alice","email":"alice@example.com","password":"Str0ngEnough"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestForgotPasswordHandler_AlwaysAccepted(t *testing.T) {
	rec := postJSON(t, newTestAuthHandler(&mockAuthService{}).ForgotPassword, "/auth/forgot-password",
		`{"identifier":"ghost@example.com"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestResetPasswordHandler_InvalidToken(t *testing.T) {
	svc := &mockAuthService{
		ResetPasswordFunc: func(ctx context.Context, resetToken, newPassword string, origin models.RequestOrigin) error {
			return models.ErrTokenInvalid
		},
	}

	rec := postJSON(t, newTestAuthHandler(svc).ResetPassword, "/auth/reset-password",
		`{"token":"bad","new_password":"NewStr0ngPass"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutHandler_NoBearer(t *testing.T) {
	rec := postJSON(t, newTestAuthHandler(&mockAuthService{}).Logout, "/auth/logout", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutHandler_PassesTokens(t *testing.T) {
	var gotAccess, gotRefresh string
	svc := &mockAuthService{
		LogoutFunc: func(ctx context.Context, accessToken, refreshToken string, origin models.RequestOrigin) error {
			gotAccess = accessToken
			gotRefresh = refreshToken
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(`{"refresh_token":"refresh_tok"}`))
	req.Header.Set("Authorization", "Bearer access_tok")
	req.RemoteAddr = "203.0.113.10:52100"
	rec := httptest.NewRecorder()
	newTestAuthHandler(svc).Logout(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "access_tok", gotAccess)
	assert.Equal(t, "refresh_tok", gotRefresh)
}
