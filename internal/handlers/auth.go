package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ciro140903/airag-auth/internal/auth"
	"github.com/ciro140903/airag-auth/internal/models"
	"github.com/ciro140903/airag-auth/internal/services"
	pkghttp "github.com/ciro140903/airag-auth/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, req services.LoginRequest, origin models.RequestOrigin) (*services.AuthResponse, error)
	Register(ctx context.Context, req services.RegisterRequest, origin models.RequestOrigin) (*services.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*services.AuthResponse, error)
	Logout(ctx context.Context, accessToken, refreshToken string, origin models.RequestOrigin) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, origin models.RequestOrigin) error
	RequestPasswordReset(ctx context.Context, identifier string, origin models.RequestOrigin) error
	ResetPassword(ctx context.Context, resetToken, newPassword string, origin models.RequestOrigin) error
}

// AuthHandler handles authentication HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// Request DTOs

type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
	MFACode    string `json:"mfa_code,omitempty"`
	RememberMe bool   `json:"remember_me,omitempty"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

type ForgotPasswordRequest struct {
	Identifier string `json:"identifier" validate:"required"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

func (h *AuthHandler) origin(r *http.Request) models.RequestOrigin {
	return models.RequestOrigin{
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	authResp, err := h.service.Login(r.Context(), services.LoginRequest{
		Identifier: req.Identifier,
		Password:   req.Password,
		MFACode:    req.MFACode,
		RememberMe: req.RememberMe,
	}, h.origin(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResp)
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	authResp, err := h.service.Register(r.Context(), services.RegisterRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}, h.origin(r))
	if err != nil {
		var conflict *models.ConflictError
		switch {
		case errors.As(err, &conflict):
			pkghttp.WriteConflict(w, conflict.Field)
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "identifier")
		case errors.Is(err, models.ErrInternalServer):
			pkghttp.WriteInternalError(w)
		default:
			// Password policy violations arrive as plain errors
			pkghttp.WriteBadRequest(w, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, authResp)
}

// Refresh handles POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	authResp, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTokenInvalid), errors.Is(err, models.ErrAccountDisabled):
			pkghttp.WriteUnauthorized(w, "Invalid or expired token")
		default:
			pkghttp.WriteInternalError(w)
		}
		return
	}

	writeJSON(w, http.StatusOK, authResp)
}

// Logout handles POST /auth/logout. The body is optional; supplying the
// refresh token revokes it alongside the access token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	accessToken, ok := auth.BearerToken(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req LogoutRequest
	if r.Body != nil {
		// Ignore a missing or malformed body, the refresh token is optional
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := h.service.Logout(r.Context(), accessToken, req.RefreshToken, h.origin(r)); err != nil {
		if errors.Is(err, models.ErrTokenInvalid) {
			pkghttp.WriteUnauthorized(w, "Invalid token")
			return
		}
		pkghttp.WriteInternalError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword handles POST /auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromRequest(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.ChangePassword(r.Context(), claims.Subject, req.CurrentPassword, req.NewPassword, h.origin(r))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Current password is incorrect")
		case errors.Is(err, models.ErrInternalServer), errors.Is(err, models.ErrNotFound):
			pkghttp.WriteInternalError(w)
		default:
			pkghttp.WriteBadRequest(w, err.Error())
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ForgotPassword handles POST /auth/forgot-password. It always answers 202
// so the response does not reveal whether the identifier exists.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Identifier, h.origin(r)); err != nil {
		pkghttp.WriteInternalError(w)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "If an account exists for this identifier, a password reset email has been sent.",
	})
}

// ResetPassword handles POST /auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword, h.origin(r))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTokenInvalid):
			pkghttp.WriteUnauthorized(w, "Invalid or expired reset token")
		case errors.Is(err, models.ErrInternalServer):
			pkghttp.WriteInternalError(w)
		default:
			pkghttp.WriteBadRequest(w, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password has been reset. Please log in with your new password.",
	})
}

// writeAuthError maps login failures to HTTP responses. Lockout and rate
// limiting get their specific statuses with retry hints; everything
// credential-shaped collapses to a generic 401.
func writeAuthError(w http.ResponseWriter, err error) {
	var locked *models.AccountLockedError
	var rateLimited *models.RateLimitedError

	switch {
	case errors.As(err, &locked):
		pkghttp.WriteLocked(w, locked.Until)
	case errors.As(err, &rateLimited):
		pkghttp.WriteTooManyRequests(w, rateLimited.RetryAfter)
	case errors.Is(err, models.ErrMFARequired):
		pkghttp.WriteMFARequired(w)
	case errors.Is(err, models.ErrAccountDisabled):
		pkghttp.WriteForbidden(w, "Account is disabled")
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteUnauthorized(w, "Invalid credentials")
	default:
		pkghttp.WriteInternalError(w)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
