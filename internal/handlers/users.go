package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ciro140903/airag-auth/internal/auth"
	"github.com/ciro140903/airag-auth/internal/models"
	"github.com/ciro140903/airag-auth/internal/services"
	pkghttp "github.com/ciro140903/airag-auth/pkg/http"
)

// UserServiceInterface defines the interface for user management logic
type UserServiceInterface interface {
	Get(ctx context.Context, id string) (*services.UserResponse, error)
	List(ctx context.Context, limit, offset int) (*services.UserListResponse, error)
	SetActive(ctx context.Context, actorID, targetID string, active bool, origin models.RequestOrigin) error
	SetRole(ctx context.Context, actorID, targetID, role string, origin models.RequestOrigin) error
	SetVerified(ctx context.Context, actorID, targetID string, verified bool, origin models.RequestOrigin) error
	Unlock(ctx context.Context, actorID, targetID string, origin models.RequestOrigin) error
}

// AuditQueryInterface exposes the audit trail to admins
type AuditQueryInterface interface {
	ListByActor(ctx context.Context, actorID string, limit, offset int) ([]*models.SecurityEvent, int64, error)
	ListFailures(ctx context.Context, limit, offset int) ([]*models.SecurityEvent, error)
}

// UserHandler handles current-user and admin user-management requests
type UserHandler struct {
	service  UserServiceInterface
	audit    AuditQueryInterface
	ipConfig *pkghttp.IPConfig
}

func NewUserHandler(service UserServiceInterface, audit AuditQueryInterface, ipConfig *pkghttp.IPConfig) *UserHandler {
	return &UserHandler{
		service:  service,
		audit:    audit,
		ipConfig: ipConfig,
	}
}

type SetActiveRequest struct {
	Active bool `json:"active"`
}

type SetRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

type SetVerifiedRequest struct {
	Verified bool `json:"verified"`
}

func (h *UserHandler) origin(r *http.Request) models.RequestOrigin {
	return models.RequestOrigin{
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}
}

// Me handles GET /users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromRequest(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	user, err := h.service.Get(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteUnauthorized(w, "Unauthorized")
			return
		}
		pkghttp.WriteInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// List handles GET /admin/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	users, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

// Get handles GET /admin/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// SetActive handles PUT /admin/users/{id}/active
func (h *UserHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromRequest(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}
	id := chi.URLParam(r, "id")

	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	err := h.service.SetActive(r.Context(), claims.Subject, id, req.Active, h.origin(r))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "User not found")
		case errors.Is(err, models.ErrForbidden):
			pkghttp.WriteForbidden(w, "You cannot deactivate your own account")
		default:
			pkghttp.WriteInternalError(w)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetRole handles PUT /admin/users/{id}/role
func (h *UserHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromRequest(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}
	id := chi.URLParam(r, "id")

	var req SetRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.SetRole(r.Context(), claims.Subject, id, req.Role, h.origin(r))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "User not found")
		case errors.Is(err, models.ErrForbidden):
			pkghttp.WriteForbidden(w, "You cannot demote your own account")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid role")
		default:
			pkghttp.WriteInternalError(w)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetVerified handles PUT /admin/users/{id}/verified
func (h *UserHandler) SetVerified(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromRequest(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}
	id := chi.URLParam(r, "id")

	var req SetVerifiedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	err := h.service.SetVerified(r.Context(), claims.Subject, id, req.Verified, h.origin(r))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Unlock handles POST /admin/users/{id}/unlock
func (h *UserHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromRequest(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}
	id := chi.URLParam(r, "id")

	err := h.service.Unlock(r.Context(), claims.Subject, id, h.origin(r))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AuditByUser handles GET /admin/users/{id}/audit
func (h *UserHandler) AuditByUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	events, total, err := h.audit.ListByActor(r.Context(), id, limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
	})
}

// AuditFailures handles GET /admin/audit/failures
func (h *UserHandler) AuditFailures(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	events, err := h.audit.ListFailures(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
