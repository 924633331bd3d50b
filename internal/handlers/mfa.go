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

// MFAServiceInterface defines the interface for MFA business logic
type MFAServiceInterface interface {
	StartSetup(ctx context.Context, userID string, origin models.RequestOrigin) (*services.MFASetupResponse, error)
	ConfirmSetup(ctx context.Context, userID, code string, origin models.RequestOrigin) ([]string, error)
	Disable(ctx context.Context, userID, password, code string, origin models.RequestOrigin) error
	RegenerateBackupCodes(ctx context.Context, userID, code string, origin models.RequestOrigin) ([]string, error)
	Status(ctx context.Context, userID string) (*services.MFAStatusResponse, error)
}

// MFAHandler handles MFA enrollment HTTP requests
type MFAHandler struct {
	service  MFAServiceInterface
	ipConfig *pkghttp.IPConfig
}

func NewMFAHandler(service MFAServiceInterface, ipConfig *pkghttp.IPConfig) *MFAHandler {
	return &MFAHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

type ConfirmSetupRequest struct {
	Code string `json:"code" validate:"required,min=6,max=8"`
}

type DisableMFARequest struct {
	Password string `json:"password" validate:"required"`
	Code     string `json:"code" validate:"required,min=6,max=8"`
}

type RegenerateBackupCodesRequest struct {
	Code string `json:"code" validate:"required,min=6,max=8"`
}

// BackupCodesResponse carries freshly generated plaintext backup codes.
// They are never retrievable again.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

func (h *MFAHandler) origin(r *http.Request) models.RequestOrigin {
	return models.RequestOrigin{
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}
}

// StartSetup handles POST /mfa/setup
func (h *MFAHandler) StartSetup(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromRequest(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	resp, err := h.service.StartSetup(r.Context(), claims.Subject, h.origin(r))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteError(w, http.StatusConflict, "mfa_already_enabled", "MFA is already enabled; disable it before re-enrolling")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "Unauthorized")
		default:
			pkghttp.WriteInternalError(w)
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ConfirmSetup handles POST /mfa/confirm
func (h *MFAHandler) ConfirmSetup(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromRequest(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req ConfirmSetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	codes, err := h.service.ConfirmSetup(r.Context(), claims.Subject, req.Code, h.origin(r))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrMFANotPending):
			pkghttp.WriteBadRequest(w, "No MFA enrollment in progress")
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Invalid verification code")
		default:
			pkghttp.WriteInternalError(w)
		}
		return
	}

	writeJSON(w, http.StatusOK, BackupCodesResponse{BackupCodes: codes})
}

// Disable handles POST /mfa/disable
func (h *MFAHandler) Disable(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromRequest(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req DisableMFARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.Disable(r.Context(), claims.Subject, req.Password, req.Code, h.origin(r))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrMFANotEnabled):
			pkghttp.WriteBadRequest(w, "MFA is not enabled")
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Invalid password or verification code")
		default:
			pkghttp.WriteInternalError(w)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RegenerateBackupCodes handles POST /mfa/backup-codes
func (h *MFAHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromRequest(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req RegenerateBackupCodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	codes, err := h.service.RegenerateBackupCodes(r.Context(), claims.Subject, req.Code, h.origin(r))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrMFANotEnabled):
			pkghttp.WriteBadRequest(w, "MFA is not enabled")
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Invalid verification code")
		default:
			pkghttp.WriteInternalError(w)
		}
		return
	}

	writeJSON(w, http.StatusOK, BackupCodesResponse{BackupCodes: codes})
}

// Status handles GET /mfa/status
func (h *MFAHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromRequest(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	status, err := h.service.Status(r.Context(), claims.Subject)
	if err != nil {
		pkghttp.WriteInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, status)
}
