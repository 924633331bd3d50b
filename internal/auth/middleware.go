package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ciro140903/airag-auth/internal/models"
	pkghttp "github.com/ciro140903/airag-auth/pkg/http"
)

type contextKey string

const userContextKey contextKey = "user"

// Middleware validates bearer access tokens, including revocation, and
// injects the claims into the request context. Refresh tokens are rejected
// here: they are only redeemable at the refresh endpoint.
func Middleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "Missing or malformed authorization header")
				return
			}

			claims, err := tm.Verify(r.Context(), token, models.TokenKindAccess)
			if err != nil {
				if errors.Is(err, models.ErrInternalServer) {
					pkghttp.WriteInternalError(w)
					return
				}
				pkghttp.WriteUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFetcher resolves the live user record for role checks.
type UserFetcher interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// RequireRole enforces role-based access. The role is read from the live
// user record, not the token, so privilege changes apply immediately.
func RequireRole(users UserFetcher, role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromRequest(r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "Unauthorized")
				return
			}

			user, err := users.GetByID(r.Context(), claims.Subject)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteUnauthorized(w, "Unauthorized")
					return
				}
				pkghttp.WriteInternalError(w)
				return
			}

			if !user.IsActive || user.Role != role {
				pkghttp.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// ClaimsFromRequest returns the verified claims stored by Middleware, or nil.
func ClaimsFromRequest(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(userContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}
