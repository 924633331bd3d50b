package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/ciro140903/airag-auth/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RevocationStore is the blacklist backing early token invalidation.
// Entries carry the token's natural expiry so the store can expire them
// and never grows beyond the set of live revoked tokens.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time, reason string) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// TokenManager issues, verifies and revokes signed session tokens.
// Tokens are stateless: no per-session record exists server side, only
// revoked token ids are persisted, until their natural expiry.
type TokenManager struct {
	secret      []byte
	revocations RevocationStore
	parser      *jwt.Parser

	now func() time.Time
}

func NewTokenManager(secret string, revocations RevocationStore) *TokenManager {
	return &TokenManager{
		secret:      []byte(secret),
		revocations: revocations,
		// Claims validation is disabled so expiry can be checked explicitly,
		// after the kind check, keeping the verification order fixed.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
		now: time.Now,
	}
}

// Issue creates a signed token of the given kind for the user. Refresh and
// reset tokens carry only the subject; identity and role ride only on
// access tokens and are re-derived from the live record everywhere else.
func (tm *TokenManager) Issue(user *models.User, kind string, ttl time.Duration) (string, *models.TokenClaims, error) {
	now := tm.now()

	claims := &models.TokenClaims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	if kind == models.TokenKindAccess {
		claims.Username = user.Username
		claims.Email = user.Email
		claims.Role = user.Role
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign %s token: %w", kind, err)
	}

	return signed, claims, nil
}

// Verify checks a token in a fixed order: signature, kind, expiry, then
// revocation. All verification failures collapse into ErrTokenInvalid; only
// a revocation-store outage surfaces as ErrInternalServer, because token
// verification must fail closed.
func (tm *TokenManager) Verify(ctx context.Context, tokenString, expectedKind string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := tm.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, models.ErrTokenInvalid
	}

	if claims.Kind != expectedKind {
		return nil, models.ErrTokenInvalid
	}

	if claims.ExpiresAt == nil || !tm.now().Before(claims.ExpiresAt.Time) {
		return nil, models.ErrTokenInvalid
	}

	if claims.ID == "" {
		return nil, models.ErrTokenInvalid
	}
	revoked, err := tm.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, models.ErrInternalServer
	}
	if revoked {
		return nil, models.ErrTokenInvalid
	}

	return claims, nil
}

// Revoke marks the token's id invalid for the remainder of its lifetime.
// Revoking an already-expired token is a no-op success; revocation is
// terminal, there is no un-revoke.
func (tm *TokenManager) Revoke(ctx context.Context, tokenString, reason string) error {
	claims := &models.TokenClaims{}

	token, err := tm.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	})
	if err != nil || !token.Valid || claims.ID == "" || claims.ExpiresAt == nil {
		return models.ErrTokenInvalid
	}

	if !tm.now().Before(claims.ExpiresAt.Time) {
		return nil
	}

	if err := tm.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time, reason); err != nil {
		return models.ErrInternalServer
	}
	return nil
}
