package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token kinds. Access tokens authorize API calls, refresh tokens only mint
// new access tokens, reset tokens only authorize a password reset.
const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
	TokenKindReset   = "reset"
)

// TokenClaims is the claims payload of a signed session token.
// Refresh and reset tokens carry only the subject: role and identity are
// always re-derived from the live user record when they are redeemed.
type TokenClaims struct {
	Kind     string `json:"kind"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
