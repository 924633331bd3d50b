package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions.
//
// ErrInvalidCredentials deliberately covers unknown user, wrong password and
// bad MFA code so callers cannot distinguish them. ErrTokenInvalid covers
// signature, kind, expiry and revocation failures the same way.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrConflict           = errors.New("resource already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrMFARequired        = errors.New("mfa code required")
	ErrMFANotEnabled      = errors.New("mfa is not enabled")
	ErrMFANotPending      = errors.New("mfa setup has not been started")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrForbidden          = errors.New("forbidden")
	ErrBadRequest         = errors.New("bad request")
	ErrInternalServer     = errors.New("internal server error")
)

// AccountLockedError carries the unlock time. It matches ErrAccountLocked
// under errors.Is.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account is temporarily locked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// ConflictError is a field-specific registration collision ("username" or
// "email"). It matches ErrConflict under errors.Is.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already in use", e.Field)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// RateLimitedError carries the retry-after hint. It matches ErrRateLimited
// under errors.Is.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
