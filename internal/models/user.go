package models

import (
	"time"
)

type User struct {
	ID                string
	Username          string // Unique, stored lowercase
	Email             string // Unique, stored lowercase
	PasswordHash      string
	Role              string // e.g., "user", "admin"
	IsActive          bool   // Soft-deactivation flag; users are never hard-deleted
	IsVerified        bool
	FailedAttempts    int
	LockedUntil       *time.Time // Temporary account lock expiration
	LastLogin         *time.Time
	LoginCount        int
	PasswordChangedAt *time.Time // Used to invalidate tokens issued before a password change
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsLocked reports whether the account is under an active lockout at the given time.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}
