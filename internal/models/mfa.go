package models

import (
	"time"
)

// MFAConfig holds a user's TOTP enrollment state.
//
// Invariants: SecretEncrypted is present iff enrollment has started;
// Enabled implies both a secret and SetupCompleted. A pending enrollment
// (secret present, Enabled false) never participates in login.
type MFAConfig struct {
	UserID          string
	Enabled         bool
	SecretEncrypted []byte // AES-256-GCM ciphertext of the base32 TOTP secret
	SecretNonce     []byte
	BackupCodes     []BackupCodeEntry
	SetupCompleted  bool
	LastUsed        *time.Time // Last successful TOTP verification; backs the replay guard
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BackupCodeEntry is a single-use recovery code, stored hashed.
type BackupCodeEntry struct {
	CodeHash  string     `json:"code_hash"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Pending reports whether enrollment has started but not been confirmed.
func (c *MFAConfig) Pending() bool {
	return len(c.SecretEncrypted) > 0 && !c.Enabled
}
