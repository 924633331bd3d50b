package models

import "time"

// Audit outcomes.
const (
	AuditOutcomeSuccess = "success"
	AuditOutcomeFailure = "failure"
)

// RequestOrigin carries where a request came from, for audit records.
type RequestOrigin struct {
	IPAddress string
	UserAgent string
}

// SecurityEvent is an append-only audit record. Writes are fire-and-forget:
// a failed audit write never fails the operation being audited.
type SecurityEvent struct {
	ID        string
	ActorID   *string // Nil when the actor could not be resolved (e.g. unknown login identifier)
	Action    string  // e.g. "login_failed:wrong_password", "mfa_enabled"
	Outcome   string
	IPAddress *string
	UserAgent *string
	Metadata  map[string]string
	CreatedAt time.Time
}
