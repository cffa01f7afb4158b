package domain

import "time"

// Audit actions emitted on terminal flow transitions.
const (
	AuditLoginSucceeded = "auth.login.succeeded"
	AuditLoginLockedOut = "auth.login.locked_out"
	AuditAccountCreated = "auth.account.created"
	AuditRegisterLocked = "auth.register.locked_out"
)

// AuditEvent captures a terminal security event for the append-only audit
// journal. Recording is best-effort and must never fail the caller's request.
type AuditEvent struct {
	EventID    string
	ActorID    string
	ActorRole  Role
	Action     string
	EntityType string
	EntityID   string
	Metadata   map[string]any
	Timestamp  time.Time
}
