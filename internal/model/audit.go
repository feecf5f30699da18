package model

import "time"

// AuditKind names a security-relevant action
type AuditKind string

// Audit kinds
const (
	AuditLoginAttempt         AuditKind = "LOGIN_ATTEMPT"
	AuditLoginBlocked         AuditKind = "LOGIN_BLOCKED"
	AuditLoginFailed          AuditKind = "LOGIN_FAILED"
	AuditLoginSuccess         AuditKind = "LOGIN_SUCCESS"
	AuditLoginError           AuditKind = "LOGIN_ERROR"
	AuditAccountLocked        AuditKind = "ACCOUNT_LOCKED"
	AuditAccountUnlocked      AuditKind = "ACCOUNT_UNLOCKED"
	AuditAccountForceUnlocked AuditKind = "ACCOUNT_FORCE_UNLOCKED"
	AuditUserRegistered       AuditKind = "USER_REGISTERED"
	AuditRegistrationFailed   AuditKind = "REGISTRATION_FAILED"
	AuditPasswordChanged      AuditKind = "PASSWORD_CHANGED"
	AuditPasswordChangeFailed AuditKind = "PASSWORD_CHANGE_FAILED"
	AuditPasswordReset        AuditKind = "PASSWORD_RESET"
	AuditRoleChanged          AuditKind = "ROLE_CHANGED"
	AuditAccountActivated     AuditKind = "ACCOUNT_ACTIVATED"
	AuditAccountDeactivated   AuditKind = "ACCOUNT_DEACTIVATED"
)

// UnknownActor is recorded when an event has no attributable username
const UnknownActor = "unknown"

// AuditEvent is an immutable record in the security audit log
type AuditEvent struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Kind      AuditKind `json:"kind"`
	Success   bool      `json:"success"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewAuditEvent builds an event, substituting UnknownActor for an empty actor
func NewAuditEvent(id, actor string, kind AuditKind, success bool, detail string, at time.Time) *AuditEvent {
	if actor == "" {
		actor = UnknownActor
	}
	return &AuditEvent{
		ID:        id,
		Actor:     actor,
		Kind:      kind,
		Success:   success,
		Detail:    detail,
		CreatedAt: at,
	}
}

// Activity names an entry in the per-account activity log
type Activity string

const (
	ActivityLogin           Activity = "LOGIN"
	ActivityPasswordChanged Activity = "PASSWORD_CHANGED"
)

// ActivityRecord is an append-only account activity entry
type ActivityRecord struct {
	AccountID int64     `json:"accountId"`
	Activity  Activity  `json:"activity"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuditFilter narrows an audit trail listing
type AuditFilter struct {
	Actor string
	Kind  AuditKind
	Limit int
}
