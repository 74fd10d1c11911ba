package models

import "time"

// Audit event kinds published to Kafka and landed in ClickHouse.
const (
	AuditLoginRequested = "login_requested"
	AuditLoginApproved  = "login_approved"
	AuditLoginRejected  = "login_rejected"
	AuditLoginDirect    = "login_direct"
	AuditLogout         = "logout"
	AuditForcedLogout   = "forced_logout"
)

// AuditEvent is the wire format for the audit stream.
type AuditEvent struct {
	EventType    string    `json:"event_type"`
	AccountID    uint      `json:"account_id"`
	EmployeeCode string    `json:"employee_code"`
	ActorID      uint      `json:"actor_id"`
	Detail       string    `json:"detail"`
	OccurredAt   time.Time `json:"occurred_at"`
}
