package models

import "time"

// ApprovalStatus is the outcome of a login attempt in the approval ledger.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// LoginAttempt is one approval-ledger entry. Created when a standard account
// attempts login; terminal once approved or rejected.
type LoginAttempt struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	AccountID   uint           `gorm:"index" json:"account_id"`
	Status      ApprovalStatus `gorm:"size:20;default:'pending'" json:"status"`
	AttemptedAt time.Time      `json:"attempted_at"`
	ResolvedBy  *uint          `json:"resolved_by"`
	ResolvedAt  *time.Time     `json:"resolved_at"`
	IsActive    bool           `gorm:"default:true" json:"is_active"`
}

func (LoginAttempt) TableName() string { return "login_attempts" }

// Resolved reports whether the attempt has reached a terminal state.
func (l *LoginAttempt) Resolved() bool {
	return l.Status != ApprovalPending
}
