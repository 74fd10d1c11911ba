package models

import "time"

// Role distinguishes the single super-admin role from regular employees.
type Role string

const (
	RolePrivileged Role = "privileged"
	RoleStandard   Role = "standard"
)

// Account is a login-capable employee record. Accounts are never hard-deleted;
// deactivation flips IsActive instead.
type Account struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	EmployeeCode string     `gorm:"size:10;uniqueIndex" json:"employee_code"`
	DisplayName  string     `gorm:"size:50" json:"display_name"`
	PasswordHash string     `gorm:"size:255" json:"-"`
	Role         Role       `gorm:"size:20;default:'standard'" json:"role"`
	Avatar       string     `gorm:"size:255" json:"avatar"`
	IsActive     bool       `gorm:"default:true" json:"is_active"`
	// Best-effort mirror of "has an issued token somewhere". The realtime
	// session registry, not this flag, decides which channel gets notified.
	IsLoggedIn   bool       `gorm:"default:false" json:"is_logged_in"`
	CreatedBy    *uint      `json:"created_by"`
	ModifiedBy   *uint      `json:"modified_by"`
	CreatedAt    time.Time  `json:"created_at"`
	ModifiedAt   *time.Time `json:"modified_at"`
}

func (Account) TableName() string { return "accounts" }

// IsPrivileged reports whether the account bypasses login approval.
func (a *Account) IsPrivileged() bool {
	return a.Role == RolePrivileged
}
