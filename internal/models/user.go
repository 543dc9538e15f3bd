package models

import (
	"time"

	"gorm.io/gorm"
)

// Staff roles. Admins manage members and batches; scanners only get
// the verification endpoints.
const (
	RoleAdmin   = "admin"
	RoleScanner = "scanner"
)

// UserAuth represents a staff user (admin or event scanner).
// Standardized: Go (PascalCase) -> DB (snake_case) -> JSON (camelCase)
type UserAuth struct {
	ID                  string     `gorm:"primaryKey;type:uuid" json:"id"`
	Username            string     `gorm:"unique;not null" json:"username"`
	Password            string     `gorm:"not null" json:"-"`
	Email               string     `gorm:"unique;not null" json:"email"`
	Name                string     `json:"name,omitempty"`
	Role                string     `gorm:"default:'scanner'" json:"role"`
	IsActive            bool       `gorm:"default:true" json:"isActive"`
	LastLogin           *time.Time `json:"lastLogin,omitempty"`
	FailedLoginAttempts int        `gorm:"default:0" json:"-"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for UserAuth model
func (UserAuth) TableName() string {
	return "user_auths"
}

// IsAdmin reports whether the user may manage members and batches.
func (u *UserAuth) IsAdmin() bool {
	return u.Role == RoleAdmin
}
