package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Member lifecycle statuses
const (
	MemberStatusPending   = "pending"
	MemberStatusActive    = "active"
	MemberStatusInactive  = "inactive"
	MemberStatusRejected  = "rejected"
	MemberStatusSuspended = "suspended"
)

// Notification delivery states for an issued card
const (
	NotificationSent         = "sent"
	NotificationPending      = "pending"
	NotificationFailed       = "failed"
	NotificationNotGenerated = "not-generated"
)

// Card is the signed membership credential embedded in a Member.
// Signature is the authoritative proof; Code is a truncated,
// non-secret reference derived from it.
type Card struct {
	Code               string     `gorm:"index" json:"code,omitempty"`
	ImagePath          string     `json:"imagePath,omitempty"`
	IssuedAt           *time.Time `json:"issuedAt,omitempty"`
	Signature          string     `json:"signature,omitempty"`
	Validity           string     `json:"validity,omitempty"`
	NotificationStatus string     `gorm:"default:'not-generated'" json:"notificationStatus"`
	NotificationSentAt *time.Time `json:"notificationSentAt,omitempty"`
	ScanCount          int        `gorm:"default:0" json:"scanCount"`
	LastScannedAt      *time.Time `json:"lastScannedAt,omitempty"`
}

// Issued reports whether a credential has ever been generated.
func (c Card) Issued() bool {
	return c.Signature != ""
}

// Member represents a membership applicant or member.
// Standardized: Go (PascalCase) -> DB (snake_case) -> JSON (camelCase)
type Member struct {
	ID string `gorm:"primaryKey;type:uuid" json:"id"`

	// MemberNumber is assigned at approval time and does not exist
	// before it (hence the pointer; NULLs stay out of the unique index).
	MemberNumber *string `gorm:"uniqueIndex" json:"memberNumber,omitempty"`

	FirstName   string         `gorm:"not null" json:"firstName"`
	LastName    string         `gorm:"not null" json:"lastName"`
	Email       string         `gorm:"uniqueIndex;not null" json:"email"`
	Phone       string         `json:"phone,omitempty"`
	Address     string         `json:"address,omitempty"`
	DateOfBirth *time.Time     `json:"dateOfBirth,omitempty"`
	MemberType  string         `gorm:"default:'regular'" json:"memberType"`
	Status      string         `gorm:"default:'pending';index" json:"status"`
	Notes       datatypes.JSON `json:"notes,omitempty"`

	Card Card `gorm:"embedded;embeddedPrefix:card_" json:"card"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for Member model
func (Member) TableName() string {
	return "members"
}

// DisplayName returns the member's full name for cards and emails.
func (m *Member) DisplayName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// Number returns the assigned member number or "" before approval.
func (m *Member) Number() string {
	if m.MemberNumber == nil {
		return ""
	}
	return *m.MemberNumber
}

// StatusLabel humanizes the lifecycle status for display on cards
// and scan results.
func (m *Member) StatusLabel() string {
	switch m.Status {
	case MemberStatusPending:
		return "Pending Approval"
	case MemberStatusActive:
		return "Active Member"
	case MemberStatusInactive:
		return "Inactive"
	case MemberStatusRejected:
		return "Rejected"
	case MemberStatusSuspended:
		return "Suspended"
	default:
		return m.Status
	}
}

// ApplyCard writes a freshly generated credential onto the member.
// Delivery starts out pending; the issuance service flips it to
// sent/failed after the dispatch attempt.
func (m *Member) ApplyCard(code, signature, validity, imagePath string, issuedAt time.Time) {
	m.Card = Card{
		Code:               code,
		ImagePath:          imagePath,
		IssuedAt:           &issuedAt,
		Signature:          signature,
		Validity:           validity,
		NotificationStatus: NotificationPending,
		ScanCount:          m.Card.ScanCount,
		LastScannedAt:      m.Card.LastScannedAt,
	}
}
