package models

import (
	"time"

	"gorm.io/datatypes"
)

// ScanLog is one verification attempt, kept append-only for audit
// and the scan dashboard. The core never mutates or deletes entries.
type ScanLog struct {
	ID string `gorm:"primaryKey;type:uuid" json:"id"`

	// MemberRef is nil when the scanned payload did not resolve to a
	// member (forged, invalid, not-found).
	MemberRef *string `gorm:"index" json:"memberRef,omitempty"`
	Member    *Member `gorm:"foreignKey:MemberRef" json:"member,omitempty"`

	MemberNumber       string `gorm:"index" json:"memberNumber"`
	Outcome            string `gorm:"index;not null" json:"outcome"`
	Message            string `json:"message"`
	NotificationStatus string `json:"notificationStatus"`

	RawPayload string `gorm:"type:text" json:"rawPayload,omitempty"`

	ScannedBy  string         `json:"scannedBy,omitempty"`
	Location   string         `json:"location,omitempty"`
	DeviceInfo datatypes.JSON `json:"deviceInfo,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

// TableName specifies the table name for ScanLog model
func (ScanLog) TableName() string {
	return "scan_logs"
}
