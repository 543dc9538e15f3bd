package models

import (
	"time"

	"gorm.io/datatypes"
)

// Batch types
const (
	BatchTypeManual        = "manual"
	BatchTypeCSVImport     = "csv-import"
	BatchTypeRegenerate    = "bulk-regenerate"
	BatchTypeYearlyRenewal = "yearly-renewal"
)

// Batch statuses. "failed" is reserved for orchestrator-level
// failures (unreadable input); per-row failures yield "partial".
const (
	BatchStatusPending    = "pending"
	BatchStatusProcessing = "processing"
	BatchStatusCompleted  = "completed"
	BatchStatusFailed     = "failed"
	BatchStatusPartial    = "partial"
)

// Batch result outcomes
const (
	BatchResultSuccess = "success"
	BatchResultFailed  = "failed"
)

// Batch tracks one bulk issuance run with per-member outcomes.
// Never deleted by the core; retries mutate existing results in place.
type Batch struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Name     string `gorm:"not null" json:"name"`
	Type     string `gorm:"not null" json:"type"`
	Validity string `gorm:"not null" json:"validity"`
	Status   string `gorm:"default:'pending';index" json:"status"`

	TotalMembers     int `gorm:"default:0" json:"totalMembers"`
	ProcessedMembers int `gorm:"default:0" json:"processedMembers"`
	SuccessfulSends  int `gorm:"default:0" json:"successfulSends"`
	FailedSends      int `gorm:"default:0" json:"failedSends"`

	// Rows rejected before processing (missing email etc.); they never
	// count toward ProcessedMembers.
	ParseErrors datatypes.JSON `json:"parseErrors,omitempty"`

	Results []BatchResult `gorm:"foreignKey:BatchID" json:"results,omitempty"`

	RetryCount  int        `gorm:"default:0" json:"retryCount"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	LastRetryAt *time.Time `json:"lastRetryAt,omitempty"`

	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for Batch model
func (Batch) TableName() string {
	return "batches"
}

// FinishStatus derives the terminal status from the failure count.
func (b *Batch) FinishStatus() string {
	if b.FailedSends == 0 {
		return BatchStatusCompleted
	}
	return BatchStatusPartial
}

// BatchResult is one member's outcome within a batch, ordered by
// processing time. Retries update the row in place (matched by
// MemberRef) instead of appending duplicates.
type BatchResult struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	BatchID string `gorm:"index;not null" json:"batchId"`

	// MemberRef is nil when the row never resolved to a member
	// (creation failed); such rows are not retryable.
	MemberRef    *string `gorm:"index" json:"memberRef,omitempty"`
	MemberNumber string  `json:"memberNumber,omitempty"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`

	Outcome       string `gorm:"not null" json:"outcome"`
	CardGenerated bool   `gorm:"default:false" json:"cardGenerated"`
	EmailSent     bool   `gorm:"default:false" json:"emailSent"`
	Error         string `json:"error,omitempty"`

	ProcessedAt time.Time `json:"processedAt"`
}

// TableName specifies the table name for BatchResult model
func (BatchResult) TableName() string {
	return "batch_results"
}
