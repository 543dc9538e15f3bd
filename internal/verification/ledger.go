package verification

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/mhm-assoc/memberpass/internal/models"
)

// Ledger is the append-only record of verification attempts. Append
// failures are logged and swallowed: audit logging must never block a
// verification response to a scanning client.
type Ledger struct {
	db *gorm.DB
}

// NewLedger creates a scan ledger.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Record appends one scan log entry.
func (l *Ledger) Record(entry *models.ScanLog) {
	if err := l.db.Create(entry).Error; err != nil {
		log.Printf("⚠️ Scan ledger: failed to record entry for %s: %v", entry.MemberNumber, err)
	}
}

// QueryFilter narrows a ledger query. Zero values mean "no filter".
type QueryFilter struct {
	Outcome      string
	MemberNumber string
	ScannedBy    string
	Since        time.Time
	Until        time.Time
	Limit        int
}

// Query returns ledger entries, newest first.
func (l *Ledger) Query(f QueryFilter) ([]models.ScanLog, error) {
	q := l.db.Model(&models.ScanLog{}).Order("created_at DESC")
	if f.Outcome != "" {
		q = q.Where("outcome = ?", f.Outcome)
	}
	if f.MemberNumber != "" {
		q = q.Where("member_number = ?", f.MemberNumber)
	}
	if f.ScannedBy != "" {
		q = q.Where("scanned_by = ?", f.ScannedBy)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		q = q.Where("created_at <= ?", f.Until)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var entries []models.ScanLog
	err := q.Limit(limit).Find(&entries).Error
	return entries, err
}

// OutcomeCounts aggregates the ledger by outcome for the dashboard.
func (l *Ledger) OutcomeCounts(since time.Time) (map[string]int64, error) {
	type row struct {
		Outcome string
		Count   int64
	}
	var rows []row
	q := l.db.Model(&models.ScanLog{}).
		Select("outcome, COUNT(*) as count").
		Group("outcome")
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Outcome] = r.Count
	}
	return counts, nil
}
