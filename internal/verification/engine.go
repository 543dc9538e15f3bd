package verification

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/mhm-assoc/memberpass/internal/credential"
	"github.com/mhm-assoc/memberpass/internal/models"
)

// Outcome classifies one verification attempt. Exactly one of these
// is returned per scan; there is no error channel out of Verify.
type Outcome string

const (
	OutcomeValid    Outcome = "valid"
	OutcomeExpired  Outcome = "expired"
	OutcomeForged   Outcome = "forged"
	OutcomeInvalid  Outcome = "invalid"
	OutcomeDisabled Outcome = "disabled"
	OutcomeNotFound Outcome = "not-found"
)

// Options controls side effects of a verification call.
type Options struct {
	// TrackScan bumps the member's scan counter on a valid outcome.
	// All other outcomes are read-only regardless.
	TrackScan bool
}

// MemberSnapshot carries the member fields a scanning client displays.
type MemberSnapshot struct {
	MemberNumber  string     `json:"memberNumber"`
	Name          string     `json:"name"`
	Email         string     `json:"email,omitempty"`
	MemberType    string     `json:"memberType,omitempty"`
	Status        string     `json:"status"`
	Validity      string     `json:"validity,omitempty"`
	ScanCount     int        `json:"scanCount"`
	LastScannedAt *time.Time `json:"lastScannedAt,omitempty"`
}

// Result is the classified outcome of one scan.
type Result struct {
	Outcome            Outcome         `json:"outcome"`
	MemberNumber       string          `json:"memberNumber"`
	Name               string          `json:"name"`
	NotificationStatus string          `json:"notificationStatus"`
	Message            string          `json:"message"`
	Member             *MemberSnapshot `json:"member,omitempty"`

	// MemberRef is the resolved member's record id, for ledger entries.
	// Not part of the scanning client's response.
	MemberRef *string `json:"-"`

	// Diagnostic holds the parse error text on invalid payloads.
	// Development aid only, never shown to scanning clients.
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Engine verifies scanned card payloads against the live member
// records. It is the error boundary for scanning: Verify always
// returns a classified Result, never an error.
type Engine struct {
	db     *gorm.DB
	signer *credential.Signer
}

// NewEngine creates a verification engine.
func NewEngine(db *gorm.DB, signer *credential.Signer) *Engine {
	return &Engine{db: db, signer: signer}
}

// Verify classifies a raw scanned payload. Checks run in a fixed
// order and the first failing one wins:
//
//	parse → signature → member lookup → validity period → member status
//
// The signature check deliberately precedes the lookup so a forged
// payload never reveals whether a member number exists.
func (e *Engine) Verify(raw string, currentPeriod string, opts Options) Result {
	payload, err := credential.ParsePayload(raw)
	if err != nil {
		return Result{
			Outcome:            OutcomeInvalid,
			Name:               payload.Name,
			NotificationStatus: "not-found",
			Message:            "Could not read this code. It does not look like a membership card.",
			Diagnostic:         err.Error(),
		}
	}

	if !e.signer.Matches(payload.MemberID, payload.Validity, payload.Signature) {
		return Result{
			Outcome:            OutcomeForged,
			MemberNumber:       payload.MemberID,
			Name:               payload.Name,
			NotificationStatus: "not-found",
			Message:            "Signature check failed. This card was not issued by this association or has been altered.",
		}
	}

	var member models.Member
	err = e.db.Where("member_number = ?", payload.MemberID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Signed but unknown: typically a member purged after issuance.
		return Result{
			Outcome:            OutcomeNotFound,
			MemberNumber:       payload.MemberID,
			Name:               payload.Name,
			NotificationStatus: "not-found",
			Message:            fmt.Sprintf("No member found with number %s.", payload.MemberID),
			Member: &MemberSnapshot{
				MemberNumber: payload.MemberID,
				Name:         payload.Name,
				Validity:     payload.Validity,
			},
		}
	}
	if err != nil {
		// Lookup infrastructure failure, not a verdict on the card. A
		// database hiccup must never report a definitive not-found.
		log.Printf("⚠️ Verification lookup failed for %s: %v", payload.MemberID, err)
		return Result{
			Outcome:            OutcomeInvalid,
			MemberNumber:       payload.MemberID,
			Name:               payload.Name,
			NotificationStatus: "not-found",
			Message:            "Could not verify this card right now. Please try again.",
			Diagnostic:         err.Error(),
		}
	}

	snapshot := snapshotOf(&member)
	memberRef := member.ID

	if payload.Validity != currentPeriod {
		return Result{
			Outcome:            OutcomeExpired,
			MemberNumber:       payload.MemberID,
			Name:               member.DisplayName(),
			NotificationStatus: member.Card.NotificationStatus,
			Message:            fmt.Sprintf("Card is for %s; the current membership period is %s.", payload.Validity, currentPeriod),
			Member:             snapshot,
			MemberRef:          &memberRef,
		}
	}

	if member.Status != models.MemberStatusActive {
		return Result{
			Outcome:            OutcomeDisabled,
			MemberNumber:       payload.MemberID,
			Name:               member.DisplayName(),
			NotificationStatus: member.Card.NotificationStatus,
			Message:            fmt.Sprintf("Membership is not active (%s).", member.StatusLabel()),
			Member:             snapshot,
			MemberRef:          &memberRef,
		}
	}

	message := fmt.Sprintf("Valid membership for %s.", currentPeriod)
	switch member.Card.NotificationStatus {
	case models.NotificationPending, models.NotificationNotGenerated:
		// Informational only: the card is valid, delivery just never
		// got confirmed. Does not change the classification.
		message = fmt.Sprintf("Valid membership for %s (card delivery unconfirmed).", currentPeriod)
	}

	if opts.TrackScan {
		now := time.Now()
		// Single UPDATE expression so concurrent scans at the same
		// event cannot lose increments.
		err := e.db.Model(&models.Member{}).
			Where("id = ?", member.ID).
			Updates(map[string]interface{}{
				"card_scan_count":      gorm.Expr("card_scan_count + ?", 1),
				"card_last_scanned_at": now,
			}).Error
		if err != nil {
			// Counting is best-effort; the member is still valid.
			log.Printf("⚠️ Scan counter update failed for %s: %v", member.ID, err)
		} else {
			snapshot.ScanCount++
			snapshot.LastScannedAt = &now
		}
	}

	return Result{
		Outcome:            OutcomeValid,
		MemberNumber:       payload.MemberID,
		Name:               member.DisplayName(),
		NotificationStatus: member.Card.NotificationStatus,
		Message:            message,
		Member:             snapshot,
		MemberRef:          &memberRef,
	}
}

func snapshotOf(m *models.Member) *MemberSnapshot {
	return &MemberSnapshot{
		MemberNumber:  m.Number(),
		Name:          m.DisplayName(),
		Email:         m.Email,
		MemberType:    m.MemberType,
		Status:        m.Status,
		Validity:      m.Card.Validity,
		ScanCount:     m.Card.ScanCount,
		LastScannedAt: m.Card.LastScannedAt,
	}
}
