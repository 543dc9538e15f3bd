package issuance

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"time"

	"gorm.io/gorm"

	"github.com/mhm-assoc/memberpass/internal/credential"
	"github.com/mhm-assoc/memberpass/internal/models"
	"github.com/mhm-assoc/memberpass/internal/notify"
	"github.com/mhm-assoc/memberpass/internal/storage"
)

var yearShape = regexp.MustCompile(`^\d{4}$`)

// Service orchestrates card issuance: sign, render, store, record,
// notify. Generation failures propagate to the caller; delivery
// failures only mark the card's notification status, since a card that
// was generated but not delivered is still a valid card.
type Service struct {
	db              *gorm.DB
	encoder         *credential.Encoder
	store           *storage.CardStore
	dispatcher      notify.Dispatcher
	dispatchTimeout time.Duration
}

// NewService creates an issuance service.
func NewService(db *gorm.DB, encoder *credential.Encoder, store *storage.CardStore, dispatcher notify.Dispatcher, dispatchTimeout time.Duration) *Service {
	if dispatchTimeout <= 0 {
		dispatchTimeout = 15 * time.Second
	}
	return &Service{
		db:              db,
		encoder:         encoder,
		store:           store,
		dispatcher:      dispatcher,
		dispatchTimeout: dispatchTimeout,
	}
}

// IssueResult reports one completed issuance.
type IssueResult struct {
	MemberID     string `json:"memberId"`
	MemberNumber string `json:"memberNumber"`
	Validity     string `json:"validity"`
	EmailSent    bool   `json:"emailSent"`
	ImagePath    string `json:"imagePath,omitempty"`
}

// IssueOne generates and dispatches a card for one member. An empty
// validity defaults to the current calendar year.
//
// Preconditions (fatal for this member, never retried): the member
// must have an email address and an assigned member number.
func (s *Service) IssueOne(ctx context.Context, member *models.Member, validity string) (IssueResult, error) {
	if member.Email == "" {
		return IssueResult{}, fmt.Errorf("member %s has no email address; cannot issue a card", member.ID)
	}
	if member.Number() == "" {
		return IssueResult{}, fmt.Errorf("member %s has no member number; approve the application first", member.ID)
	}

	payload, err := s.encoder.Encode(member, validity)
	if err != nil {
		return IssueResult{}, err
	}

	inline, png, err := s.encoder.Render(payload)
	if err != nil {
		return IssueResult{}, err
	}

	// Empty path means storage is unavailable; the in-memory PNG still
	// travels with the email below.
	imagePath := s.store.Save(png, member.Number())

	now := time.Now()
	member.ApplyCard(credential.Code(payload.Signature), payload.Signature, payload.Validity, imagePath, now)
	if err := s.db.Save(member).Error; err != nil {
		return IssueResult{}, fmt.Errorf("failed to record card on member %s: %w", member.ID, err)
	}

	emailSent := s.dispatch(ctx, member, payload, png, inline)

	if emailSent {
		sentAt := time.Now()
		member.Card.NotificationStatus = models.NotificationSent
		member.Card.NotificationSentAt = &sentAt
	} else {
		member.Card.NotificationStatus = models.NotificationFailed
	}
	if err := s.db.Save(member).Error; err != nil {
		return IssueResult{}, fmt.Errorf("failed to record delivery status on member %s: %w", member.ID, err)
	}

	return IssueResult{
		MemberID:     member.ID,
		MemberNumber: member.Number(),
		Validity:     payload.Validity,
		EmailSent:    emailSent,
		ImagePath:    imagePath,
	}, nil
}

// dispatch sends the card email under a bounded timeout and reports
// whether delivery succeeded.
func (s *Service) dispatch(ctx context.Context, member *models.Member, payload credential.Payload, png []byte, inline string) bool {
	dctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	msg := notify.Message{
		To:      member.Email,
		Subject: fmt.Sprintf("Your %s membership card %s", payload.Association, payload.Validity),
		Body: fmt.Sprintf(
			"Hello %s,\n\nYour membership card for %s is attached.\nMember number: %s\nCard code: %s\n\nPresent the QR code at events to confirm your membership.\n",
			member.DisplayName(), payload.Validity, payload.MemberID, credential.Code(payload.Signature)),
		Attachment:  png,
		AttachName:  fmt.Sprintf("card-%s-%s.png", payload.MemberID, payload.Validity),
		InlineImage: inline,
	}

	if err := s.dispatcher.Send(dctx, msg); err != nil {
		log.Printf("⚠️ Card email to %s failed: %v", member.Email, err)
		return false
	}
	return true
}

// BulkFilter selects the members of a bulk issuance run.
type BulkFilter struct {
	// Validity defaults to the current calendar year.
	Validity string `json:"validity,omitempty"`
	// Status defaults to "active".
	Status string `json:"status,omitempty"`
	// MemberNumbers restricts the run to specific members.
	MemberNumbers []string `json:"memberNumbers,omitempty"`
}

// BulkItem is one member's outcome in a bulk run.
type BulkItem struct {
	MemberID     string `json:"memberId"`
	MemberNumber string `json:"memberNumber"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Success      bool   `json:"success"`
	EmailSent    bool   `json:"emailSent"`
	Error        string `json:"error,omitempty"`
}

// BulkResult aggregates a bulk issuance run.
type BulkResult struct {
	Validity   string     `json:"validity"`
	Total      int        `json:"total"`
	Successful int        `json:"successful"`
	Failed     int        `json:"failed"`
	Items      []BulkItem `json:"items"`
}

// SelectForIssue resolves a bulk filter to the members it covers and
// the effective validity period. Members without an assigned number
// are never selected.
func (s *Service) SelectForIssue(filter BulkFilter) ([]models.Member, string, error) {
	status := filter.Status
	if status == "" {
		status = models.MemberStatusActive
	}
	validity := filter.Validity
	if validity == "" {
		validity = credential.CurrentValidity()
	}

	q := s.db.Where("status = ?", status).Where("member_number IS NOT NULL")
	if len(filter.MemberNumbers) > 0 {
		q = q.Where("member_number IN ?", filter.MemberNumbers)
	}

	var members []models.Member
	if err := q.Order("member_number").Find(&members).Error; err != nil {
		return nil, "", fmt.Errorf("failed to select members for bulk issuance: %w", err)
	}
	return members, validity, nil
}

// BulkIssue issues cards for every member matching the filter. Members
// are processed sequentially: per-member failures stay isolated and
// the database never sees burst load from one admin click. A single
// member's failure is recorded and the loop continues.
func (s *Service) BulkIssue(ctx context.Context, filter BulkFilter) (BulkResult, error) {
	members, validity, err := s.SelectForIssue(filter)
	if err != nil {
		return BulkResult{}, err
	}

	result := BulkResult{Validity: validity, Total: len(members)}
	for i := range members {
		member := &members[i]
		item := BulkItem{
			MemberID:     member.ID,
			MemberNumber: member.Number(),
			Name:         member.DisplayName(),
			Email:        member.Email,
		}

		issued, err := s.IssueOne(ctx, member, validity)
		if err != nil {
			item.Error = err.Error()
			result.Failed++
		} else {
			item.Success = true
			item.EmailSent = issued.EmailSent
			result.Successful++
		}
		result.Items = append(result.Items, item)
	}

	log.Printf("📇 Bulk issuance for %s: %d total, %d ok, %d failed", validity, result.Total, result.Successful, result.Failed)
	return result, nil
}

// RegenerateForPeriod re-issues cards for every active member for the
// given period. The period must be a 4-digit year.
func (s *Service) RegenerateForPeriod(ctx context.Context, period string) (BulkResult, error) {
	if !yearShape.MatchString(period) {
		return BulkResult{}, fmt.Errorf("invalid validity period %q: expected a 4-digit year", period)
	}
	return s.BulkIssue(ctx, BulkFilter{Validity: period, Status: models.MemberStatusActive})
}
