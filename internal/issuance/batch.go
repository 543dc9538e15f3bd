package issuance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mhm-assoc/memberpass/internal/credential"
	"github.com/mhm-assoc/memberpass/internal/models"
)

// ErrNothingToRetry is returned by Retry when a batch has no failed
// entries that still reference a member.
var ErrNothingToRetry = errors.New("batch has no failed entries to retry")

// Orchestrator drives bulk issuance runs as stateful Batch records
// with per-member results. It is an error boundary: one row's failure
// never aborts the run, and progress is persisted after every row so
// a crash loses at most the row in flight.
type Orchestrator struct {
	db          *gorm.DB
	service     *Service
	association string
}

// NewOrchestrator creates a batch orchestrator.
func NewOrchestrator(db *gorm.DB, service *Service, association string) *Orchestrator {
	return &Orchestrator{db: db, service: service, association: association}
}

// RunCSV imports a member CSV and issues cards row by row. New members
// may be provisioned from row data; this is the one path allowed to do
// so outside the normal application flow.
func (o *Orchestrator) RunCSV(ctx context.Context, name, validity, createdBy string, input io.Reader) (*models.Batch, error) {
	if validity == "" {
		validity = credential.CurrentValidity()
	}

	batch := &models.Batch{
		Name:      name,
		Type:      models.BatchTypeCSVImport,
		Validity:  validity,
		Status:    models.BatchStatusPending,
		CreatedBy: createdBy,
	}
	if err := o.db.Create(batch).Error; err != nil {
		return nil, fmt.Errorf("failed to create batch record: %w", err)
	}

	rows, rowErrs, err := ParseRows(input)
	if err != nil {
		// Orchestrator-level failure: the input itself was unusable.
		now := time.Now()
		batch.Status = models.BatchStatusFailed
		batch.CompletedAt = &now
		if saveErr := o.db.Save(batch).Error; saveErr != nil {
			log.Printf("⚠️ Batch %s: failed to record failure: %v", batch.ID, saveErr)
		}
		return batch, err
	}

	if len(rowErrs) > 0 {
		if raw, merr := json.Marshal(rowErrs); merr == nil {
			batch.ParseErrors = datatypes.JSON(raw)
		}
	}

	now := time.Now()
	batch.TotalMembers = len(rows)
	batch.Status = models.BatchStatusProcessing
	batch.StartedAt = &now
	if err := o.db.Save(batch).Error; err != nil {
		return nil, fmt.Errorf("failed to start batch %s: %w", batch.ID, err)
	}

	for _, row := range rows {
		o.processRow(ctx, batch, row)
	}

	return batch, o.finish(batch)
}

// RunFilter issues cards for every member matching the filter,
// tracked as a batch. Used for bulk regenerates and yearly renewals.
// Each member's result and the batch counters are persisted as soon as
// that member is done, so a crash mid-run loses at most the member in
// flight and a retry sees everything processed so far.
func (o *Orchestrator) RunFilter(ctx context.Context, name, batchType, createdBy string, filter BulkFilter) (*models.Batch, error) {
	batch := &models.Batch{
		Name:      name,
		Type:      batchType,
		Validity:  filter.Validity,
		Status:    models.BatchStatusPending,
		CreatedBy: createdBy,
	}
	if batch.Validity == "" {
		batch.Validity = credential.CurrentValidity()
	}
	if err := o.db.Create(batch).Error; err != nil {
		return nil, fmt.Errorf("failed to create batch record: %w", err)
	}

	members, validity, err := o.service.SelectForIssue(filter)
	if err != nil {
		// Orchestrator-level failure: the selection itself was unusable.
		now := time.Now()
		batch.Status = models.BatchStatusFailed
		batch.CompletedAt = &now
		if saveErr := o.db.Save(batch).Error; saveErr != nil {
			log.Printf("⚠️ Batch %s: failed to record failure: %v", batch.ID, saveErr)
		}
		return batch, err
	}

	now := time.Now()
	batch.TotalMembers = len(members)
	batch.Validity = validity
	batch.Status = models.BatchStatusProcessing
	batch.StartedAt = &now
	if err := o.db.Save(batch).Error; err != nil {
		return nil, fmt.Errorf("failed to start batch %s: %w", batch.ID, err)
	}

	for i := range members {
		member := &members[i]
		entry := models.BatchResult{
			BatchID:      batch.ID,
			MemberRef:    &member.ID,
			MemberNumber: member.Number(),
			Name:         member.DisplayName(),
			Email:        member.Email,
			Outcome:      models.BatchResultFailed,
			ProcessedAt:  time.Now(),
		}

		issued, err := o.service.IssueOne(ctx, member, validity)
		batch.ProcessedMembers++
		if err != nil {
			entry.Error = err.Error()
			batch.FailedSends++
		} else {
			entry.Outcome = models.BatchResultSuccess
			entry.CardGenerated = true
			entry.EmailSent = issued.EmailSent
			batch.SuccessfulSends++
		}
		o.persistRow(batch, &entry)
	}

	return batch, o.finish(batch)
}

// RunYearlyRenewal issues the given period's cards for every active
// member, tracked as a yearly-renewal batch. An empty period defaults
// to the current calendar year; anything else must be a 4-digit year.
func (o *Orchestrator) RunYearlyRenewal(ctx context.Context, createdBy, period string) (*models.Batch, error) {
	if period == "" {
		period = credential.CurrentValidity()
	}
	if !yearShape.MatchString(period) {
		return nil, fmt.Errorf("invalid validity period %q: expected a 4-digit year", period)
	}
	name := fmt.Sprintf("%s membership renewal", period)
	return o.RunFilter(ctx, name, models.BatchTypeYearlyRenewal, createdBy, BulkFilter{
		Validity: period,
		Status:   models.MemberStatusActive,
	})
}

// RunRegenerate re-issues cards for all active members for a period,
// tracked as a bulk-regenerate batch. The period must be a 4-digit
// year; validation fails before any batch record is created.
func (o *Orchestrator) RunRegenerate(ctx context.Context, name, createdBy, period string) (*models.Batch, error) {
	if !yearShape.MatchString(period) {
		return nil, fmt.Errorf("invalid validity period %q: expected a 4-digit year", period)
	}
	return o.RunFilter(ctx, name, models.BatchTypeRegenerate, createdBy, BulkFilter{
		Validity: period,
		Status:   models.MemberStatusActive,
	})
}

// processRow resolves or creates the member for one CSV row, issues a
// card, and records the outcome.
func (o *Orchestrator) processRow(ctx context.Context, batch *models.Batch, row Row) {
	entry := models.BatchResult{
		BatchID:      batch.ID,
		MemberNumber: row.MemberNumber,
		Name:         fmt.Sprintf("%s %s", row.FirstName, row.LastName),
		Email:        row.Email,
		Outcome:      models.BatchResultFailed,
		ProcessedAt:  time.Now(),
	}

	member, err := o.resolveOrCreate(row, batch.Validity)
	if err != nil {
		entry.Error = err.Error()
		batch.ProcessedMembers++
		batch.FailedSends++
		o.persistRow(batch, &entry)
		return
	}

	entry.MemberRef = &member.ID
	entry.MemberNumber = member.Number()
	entry.Name = member.DisplayName()

	validity := row.Validity
	if validity == "" {
		validity = batch.Validity
	}

	issued, err := o.service.IssueOne(ctx, member, validity)
	batch.ProcessedMembers++
	if err != nil {
		entry.Error = err.Error()
		batch.FailedSends++
	} else {
		entry.Outcome = models.BatchResultSuccess
		entry.CardGenerated = true
		entry.EmailSent = issued.EmailSent
		batch.SuccessfulSends++
	}
	o.persistRow(batch, &entry)
}

// resolveOrCreate finds a member by number or email, creating one from
// the row when neither matches.
func (o *Orchestrator) resolveOrCreate(row Row, batchValidity string) (*models.Member, error) {
	var member models.Member

	if row.MemberNumber != "" {
		if err := o.db.Where("member_number = ?", row.MemberNumber).First(&member).Error; err == nil {
			return &member, nil
		} else if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("lookup by member number failed: %w", err)
		}
	}
	if err := o.db.Where("email = ?", row.Email).First(&member).Error; err == nil {
		return &member, nil
	} else if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("lookup by email failed: %w", err)
	}

	// Provisioning a member needs full identity data.
	if row.FirstName == "" || row.LastName == "" {
		return nil, fmt.Errorf("member %s not found and row has no full name to create one", row.Email)
	}
	if row.DateOfBirth == nil {
		return nil, fmt.Errorf("member %s not found and row has no date of birth to create one", row.Email)
	}

	status := row.Status
	if status == "" {
		status = models.MemberStatusActive
	}
	memberType := row.MemberType
	if memberType == "" {
		memberType = "regular"
	}

	year := batchValidity
	if row.Validity != "" {
		year = row.Validity
	}

	number := row.MemberNumber
	if number == "" {
		allocated, err := NextMemberNumber(o.db, o.association, year)
		if err != nil {
			return nil, err
		}
		number = allocated
	}

	member = models.Member{
		MemberNumber: &number,
		FirstName:    row.FirstName,
		LastName:     row.LastName,
		Email:        row.Email,
		Phone:        row.Phone,
		Address:      row.Address,
		DateOfBirth:  row.DateOfBirth,
		MemberType:   memberType,
		Status:       status,
	}
	if len(row.Extras) > 0 {
		if raw, err := json.Marshal(row.Extras); err == nil {
			member.Notes = datatypes.JSON(raw)
		}
	}

	if err := o.db.Create(&member).Error; err != nil {
		return nil, fmt.Errorf("failed to create member %s: %w", row.Email, err)
	}
	return &member, nil
}

// persistRow saves one result and the batch's running counters so a
// crash mid-run loses at most the row in flight.
func (o *Orchestrator) persistRow(batch *models.Batch, entry *models.BatchResult) {
	if err := o.db.Create(entry).Error; err != nil {
		log.Printf("⚠️ Batch %s: failed to record result for %s: %v", batch.ID, entry.Email, err)
	}
	if err := o.db.Save(batch).Error; err != nil {
		log.Printf("⚠️ Batch %s: failed to persist progress: %v", batch.ID, err)
	}
}

// finish recomputes the terminal status from the failure count.
func (o *Orchestrator) finish(batch *models.Batch) error {
	now := time.Now()
	batch.Status = batch.FinishStatus()
	batch.CompletedAt = &now
	if err := o.db.Save(batch).Error; err != nil {
		return fmt.Errorf("failed to complete batch %s: %w", batch.ID, err)
	}
	log.Printf("📦 Batch %s (%s): %d processed, %d ok, %d failed -> %s",
		batch.ID, batch.Type, batch.ProcessedMembers, batch.SuccessfulSends, batch.FailedSends, batch.Status)
	return nil
}

// Retry re-runs issuance for every failed entry that still references
// a member, updating the matching results in place. Entries whose
// member never got created are not retryable; with no eligible
// entries at all the call is a reported no-op.
func (o *Orchestrator) Retry(ctx context.Context, batchID string) (*models.Batch, error) {
	var batch models.Batch
	if err := o.db.First(&batch, "id = ?", batchID).Error; err != nil {
		return nil, fmt.Errorf("batch %s not found: %w", batchID, err)
	}

	var failed []models.BatchResult
	err := o.db.
		Where("batch_id = ? AND outcome = ? AND member_ref IS NOT NULL", batch.ID, models.BatchResultFailed).
		Order("processed_at").
		Find(&failed).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load batch results: %w", err)
	}
	if len(failed) == 0 {
		return &batch, ErrNothingToRetry
	}

	for i := range failed {
		entry := &failed[i]

		var member models.Member
		if err := o.db.First(&member, "id = ?", *entry.MemberRef).Error; err != nil {
			entry.Error = fmt.Sprintf("member no longer exists: %v", err)
			entry.ProcessedAt = time.Now()
			if saveErr := o.db.Save(entry).Error; saveErr != nil {
				log.Printf("⚠️ Batch %s: failed to update result %s: %v", batch.ID, entry.ID, saveErr)
			}
			continue
		}

		issued, err := o.service.IssueOne(ctx, &member, batch.Validity)
		entry.ProcessedAt = time.Now()
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.Outcome = models.BatchResultSuccess
			entry.CardGenerated = true
			entry.EmailSent = issued.EmailSent
			entry.Error = ""
			batch.SuccessfulSends++
			batch.FailedSends--
		}
		if saveErr := o.db.Save(entry).Error; saveErr != nil {
			log.Printf("⚠️ Batch %s: failed to update result %s: %v", batch.ID, entry.ID, saveErr)
		}
	}

	now := time.Now()
	batch.RetryCount++
	batch.LastRetryAt = &now
	batch.Status = batch.FinishStatus()
	if err := o.db.Save(&batch).Error; err != nil {
		return nil, fmt.Errorf("failed to persist retry of batch %s: %w", batch.ID, err)
	}

	log.Printf("🔁 Batch %s retry #%d: %d ok, %d still failed -> %s",
		batch.ID, batch.RetryCount, batch.SuccessfulSends, batch.FailedSends, batch.Status)
	return &batch, nil
}
