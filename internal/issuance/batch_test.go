package issuance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/mhm-assoc/memberpass/internal/models"
	"github.com/mhm-assoc/memberpass/internal/notify"
)

func TestRunCSVImportsAndIssues(t *testing.T) {
	db := testDB(t)
	svc := newTestService(t, db, nil)
	orch := NewOrchestrator(db, svc, "MHM")

	var lines []string
	lines = append(lines, "firstName,lastName,dateOfBirth,email")
	for i := 1; i <= 10; i++ {
		email := fmt.Sprintf("member%02d@example.org", i)
		if i == 5 {
			email = "" // rejected at parse time
		}
		lines = append(lines, fmt.Sprintf("First%02d,Last%02d,1990-01-%02d,%s", i, i, i, email))
	}

	batch, err := orch.RunCSV(context.Background(), "Spring import", "2025", "admin@example.org", strings.NewReader(strings.Join(lines, "\n")))
	if err != nil {
		t.Fatalf("RunCSV failed: %v", err)
	}

	if batch.Type != models.BatchTypeCSVImport {
		t.Errorf("Expected batch type %s, got %s", models.BatchTypeCSVImport, batch.Type)
	}
	if batch.TotalMembers != 9 || batch.ProcessedMembers != 9 {
		t.Errorf("Expected 9 total/processed, got %d/%d", batch.TotalMembers, batch.ProcessedMembers)
	}
	if batch.SuccessfulSends != 9 || batch.FailedSends != 0 {
		t.Errorf("Expected 9 ok / 0 failed, got %d/%d", batch.SuccessfulSends, batch.FailedSends)
	}
	if batch.Status != models.BatchStatusCompleted {
		t.Errorf("Expected status %s, got %s", models.BatchStatusCompleted, batch.Status)
	}
	if batch.CompletedAt == nil || batch.StartedAt == nil {
		t.Error("StartedAt and CompletedAt should both be set")
	}
	if len(batch.ParseErrors) == 0 {
		t.Error("The rejected line should be recorded in ParseErrors")
	}

	// Members got provisioned with allocated numbers.
	var count int64
	db.Model(&models.Member{}).Where("member_number LIKE ?", "MHM-2025-%").Count(&count)
	if count != 9 {
		t.Errorf("Expected 9 provisioned members, got %d", count)
	}

	var results []models.BatchResult
	db.Where("batch_id = ?", batch.ID).Find(&results)
	if len(results) != 9 {
		t.Errorf("Expected 9 result rows, got %d", len(results))
	}
	for _, r := range results {
		if r.Outcome != models.BatchResultSuccess || !r.CardGenerated || r.MemberRef == nil {
			t.Errorf("Result for %s should be a success with a member ref: %+v", r.Email, r)
		}
	}
}

func TestRunCSVResolvesExistingMembers(t *testing.T) {
	db := testDB(t)
	svc := newTestService(t, db, nil)
	orch := NewOrchestrator(db, svc, "MHM")

	existing := activeMember(t, db, "MHM-2024-00001")

	// A bare number+email row must resolve, not re-create.
	input := fmt.Sprintf("memberId,email\nMHM-2024-00001,%s\n", existing.Email)
	batch, err := orch.RunCSV(context.Background(), "Renewal", "2025", "admin@example.org", strings.NewReader(input))
	if err != nil {
		t.Fatalf("RunCSV failed: %v", err)
	}
	if batch.SuccessfulSends != 1 {
		t.Fatalf("Expected 1 success, got %d", batch.SuccessfulSends)
	}

	var count int64
	db.Model(&models.Member{}).Count(&count)
	if count != 1 {
		t.Errorf("Existing member should be reused, found %d members", count)
	}

	var reloaded models.Member
	db.First(&reloaded, "id = ?", existing.ID)
	if reloaded.Card.Validity != "2025" {
		t.Errorf("Resolved member should get a 2025 card, got %q", reloaded.Card.Validity)
	}
}

func TestRunCSVUnresolvableRowFailsInPlace(t *testing.T) {
	db := testDB(t)
	svc := newTestService(t, db, nil)
	orch := NewOrchestrator(db, svc, "MHM")

	// Full name but no date of birth: past parsing, fails at creation.
	input := "firstName,lastName,email\nAlice,Martin,alice@example.org\n"
	batch, err := orch.RunCSV(context.Background(), "Bad import", "2025", "admin@example.org", strings.NewReader(input))
	if err != nil {
		t.Fatalf("RunCSV failed: %v", err)
	}
	if batch.FailedSends != 1 || batch.SuccessfulSends != 0 {
		t.Errorf("Expected 1 failed / 0 ok, got %d/%d", batch.FailedSends, batch.SuccessfulSends)
	}
	if batch.Status != models.BatchStatusPartial {
		t.Errorf("Expected status %s, got %s", models.BatchStatusPartial, batch.Status)
	}

	var result models.BatchResult
	db.Where("batch_id = ?", batch.ID).First(&result)
	if result.MemberRef != nil {
		t.Error("A row whose member never got created should have no member ref")
	}
	if !strings.Contains(result.Error, "date of birth") {
		t.Errorf("Unexpected error text: %q", result.Error)
	}
}

func TestRunCSVUnreadableInput(t *testing.T) {
	db := testDB(t)
	svc := newTestService(t, db, nil)
	orch := NewOrchestrator(db, svc, "MHM")

	batch, err := orch.RunCSV(context.Background(), "Empty file", "2025", "admin@example.org", strings.NewReader(""))
	if err == nil {
		t.Fatal("RunCSV should fail on an input without a header")
	}
	if batch == nil || batch.Status != models.BatchStatusFailed {
		t.Errorf("Unusable input should leave a failed batch record, got %+v", batch)
	}
}

func TestRunFilterTracksBulkRun(t *testing.T) {
	db := testDB(t)
	svc := newTestService(t, db, nil)
	orch := NewOrchestrator(db, svc, "MHM")

	activeMember(t, db, "MHM-2025-00001")
	broken := activeMember(t, db, "MHM-2025-00002")
	db.Model(broken).Update("email", "")

	batch, err := orch.RunFilter(context.Background(), "Yearly run", models.BatchTypeManual, "admin@example.org", BulkFilter{Validity: "2025"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if batch.TotalMembers != 2 || batch.SuccessfulSends != 1 || batch.FailedSends != 1 {
		t.Errorf("Expected 2 total / 1 ok / 1 failed, got %d/%d/%d", batch.TotalMembers, batch.SuccessfulSends, batch.FailedSends)
	}
	if batch.Status != models.BatchStatusPartial {
		t.Errorf("Expected status %s, got %s", models.BatchStatusPartial, batch.Status)
	}
}

// progressWatcher observes batch state from inside the dispatch of
// each member, where a crash could strike.
type progressWatcher struct {
	db    *gorm.DB
	t     *testing.T
	calls int
}

func (d *progressWatcher) Send(_ context.Context, _ notify.Message) error {
	d.calls++
	if d.calls != 2 {
		return nil
	}

	// Mid-run, while the second member is in flight: the first
	// member's result and the batch progress must already be durable.
	var results int64
	d.db.Model(&models.BatchResult{}).Count(&results)
	if results != 1 {
		d.t.Errorf("Expected 1 persisted result before the second member, got %d", results)
	}
	var batch models.Batch
	if err := d.db.First(&batch).Error; err != nil {
		d.t.Errorf("Failed to load batch mid-run: %v", err)
		return nil
	}
	if batch.Status != models.BatchStatusProcessing {
		d.t.Errorf("Batch should be processing mid-run, got %s", batch.Status)
	}
	if batch.ProcessedMembers != 1 || batch.SuccessfulSends != 1 {
		d.t.Errorf("Batch counters should show 1 processed / 1 ok mid-run, got %d/%d",
			batch.ProcessedMembers, batch.SuccessfulSends)
	}
	if batch.StartedAt == nil {
		d.t.Error("StartedAt should be set before any member is processed")
	}
	return nil
}

func TestRunFilterPersistsProgressPerMember(t *testing.T) {
	db := testDB(t)
	watcher := &progressWatcher{db: db, t: t}
	svc := newTestService(t, db, watcher)
	orch := NewOrchestrator(db, svc, "MHM")

	activeMember(t, db, "MHM-2025-00001")
	activeMember(t, db, "MHM-2025-00002")

	batch, err := orch.RunFilter(context.Background(), "Progress run", models.BatchTypeManual, "admin@example.org", BulkFilter{Validity: "2025"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if watcher.calls != 2 {
		t.Fatalf("Expected 2 dispatches, got %d", watcher.calls)
	}
	if batch.ProcessedMembers != 2 || batch.SuccessfulSends != 2 {
		t.Errorf("Expected 2 processed / 2 ok at the end, got %d/%d", batch.ProcessedMembers, batch.SuccessfulSends)
	}
	if batch.Status != models.BatchStatusCompleted {
		t.Errorf("Expected status %s, got %s", models.BatchStatusCompleted, batch.Status)
	}
}

func TestRunYearlyRenewal(t *testing.T) {
	db := testDB(t)
	svc := newTestService(t, db, nil)
	orch := NewOrchestrator(db, svc, "MHM")

	if _, err := orch.RunYearlyRenewal(context.Background(), "admin@example.org", "next year"); err == nil {
		t.Fatal("RunYearlyRenewal should reject a malformed period")
	}

	member := activeMember(t, db, "MHM-2025-00001")

	batch, err := orch.RunYearlyRenewal(context.Background(), "admin@example.org", "2026")
	if err != nil {
		t.Fatalf("RunYearlyRenewal failed: %v", err)
	}
	if batch.Type != models.BatchTypeYearlyRenewal {
		t.Errorf("Expected batch type %s, got %s", models.BatchTypeYearlyRenewal, batch.Type)
	}
	if batch.Validity != "2026" || batch.SuccessfulSends != 1 {
		t.Errorf("Expected 1 card renewed for 2026, got %+v", batch)
	}

	var reloaded models.Member
	db.First(&reloaded, "id = ?", member.ID)
	if reloaded.Card.Validity != "2026" {
		t.Errorf("Renewed card should be for 2026, got %q", reloaded.Card.Validity)
	}
}

func TestRunRegenerateValidatesPeriod(t *testing.T) {
	db := testDB(t)
	svc := newTestService(t, db, nil)
	orch := NewOrchestrator(db, svc, "MHM")

	if _, err := orch.RunRegenerate(context.Background(), "Bad year", "admin@example.org", "20xx"); err == nil {
		t.Fatal("RunRegenerate should reject a malformed year")
	}
	var count int64
	db.Model(&models.Batch{}).Count(&count)
	if count != 0 {
		t.Errorf("No batch record should exist after a rejected period, found %d", count)
	}
}

func TestRetryNothingEligible(t *testing.T) {
	db := testDB(t)
	svc := newTestService(t, db, nil)
	orch := NewOrchestrator(db, svc, "MHM")

	activeMember(t, db, "MHM-2025-00001")
	batch, err := orch.RunFilter(context.Background(), "Clean run", models.BatchTypeManual, "admin@example.org", BulkFilter{Validity: "2025"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	_, err = orch.Retry(context.Background(), batch.ID)
	if !errors.Is(err, ErrNothingToRetry) {
		t.Fatalf("Expected ErrNothingToRetry, got %v", err)
	}

	var reloaded models.Batch
	db.First(&reloaded, "id = ?", batch.ID)
	if reloaded.RetryCount != 0 || reloaded.LastRetryAt != nil {
		t.Error("A no-op retry must not touch the batch's retry bookkeeping")
	}
}

func TestRetryRecoversFailedEntries(t *testing.T) {
	db := testDB(t)
	svc := newTestService(t, db, nil)
	orch := NewOrchestrator(db, svc, "MHM")

	broken := activeMember(t, db, "MHM-2025-00001")
	db.Model(broken).Update("email", "")

	batch, err := orch.RunFilter(context.Background(), "Flaky run", models.BatchTypeManual, "admin@example.org", BulkFilter{Validity: "2025"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if batch.FailedSends != 1 || batch.Status != models.BatchStatusPartial {
		t.Fatalf("Precondition: expected a partial batch with 1 failure, got %+v", batch)
	}

	// Fix the member, then retry.
	db.Model(broken).Update("email", "fixed@example.org")

	retried, err := orch.Retry(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if retried.SuccessfulSends != 1 || retried.FailedSends != 0 {
		t.Errorf("Expected counters 1 ok / 0 failed after retry, got %d/%d", retried.SuccessfulSends, retried.FailedSends)
	}
	if retried.Status != models.BatchStatusCompleted {
		t.Errorf("Expected status %s after recovery, got %s", models.BatchStatusCompleted, retried.Status)
	}
	if retried.RetryCount != 1 || retried.LastRetryAt == nil {
		t.Error("Retry bookkeeping should be recorded")
	}

	// The original result row was updated in place, not duplicated.
	var results []models.BatchResult
	db.Where("batch_id = ?", batch.ID).Find(&results)
	if len(results) != 1 {
		t.Fatalf("Expected 1 result row after retry, got %d", len(results))
	}
	if results[0].Outcome != models.BatchResultSuccess || results[0].Error != "" {
		t.Errorf("Result should be flipped to success, got %+v", results[0])
	}
}
