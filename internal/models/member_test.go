package models

import (
	"testing"
	"time"
)

func TestApplyCardPreservesScanHistory(t *testing.T) {
	scanned := time.Now().Add(-time.Hour)
	m := Member{
		FirstName: "Alice",
		LastName:  "Martin",
		Card: Card{
			Code:               "0011223344556677",
			Signature:          "old-signature",
			Validity:           "2024",
			NotificationStatus: NotificationSent,
			ScanCount:          7,
			LastScannedAt:      &scanned,
		},
	}

	issued := time.Now()
	m.ApplyCard("8899aabbccddeeff", "new-signature", "2025", "/cards/MHM-2025-00006.png", issued)

	if m.Card.Signature != "new-signature" || m.Card.Validity != "2025" {
		t.Errorf("New credential not applied: %+v", m.Card)
	}
	if m.Card.NotificationStatus != NotificationPending {
		t.Errorf("Fresh card should start with pending delivery, got %s", m.Card.NotificationStatus)
	}
	if m.Card.ScanCount != 7 || m.Card.LastScannedAt == nil {
		t.Error("Scan history must survive re-issuance")
	}
	if !m.Card.Issued() {
		t.Error("Card with a signature should report as issued")
	}
}

func TestMemberNumberBeforeApproval(t *testing.T) {
	m := Member{FirstName: "Bob", LastName: "Durand", Status: MemberStatusPending}
	if m.Number() != "" {
		t.Errorf("Unapproved member should have no number, got %q", m.Number())
	}

	number := "MHM-2025-00001"
	m.MemberNumber = &number
	if m.Number() != number {
		t.Errorf("Expected %s, got %s", number, m.Number())
	}
}

func TestStatusLabels(t *testing.T) {
	cases := map[string]string{
		MemberStatusPending:   "Pending Approval",
		MemberStatusActive:    "Active Member",
		MemberStatusSuspended: "Suspended",
		"weird":               "weird",
	}
	for status, want := range cases {
		m := Member{Status: status}
		if got := m.StatusLabel(); got != want {
			t.Errorf("Status %s: expected %q, got %q", status, want, got)
		}
	}
}

func TestBatchFinishStatus(t *testing.T) {
	b := Batch{SuccessfulSends: 5}
	if b.FinishStatus() != BatchStatusCompleted {
		t.Errorf("No failures should finish completed, got %s", b.FinishStatus())
	}
	b.FailedSends = 1
	if b.FinishStatus() != BatchStatusPartial {
		t.Errorf("Any failure should finish partial, got %s", b.FinishStatus())
	}
}
