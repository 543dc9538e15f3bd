package credential

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mhm-assoc/memberpass/internal/models"
)

func testMember() *models.Member {
	number := "MHM-2025-00006"
	dob := time.Date(1991, 7, 3, 0, 0, 0, 0, time.UTC)
	return &models.Member{
		ID:           "member-1",
		MemberNumber: &number,
		FirstName:    "Alice",
		LastName:     "Martin",
		Email:        "alice.martin@example.org",
		DateOfBirth:  &dob,
		MemberType:   "regular",
		Status:       models.MemberStatusActive,
	}
}

func TestEncodePayload(t *testing.T) {
	signer, _ := NewSigner("s3cr3t")
	encoder := NewEncoder(signer, "MHM")

	payload, err := encoder.Encode(testMember(), "2025")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if payload.MemberID != "MHM-2025-00006" {
		t.Errorf("MemberID mismatch: got %s", payload.MemberID)
	}
	if payload.Name != "Alice Martin" {
		t.Errorf("Name mismatch: got %s", payload.Name)
	}
	if payload.Association != "MHM" {
		t.Errorf("Association mismatch: got %s", payload.Association)
	}
	if payload.Status != "Active Member" {
		t.Errorf("Status should be humanized: got %s", payload.Status)
	}
	if payload.Signature != signer.Sign("MHM-2025-00006", "2025") {
		t.Error("Signature does not match the signer output")
	}
}

func TestEncodeDefaultsToCurrentYear(t *testing.T) {
	signer, _ := NewSigner("s3cr3t")
	encoder := NewEncoder(signer, "MHM")

	payload, err := encoder.Encode(testMember(), "")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if payload.Validity != CurrentValidity() {
		t.Errorf("Validity should default to the current year, got %s", payload.Validity)
	}
}

func TestEncodeRejectsUnapprovedMember(t *testing.T) {
	signer, _ := NewSigner("s3cr3t")
	encoder := NewEncoder(signer, "MHM")

	member := testMember()
	member.MemberNumber = nil
	if _, err := encoder.Encode(member, "2025"); err == nil {
		t.Fatal("Encode should fail for a member without a member number")
	}
}

func TestRenderWireFormat(t *testing.T) {
	signer, _ := NewSigner("s3cr3t")
	encoder := NewEncoder(signer, "MHM")

	payload, err := encoder.Encode(testMember(), "2025")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	dataURI, png, err := encoder.Render(payload)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.HasPrefix(dataURI, "data:image/png;base64,") {
		t.Errorf("Data URI should be base64 PNG, got prefix %q", dataURI[:min(len(dataURI), 30)])
	}
	if len(png) == 0 {
		t.Error("PNG buffer should not be empty")
	}

	// The serialized form must carry the exact wire field names.
	raw, _ := json.Marshal(payload)
	for _, field := range []string{"memberId", "name", "email", "association", "validity", "status", "signature"} {
		if !strings.Contains(string(raw), `"`+field+`"`) {
			t.Errorf("Wire format is missing field %q", field)
		}
	}
}

func TestParsePayload(t *testing.T) {
	signer, _ := NewSigner("s3cr3t")
	encoder := NewEncoder(signer, "MHM")
	payload, _ := encoder.Encode(testMember(), "2025")
	raw, _ := json.Marshal(payload)

	parsed, err := ParsePayload(string(raw))
	if err != nil {
		t.Fatalf("ParsePayload failed on a valid payload: %v", err)
	}
	if parsed != payload {
		t.Errorf("Round-trip mismatch: %+v != %+v", parsed, payload)
	}
}

func TestParsePayloadRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", "MHM-2025-00006"},
		{"empty object", "{}"},
		{"missing signature", `{"memberId":"MHM-2025-00006","validity":"2025"}`},
		{"missing memberId", `{"signature":"abc","validity":"2025"}`},
		{"missing validity", `{"memberId":"MHM-2025-00006","signature":"abc"}`},
	}

	for _, tc := range cases {
		if _, err := ParsePayload(tc.raw); err == nil {
			t.Errorf("%s: ParsePayload should fail", tc.name)
		}
	}
}
