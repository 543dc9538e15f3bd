package issuance

import (
	"strings"
	"testing"
)

func TestParseRowsRejectsBadLines(t *testing.T) {
	input := strings.Join([]string{
		"memberId,firstName,lastName,dateOfBirth,email",
		"MHM-2025-00001,Alice,Martin,1990-01-15,alice@example.org",
		"MHM-2025-00002,Bob,Durand,15/03/1985,bob@example.org",
		",Carol,Lefevre,1992-07-01,carol@example.org",
		"MHM-2025-00004,Dan,Moreau,1988-11-30,",
		",Eve,,1991-02-02,eve@example.org",
		"MHM-2025-00006,Frank,Petit,not-a-date,frank@example.org",
		"MHM-2025-00007,Grace,Roux,1993-05-20,grace@example.org",
	}, "\n")

	rows, rowErrs, err := ParseRows(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseRows failed: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("Expected 4 accepted rows, got %d", len(rows))
	}
	if len(rowErrs) != 3 {
		t.Fatalf("Expected 3 rejected rows, got %d: %+v", len(rowErrs), rowErrs)
	}

	// Line numbers are 1-based including the header.
	reasons := map[int]string{}
	for _, re := range rowErrs {
		reasons[re.Line] = re.Reason
	}
	if !strings.Contains(reasons[5], "missing email") {
		t.Errorf("Line 5 should be rejected for missing email, got %q", reasons[5])
	}
	if !strings.Contains(reasons[6], "no member number") {
		t.Errorf("Line 6 should be rejected for unresolvable identity, got %q", reasons[6])
	}
	if !strings.Contains(reasons[7], "dateOfBirth") {
		t.Errorf("Line 7 should be rejected for a bad date, got %q", reasons[7])
	}

	// Both date formats parse to the same calendar dates.
	if rows[0].DateOfBirth == nil || rows[0].DateOfBirth.Format("2006-01-02") != "1990-01-15" {
		t.Errorf("ISO date not parsed: %+v", rows[0].DateOfBirth)
	}
	if rows[1].DateOfBirth == nil || rows[1].DateOfBirth.Format("2006-01-02") != "1985-03-15" {
		t.Errorf("DD/MM/YYYY date not parsed: %+v", rows[1].DateOfBirth)
	}

	// A row without a member number is fine when the name is complete.
	if rows[2].MemberNumber != "" || rows[2].FirstName != "Carol" {
		t.Errorf("Unexpected third row: %+v", rows[2])
	}
}

func TestParseRowsHeaderAliases(t *testing.T) {
	input := strings.Join([]string{
		"memberNumber,email,cin,entite,responsabilite",
		"MHM-2025-00001,alice@example.org,AB12345,Rabat,Treasurer",
	}, "\n")

	rows, rowErrs, err := ParseRows(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseRows failed: %v", err)
	}
	if len(rowErrs) != 0 {
		t.Fatalf("Expected no rejected rows, got %+v", rowErrs)
	}
	if rows[0].MemberNumber != "MHM-2025-00001" {
		t.Errorf("memberNumber alias not mapped, got %q", rows[0].MemberNumber)
	}
	if rows[0].Extras["cin"] != "AB12345" || rows[0].Extras["entite"] != "Rabat" || rows[0].Extras["responsabilite"] != "Treasurer" {
		t.Errorf("Extra columns not captured: %+v", rows[0].Extras)
	}
}

func TestParseRowsMissingEmailColumn(t *testing.T) {
	input := "memberId,firstName,lastName\nMHM-2025-00001,Alice,Martin\n"
	if _, _, err := ParseRows(strings.NewReader(input)); err == nil {
		t.Fatal("A CSV without an email column should fail outright")
	}
}
