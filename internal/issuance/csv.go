package issuance

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
)

// Column aliases accepted in import headers. Matching is
// case-sensitive on the listed names.
var columnAliases = map[string][]string{
	"memberNumber":   {"memberId", "memberNumber"},
	"firstName":      {"firstName"},
	"lastName":       {"lastName"},
	"dateOfBirth":    {"dateOfBirth"},
	"email":          {"email"},
	"phone":          {"phone"},
	"address":        {"address"},
	"status":         {"status"},
	"memberType":     {"memberType"},
	"validity":       {"validity"},
	"cin":            {"cin"},
	"entite":         {"entite"},
	"responsabilite": {"responsabilite"},
}

// Date formats accepted for dateOfBirth.
var dobFormats = []string{"2006-01-02", "02/01/2006"}

// Row is one validated CSV import line.
type Row struct {
	Line         int
	MemberNumber string
	FirstName    string
	LastName     string
	DateOfBirth  *time.Time
	Email        string
	Phone        string
	Address      string
	Status       string
	MemberType   string
	Validity     string

	// Extras holds the free-text columns (cin, entite, responsabilite)
	// folded into the member's notes when a new member is created.
	Extras map[string]string
}

// RowError is a line rejected before processing. Rejected lines never
// count toward a batch's processed total.
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ParseRows reads a member import CSV. Invalid lines are collected as
// RowErrors; only a broken input stream or header is an error.
func ParseRows(r io.Reader) ([]Row, []RowError, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		name = strings.TrimSpace(name)
		for canonical, aliases := range columnAliases {
			for _, alias := range aliases {
				if name == alias {
					if _, taken := cols[canonical]; !taken {
						cols[canonical] = i
					}
				}
			}
		}
	}
	if _, ok := cols["email"]; !ok {
		return nil, nil, fmt.Errorf("CSV is missing an email column")
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []Row
	var rowErrs []RowError
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Reason: fmt.Sprintf("unreadable line: %v", err)})
			continue
		}

		row := Row{
			Line:         line,
			MemberNumber: field(record, "memberNumber"),
			FirstName:    field(record, "firstName"),
			LastName:     field(record, "lastName"),
			Email:        field(record, "email"),
			Phone:        field(record, "phone"),
			Address:      field(record, "address"),
			Status:       field(record, "status"),
			MemberType:   field(record, "memberType"),
			Validity:     field(record, "validity"),
		}

		if row.Email == "" {
			rowErrs = append(rowErrs, RowError{Line: line, Reason: "missing email"})
			continue
		}
		if row.MemberNumber == "" && (row.FirstName == "" || row.LastName == "") {
			rowErrs = append(rowErrs, RowError{Line: line, Reason: "no member number and no full name; cannot resolve or create a member"})
			continue
		}

		if dob := field(record, "dateOfBirth"); dob != "" {
			parsed, perr := parseDOB(dob)
			if perr != nil {
				rowErrs = append(rowErrs, RowError{Line: line, Reason: perr.Error()})
				continue
			}
			row.DateOfBirth = &parsed
		}

		extras := map[string]string{}
		for _, key := range []string{"cin", "entite", "responsabilite"} {
			if v := field(record, key); v != "" {
				extras[key] = v
			}
		}
		if len(extras) > 0 {
			row.Extras = extras
		}

		rows = append(rows, row)
	}

	return rows, rowErrs, nil
}

func parseDOB(value string) (time.Time, error) {
	for _, format := range dobFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable dateOfBirth %q (expected YYYY-MM-DD or DD/MM/YYYY)", value)
}
