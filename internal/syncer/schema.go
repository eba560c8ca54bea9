package syncer

import (
	"fmt"
	"strings"
)

// Column names recognized in the source header row, after normalization
// (lower-cased, spaces mapped to underscores).
const (
	columnRepName = "rep_name"
	columnEmail   = "email"
	columnMonth   = "month"
	columnYear    = "year"
	columnSignups = "signups"
	columnRevenue = "revenue"
)

var (
	requiredColumns = []string{columnRepName, columnSignups}
	knownColumns    = []string{columnRepName, columnEmail, columnMonth, columnYear, columnSignups, columnRevenue}
)

// minPopulatedCells is the threshold below which a source row is skipped.
const minPopulatedCells = 2

// rowSchema maps normalized column names to their positions in the header row.
type rowSchema struct {
	positions map[string]int
	// missing lists known optional columns absent from the header.
	missing []string
}

// newRowSchema validates the header row against the expected schema. Missing
// required columns fail with a message naming each absent column; missing
// optional columns are recorded so callers can log them.
func newRowSchema(header []string) (*rowSchema, error) {
	positions := make(map[string]int, len(header))
	for index, cell := range header {
		normalized := normalizeHeader(cell)
		if normalized == "" {
			continue
		}
		if _, seen := positions[normalized]; !seen {
			positions[normalized] = index
		}
	}

	var missingRequired []string
	for _, column := range requiredColumns {
		if _, ok := positions[column]; !ok {
			missingRequired = append(missingRequired, column)
		}
	}
	if len(missingRequired) > 0 {
		return nil, fmt.Errorf("header row missing expected columns: %s", strings.Join(missingRequired, ", "))
	}

	var missingOptional []string
	for _, column := range knownColumns {
		if _, ok := positions[column]; !ok {
			missingOptional = append(missingOptional, column)
		}
	}
	return &rowSchema{positions: positions, missing: missingOptional}, nil
}

// mapRow resolves the named fields for one data row. Short rows are padded
// with empty cells rather than erroring.
func (s *rowSchema) mapRow(cells []string) map[string]string {
	mapped := make(map[string]string, len(s.positions))
	for column, index := range s.positions {
		if index < len(cells) {
			mapped[column] = strings.TrimSpace(cells[index])
		} else {
			mapped[column] = ""
		}
	}
	return mapped
}

// populatedCells counts non-blank cells in a raw row.
func populatedCells(cells []string) int {
	count := 0
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			count++
		}
	}
	return count
}

func normalizeHeader(cell string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(cell)), " ", "_")
}
