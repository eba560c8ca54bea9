// Package sheets adapts the external tabular-data source behind a narrow
// interface and wraps it with the sync pipeline's retry policy.
package sheets

import "context"

// Source reads a rectangular cell range from a spreadsheet-like backend.
// The production implementation talks to the vendor API; tests and local
// development use StaticSource.
type Source interface {
	ReadRange(ctx context.Context, spreadsheetID, readRange string) ([][]string, error)
}

// StaticSource serves fixed rows keyed by range name. It stands in for the
// vendor client when no service-account credentials are configured.
type StaticSource struct {
	Rows map[string][][]string
}

// ReadRange returns the configured rows for the requested range.
func (s *StaticSource) ReadRange(_ context.Context, _ string, readRange string) ([][]string, error) {
	return s.Rows[readRange], nil
}
