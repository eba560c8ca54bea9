package sheets

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultExportBaseURL = "https://docs.google.com/spreadsheets/d"

// HTTPSourceConfig configures the CSV-export source.
type HTTPSourceConfig struct {
	// BaseURL overrides the export endpoint, for tests.
	BaseURL string
	Client  *http.Client
}

// HTTPSource reads ranges through the spreadsheet CSV export endpoint. It
// needs no credentials; the sheet must be link-readable.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource builds a source backed by the CSV export endpoint.
func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultExportBaseURL
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSource{baseURL: baseURL, client: client}
}

// NewSource returns the production source when a spreadsheet is configured
// and an empty static source otherwise, so local servers start without
// external dependencies.
func NewSource(spreadsheetID string) Source {
	if spreadsheetID == "" {
		return &StaticSource{}
	}
	return NewHTTPSource(HTTPSourceConfig{})
}

// ReadRange fetches the range as CSV and splits it into rows of cells.
func (s *HTTPSource) ReadRange(ctx context.Context, spreadsheetID, readRange string) ([][]string, error) {
	exportURL := fmt.Sprintf("%s/%s/gviz/tq?tqx=out:csv&range=%s",
		s.baseURL, url.PathEscape(spreadsheetID), url.QueryEscape(readRange))

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, exportURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("sheets: build export request: %w", err)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("sheets: fetch range %s: %w", readRange, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sheets: export endpoint returned status %d for range %s", response.StatusCode, readRange)
	}

	reader := csv.NewReader(response.Body)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("sheets: parse csv for range %s: %w", readRange, err)
	}
	return records, nil
}
