// Package export flattens CDR rows into CSV files for offline analysis.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/webex"
)

const baseFilename = "cdr_output"

// CSVExporter writes one timestamped CSV per run under a fixed directory.
type CSVExporter struct {
	dir string
	now func() time.Time
}

func NewCSVExporter(dir string) *CSVExporter {
	return &CSVExporter{dir: dir, now: time.Now}
}

// Write dumps the rows with a header of the field names, one row per
// record, and returns the file path. Nothing is written for zero rows.
func (e *CSVExporter) Write(rows []webex.CDRRecord) (string, error) {
	if len(rows) == 0 {
		return "", fmt.Errorf("no data provided to write to CSV")
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	columns := columnsOf(rows)
	filename := fmt.Sprintf("%s_%s.csv", baseFilename, e.now().Format("20060102_150405"))
	path := filepath.Join(e.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	line := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			line[i] = row[col]
		}
		if err := w.Write(line); err != nil {
			return "", fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return path, nil
}

// columnsOf returns the sorted union of field names across all rows, so
// the header is deterministic even when rows carry uneven field sets.
func columnsOf(rows []webex.CDRRecord) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return columns
}
