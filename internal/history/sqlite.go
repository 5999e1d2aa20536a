// Package history persists finished report runs in a local sqlite file.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	report_id TEXT,
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	state TEXT NOT NULL,
	row_count INTEGER NOT NULL DEFAULT 0,
	csv_path TEXT,
	error TEXT,
	summary_json TEXT,
	started_at TIMESTAMP NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// SQLiteStore implements report.HistoryStore on a local database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ report.HistoryStore = &SQLiteStore{}

// New opens (and migrates) the history database at the given path.
func New(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordRun inserts one finished run.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *report.Run) error {
	var summaryJSON []byte
	if run.Summary != nil {
		var err error
		summaryJSON, err = json.Marshal(run.Summary)
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, report_id, start_time, end_time, state, row_count, csv_path, error, summary_json, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ReportID, run.StartTime, run.EndTime, string(run.State),
		run.RowCount, run.CSVPath, run.Error, string(summaryJSON),
		run.StartedAt, run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*report.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, report_id, start_time, end_time, state, row_count, csv_path, error, summary_json, started_at, duration_ms
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*report.Run
	for rows.Next() {
		var run report.Run
		var state, summaryJSON string
		var durationMS int64
		if err := rows.Scan(&run.ID, &run.ReportID, &run.StartTime, &run.EndTime, &state,
			&run.RowCount, &run.CSVPath, &run.Error, &summaryJSON, &run.StartedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.State = report.State(state)
		run.Duration = time.Duration(durationMS) * time.Millisecond
		if summaryJSON != "" {
			var summary report.Summary
			if err := json.Unmarshal([]byte(summaryJSON), &summary); err == nil {
				run.Summary = &summary
			}
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
