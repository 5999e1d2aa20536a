package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/report"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Logf("close store: %v", err)
		}
	})
	return store
}

func TestRecordAndListRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &report.Run{
		ID:        "run-1",
		ReportID:  "report-1",
		StartTime: "2023-10-01T00:00:00Z",
		EndTime:   "2023-10-15T00:00:00Z",
		State:     report.StateComplete,
		RowCount:  42,
		CSVPath:   "/data/cdr_output_20231015_093000.csv",
		Summary:   &report.Summary{TotalCalls: 42, ConnectedCalls: 30},
		StartedAt: time.Date(2023, 10, 15, 9, 0, 0, 0, time.UTC),
		Duration:  90 * time.Second,
	}
	if err := store.RecordRun(ctx, first); err != nil {
		t.Fatalf("RecordRun error: %v", err)
	}

	second := &report.Run{
		ID:        "run-2",
		StartTime: "2023-10-16T00:00:00Z",
		EndTime:   "2023-10-17T00:00:00Z",
		State:     report.StateFailed,
		Error:     "report generation failed: CDR source unavailable",
		StartedAt: time.Date(2023, 10, 17, 9, 0, 0, 0, time.UTC),
		Duration:  5 * time.Second,
	}
	if err := store.RecordRun(ctx, second); err != nil {
		t.Fatalf("RecordRun error: %v", err)
	}

	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	// newest first
	if runs[0].ID != "run-2" || runs[1].ID != "run-1" {
		t.Errorf("unexpected order: %s, %s", runs[0].ID, runs[1].ID)
	}

	got := runs[1]
	if got.State != report.StateComplete || got.RowCount != 42 {
		t.Errorf("run-1 round trip mismatch: %+v", got)
	}
	if got.Duration != 90*time.Second {
		t.Errorf("duration = %v, want 90s", got.Duration)
	}
	if got.Summary == nil || got.Summary.TotalCalls != 42 {
		t.Errorf("summary not preserved: %+v", got.Summary)
	}
	if runs[0].Error == "" {
		t.Error("failed run must keep its error message")
	}
}

func TestListRunsLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		run := &report.Run{
			ID:        string(rune('a' + i)),
			StartTime: "2023-10-01T00:00:00Z",
			EndTime:   "2023-10-02T00:00:00Z",
			State:     report.StateComplete,
			StartedAt: time.Date(2023, 10, 1, i, 0, 0, 0, time.UTC),
		}
		if err := store.RecordRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := store.ListRuns(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 {
		t.Errorf("runs = %d, want 3", len(runs))
	}
}

func TestListRunsEmpty(t *testing.T) {
	store := newTestStore(t)
	runs, err := store.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns error: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}
