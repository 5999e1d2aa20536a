package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/webex"
	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/pkg/logger"
)

type fakeExporter struct {
	mu    sync.Mutex
	calls int
	rows  []webex.CDRRecord
	err   error
}

func (f *fakeExporter) Write(rows []webex.CDRRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.rows = rows
	if f.err != nil {
		return "", f.err
	}
	return "/tmp/cdr_output_test.csv", nil
}

type fakeHistory struct {
	mu   sync.Mutex
	runs []*Run
}

func (f *fakeHistory) RecordRun(_ context.Context, run *Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func newTestRunner(api *fakeReportAPI, exporter Exporter, history HistoryStore, req Request) *Runner {
	log := logger.New("ERROR")
	poller := NewPoller(api, time.Millisecond, time.Second, log)
	return NewRunner(poller, api, exporter, history, req, log)
}

func TestRunnerFullRun(t *testing.T) {
	api := &fakeReportAPI{
		statuses: []string{webex.StatusPending, webex.StatusComplete},
		pages: [][]webex.CDRRecord{
			{{"User": "alice", "Duration": "10"}, {"User": "bob", "Duration": "20"}},
		},
	}
	exporter := &fakeExporter{}
	history := &fakeHistory{}
	req := Request{StartDate: date(2023, 10, 1), EndDate: date(2023, 10, 15)}

	run, err := newTestRunner(api, exporter, history, req).Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if run.State != StateComplete {
		t.Errorf("state = %s, want COMPLETE", run.State)
	}
	if run.RowCount != 2 {
		t.Errorf("RowCount = %d, want 2", run.RowCount)
	}
	if run.CSVPath == "" {
		t.Error("expected CSV path on the run record")
	}
	if exporter.calls != 1 || len(exporter.rows) != run.RowCount {
		t.Errorf("exporter saw %d calls / %d rows", exporter.calls, len(exporter.rows))
	}
	if run.Summary == nil || run.Summary.TotalCalls != 2 {
		t.Errorf("unexpected summary: %+v", run.Summary)
	}
	if run.StartTime != "2023-10-01T00:00:00Z" || run.EndTime != "2023-10-15T00:00:00Z" {
		t.Errorf("window = %s..%s", run.StartTime, run.EndTime)
	}
	// server-side report cleaned up after processing
	if len(api.deleted) != 1 || api.deleted[0] != "report-1" {
		t.Errorf("expected report-1 deleted, got %v", api.deleted)
	}
	if len(history.runs) != 1 {
		t.Errorf("expected one history record, got %d", len(history.runs))
	}
}

func TestRunnerRejectsInvalidRangeBeforeNetwork(t *testing.T) {
	api := &fakeReportAPI{statuses: []string{webex.StatusComplete}}
	req := Request{StartDate: date(2023, 10, 1), EndDate: date(2023, 12, 1)}

	_, err := newTestRunner(api, &fakeExporter{}, &fakeHistory{}, req).Run(context.Background())
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if api.createCalls.Load() != 0 {
		t.Errorf("expected no network calls for invalid range, create was called %d times", api.createCalls.Load())
	}
}

func TestRunnerRejectsConcurrentRun(t *testing.T) {
	api := &fakeReportAPI{
		statuses: []string{webex.StatusPending, webex.StatusPending, webex.StatusComplete},
	}
	log := logger.New("ERROR")
	poller := NewPoller(api, 20*time.Millisecond, time.Second, log)
	runner := NewRunner(poller, api, &fakeExporter{}, &fakeHistory{}, Request{LookbackDays: 1}, log)

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if _, err := runner.Run(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress, got %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}
}

func TestRunnerFailedRunRecordedWithoutCSV(t *testing.T) {
	api := &fakeReportAPI{
		statuses: []string{webex.StatusFailed},
		reason:   "internal error",
	}
	exporter := &fakeExporter{}
	history := &fakeHistory{}

	run, err := newTestRunner(api, exporter, history, Request{LookbackDays: 7}).Run(context.Background())
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if exporter.calls != 0 {
		t.Errorf("no CSV may be written on failure, exporter called %d times", exporter.calls)
	}
	if run == nil || run.State != StateFailed || run.Error == "" {
		t.Errorf("failed run not recorded properly: %+v", run)
	}
	if len(history.runs) != 1 {
		t.Errorf("failures must land in history too, got %d records", len(history.runs))
	}
}

func TestRunnerMakesRoomAtReportCap(t *testing.T) {
	listed := make([]webex.Report, webex.MaxReports)
	for i := range listed {
		listed[i] = webex.Report{
			ID:      fmt.Sprintf("old-%d", i),
			Created: time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour),
		}
	}
	api := &fakeReportAPI{
		statuses: []string{webex.StatusComplete},
		pages:    [][]webex.CDRRecord{{{"User": "a"}}},
		listed:   listed,
	}

	_, err := newTestRunner(api, &fakeExporter{}, &fakeHistory{}, Request{LookbackDays: 1}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	// the oldest report plus this run's own report get deleted
	if len(api.deleted) != 2 {
		t.Fatalf("expected 2 deletions, got %v", api.deleted)
	}
	if api.deleted[0] != "old-0" {
		t.Errorf("expected oldest report deleted first, got %s", api.deleted[0])
	}
	if api.deleted[1] != "report-1" {
		t.Errorf("expected own report deleted last, got %s", api.deleted[1])
	}
}
