package report

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/webex"
	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/pkg/logger"
)

// ErrRunInProgress means a report run is already in flight; concurrent
// runs are not coordinated, only rejected.
var ErrRunInProgress = errors.New("a report run is already in progress")

// ManagementAPI is the slice of the Webex client the runner needs beyond
// polling: housekeeping of the server-side report list.
type ManagementAPI interface {
	ListReports(ctx context.Context) ([]webex.Report, error)
	DeleteReport(ctx context.Context, reportID string) error
}

// Exporter flattens CDR rows to a file and returns its path.
type Exporter interface {
	Write(rows []webex.CDRRecord) (string, error)
}

// HistoryStore records finished runs.
type HistoryStore interface {
	RecordRun(ctx context.Context, run *Run) error
}

// Run is the durable record of one report run.
type Run struct {
	ID        string        `json:"id"`
	ReportID  string        `json:"report_id,omitempty"`
	StartTime string        `json:"start_time"`
	EndTime   string        `json:"end_time"`
	State     State         `json:"state"`
	RowCount  int           `json:"row_count"`
	CSVPath   string        `json:"csv_path,omitempty"`
	Error     string        `json:"error,omitempty"`
	Summary   *Summary      `json:"summary,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Runner orchestrates a full report run: validate the window, make room
// under the server's report cap, submit and poll, export the rows, then
// delete the server-side report and record the outcome.
type Runner struct {
	mu       sync.Mutex
	poller   *Poller
	mgmt     ManagementAPI
	exporter Exporter
	history  HistoryStore
	request  Request
	now      func() time.Time
	log      *logger.Logger
}

func NewRunner(poller *Poller, mgmt ManagementAPI, exporter Exporter, history HistoryStore, request Request, log *logger.Logger) *Runner {
	return &Runner{
		poller:   poller,
		mgmt:     mgmt,
		exporter: exporter,
		history:  history,
		request:  request,
		now:      time.Now,
		log:      log,
	}
}

// Run executes one report run end to end. A second caller while one is in
// flight gets ErrRunInProgress immediately.
func (r *Runner) Run(ctx context.Context) (*Run, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()

	if err := r.request.Validate(); err != nil {
		return nil, err
	}
	started := r.now().UTC()
	start, end := r.request.Window(started)

	run := &Run{
		ID:        uuid.NewString(),
		StartTime: start.Format(time.RFC3339),
		EndTime:   end.Format(time.RFC3339),
		State:     StateSubmitted,
		StartedAt: started,
	}
	log := r.log.WithRunID(run.ID)

	err := r.execute(ctx, run, log)
	run.Duration = r.now().UTC().Sub(started)
	if err != nil {
		run.Error = err.Error()
	}
	if r.history != nil {
		if herr := r.history.RecordRun(ctx, run); herr != nil {
			log.WithError(herr).Warn("failed to record run history")
		}
	}
	if err != nil {
		return run, err
	}
	log.Info("report run complete",
		"rows", run.RowCount,
		"csv_path", run.CSVPath,
		"duration", run.Duration.String(),
	)
	return run, nil
}

func (r *Runner) execute(ctx context.Context, run *Run, log *logger.Logger) error {
	if err := r.ensureCapacity(ctx, log); err != nil {
		return err
	}

	res, err := r.poller.Run(ctx, run.StartTime, run.EndTime)
	if res != nil {
		run.ReportID = res.ReportID
		run.State = res.State
	}
	if err != nil {
		return err
	}

	run.RowCount = len(res.Rows)
	run.Summary = Summarize(res.Rows)

	if run.RowCount > 0 {
		path, err := r.exporter.Write(res.Rows)
		if err != nil {
			return err
		}
		run.CSVPath = path
	} else {
		log.Warn("no CDR rows returned for window")
	}

	// The server-side report has served its purpose; keep the org's
	// report list from filling up.
	if err := r.mgmt.DeleteReport(ctx, res.ReportID); err != nil {
		log.WithError(err).Warn("failed to delete server-side report", "report_id", res.ReportID)
	}
	return nil
}

// ensureCapacity deletes the oldest server-side reports when the list sits
// at the provider's cap, so the creation request cannot be rejected for
// capacity.
func (r *Runner) ensureCapacity(ctx context.Context, log *logger.Logger) error {
	reports, err := r.mgmt.ListReports(ctx)
	if err != nil {
		return err
	}
	if len(reports) < webex.MaxReports {
		return nil
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Created.Before(reports[j].Created)
	})
	excess := len(reports) - webex.MaxReports + 1
	for _, rep := range reports[:excess] {
		log.Info("deleting old report to stay under cap", "report_id", rep.ID, "created", rep.Created)
		if err := r.mgmt.DeleteReport(ctx, rep.ID); err != nil {
			return err
		}
	}
	return nil
}
