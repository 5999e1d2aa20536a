package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/webex"
	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/pkg/logger"
)

// State is the poller's position in the report lifecycle. Terminal states
// are COMPLETE, FAILED and TIMED_OUT; the rest always advance.
type State string

const (
	StateSubmitted State = "SUBMITTED"
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateComplete  State = "COMPLETE"
	StateFailed    State = "FAILED"
	StateTimedOut  State = "TIMED_OUT"
)

var (
	// ErrGenerationFailed means the service reported the report as FAILED.
	ErrGenerationFailed = errors.New("report generation failed")

	// ErrTimeout means the report stayed non-terminal past the maximum wait.
	ErrTimeout = errors.New("report generation timed out")
)

// ReportAPI is the slice of the Webex client the poller needs.
type ReportAPI interface {
	CreateReport(ctx context.Context, startTime, endTime string) (string, error)
	GetReport(ctx context.Context, reportID string) (*webex.Report, error)
	DownloadRows(ctx context.Context, downloadURL string) ([]webex.CDRRecord, error)
}

// Result is the outcome of one poll cycle.
type Result struct {
	ReportID string
	State    State
	Rows     []webex.CDRRecord
	Polls    int
}

// Poller submits a report and drives it to a terminal state: it sleeps a
// fixed interval between status queries, stops polling the moment the
// maximum wait elapses, and downloads every result page on completion.
type Poller struct {
	api      ReportAPI
	interval time.Duration
	maxWait  time.Duration
	log      *logger.Logger
}

func NewPoller(api ReportAPI, interval, maxWait time.Duration, log *logger.Logger) *Poller {
	return &Poller{
		api:      api,
		interval: interval,
		maxWait:  maxWait,
		log:      log,
	}
}

// Run executes the full submit → poll → download cycle for the given
// window. The context cancels the loop between polls; partial pages
// already fetched are discarded with it.
func (p *Poller) Run(ctx context.Context, startTime, endTime string) (*Result, error) {
	reportID, err := p.api.CreateReport(ctx, startTime, endTime)
	if err != nil {
		return nil, err
	}
	res := &Result{ReportID: reportID, State: StateSubmitted}
	log := p.log.WithReportID(reportID)
	log.Info("report submitted", "start_time", startTime, "end_time", endTime)

	deadline := time.NewTimer(p.maxWait)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-deadline.C:
			res.State = StateTimedOut
			return res, fmt.Errorf("%w after %s", ErrTimeout, p.maxWait)
		case <-time.After(p.interval):
		}

		rep, err := p.api.GetReport(ctx, reportID)
		if err != nil {
			res.State = StateFailed
			return res, err
		}
		res.Polls++

		switch rep.Status {
		case webex.StatusPending:
			res.State = StatePending
		case webex.StatusRunning:
			res.State = StateRunning
		case webex.StatusComplete:
			res.State = StateComplete
			log.Info("report complete, downloading rows", "polls", res.Polls)
			rows, err := p.api.DownloadRows(ctx, rep.DownloadURL)
			if err != nil {
				res.State = StateFailed
				return res, err
			}
			res.Rows = rows
			return res, nil
		case webex.StatusFailed:
			res.State = StateFailed
			reason := rep.Reason
			if reason == "" {
				reason = "no reason given"
			}
			return res, fmt.Errorf("%w: %s", ErrGenerationFailed, reason)
		default:
			res.State = StateFailed
			return res, fmt.Errorf("%w: unexpected status %q", ErrGenerationFailed, rep.Status)
		}
		log.Debug("report not ready", "status", rep.Status, "polls", res.Polls)
	}
}
