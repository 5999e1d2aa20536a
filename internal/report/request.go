package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/config"
)

// ErrInvalidRange means the requested window cannot be submitted; it is
// rejected before any network call.
var ErrInvalidRange = errors.New("invalid report range")

// Request is the immutable description of one report run: either an
// explicit date window or a lookback in days, never both.
type Request struct {
	StartDate    time.Time
	EndDate      time.Time
	LookbackDays int
}

// Validate enforces mutual exclusivity and the provider's span limit.
func (r Request) Validate() error {
	hasDates := !r.StartDate.IsZero() || !r.EndDate.IsZero()
	if hasDates && r.LookbackDays > 0 {
		return fmt.Errorf("%w: date range and lookback days are mutually exclusive", ErrInvalidRange)
	}
	if !hasDates && r.LookbackDays <= 0 {
		return fmt.Errorf("%w: a date range or lookback days is required", ErrInvalidRange)
	}
	if r.LookbackDays > config.MaxReportSpanDays {
		return fmt.Errorf("%w: lookback of %d days exceeds %d", ErrInvalidRange, r.LookbackDays, config.MaxReportSpanDays)
	}
	if hasDates {
		if r.StartDate.IsZero() || r.EndDate.IsZero() {
			return fmt.Errorf("%w: start and end date must both be set", ErrInvalidRange)
		}
		if r.EndDate.Before(r.StartDate) {
			return fmt.Errorf("%w: end date before start date", ErrInvalidRange)
		}
		if int(r.EndDate.Sub(r.StartDate).Hours()/24) > config.MaxReportSpanDays {
			return fmt.Errorf("%w: span exceeds %d days", ErrInvalidRange, config.MaxReportSpanDays)
		}
	}
	return nil
}

// Window resolves the request into the concrete UTC timestamps submitted
// to the reports API. A lookback window ends at now.
func (r Request) Window(now time.Time) (start, end time.Time) {
	if r.LookbackDays > 0 {
		end = now.UTC()
		start = end.AddDate(0, 0, -r.LookbackDays)
		return start, end
	}
	return r.StartDate.UTC(), r.EndDate.UTC()
}
