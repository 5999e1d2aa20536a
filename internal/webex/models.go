package webex

import "time"

// Report statuses as reported by the service. The poller only ever
// reflects these; it never infers state on its own.
const (
	StatusPending  = "PENDING"
	StatusRunning  = "RUNNING"
	StatusComplete = "COMPLETE"
	StatusFailed   = "FAILED"
)

// MaxReports is the server-side cap on stored reports per org.
const MaxReports = 50

// Report describes a server-side CDR report.
type Report struct {
	ID          string    `json:"id"`
	Title       string    `json:"title,omitempty"`
	StartDate   string    `json:"startDate,omitempty"`
	EndDate     string    `json:"endDate,omitempty"`
	Status      string    `json:"status"`
	DownloadURL string    `json:"downloadURL,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Created     time.Time `json:"created,omitempty"`
}

// CDRRecord is one row of call metadata, passed through to the exporter
// exactly as the API returned it.
type CDRRecord map[string]string

type createReportRequest struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type createReportResponse struct {
	ReportID string `json:"reportId"`
}

type listReportsResponse struct {
	Items []Report `json:"items"`
}

type downloadPage struct {
	Items  []CDRRecord `json:"items"`
	Cursor string      `json:"cursor,omitempty"`
}
