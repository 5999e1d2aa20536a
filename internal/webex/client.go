package webex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/token"
	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/pkg/logger"
)

// TokenSource yields a usable access token for each API call.
type TokenSource interface {
	EnsureValid(ctx context.Context) (*token.Record, error)
}

// APIError is a non-2xx answer from the Webex API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("webex api: status %d: %s", e.StatusCode, e.Message)
}

// Transient reports whether the failure is worth a bounded retry: the
// provider being unreachable, throttling, or a server-side error.
func Transient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode >= http.StatusInternalServerError
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// Client talks to the Webex REST API with bearer auth and a bounded
// retry-with-backoff for transient failures.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	retryCount int
	logger     *logger.Logger
}

// NewClient creates a Webex API client.
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration, retryCount int, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		tokens:     tokens,
		retryCount: retryCount,
		logger:     log,
	}
}

// CreateReport submits a CDR report for the given window and returns the
// server-assigned report identifier.
func (c *Client) CreateReport(ctx context.Context, startTime, endTime string) (string, error) {
	body := createReportRequest{StartTime: startTime, EndTime: endTime}
	var resp createReportResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/reports", body, &resp); err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	if resp.ReportID == "" {
		return "", errors.New("create report: server returned no reportId")
	}
	return resp.ReportID, nil
}

// GetReport fetches the current status of a report by identifier.
func (c *Client) GetReport(ctx context.Context, reportID string) (*Report, error) {
	var rep Report
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/reports/"+url.PathEscape(reportID), nil, &rep); err != nil {
		return nil, fmt.Errorf("get report %s: %w", reportID, err)
	}
	return &rep, nil
}

// ListReports returns all reports currently held server-side.
func (c *Client) ListReports(ctx context.Context) ([]Report, error) {
	var resp listReportsResponse
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/reports", nil, &resp); err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return resp.Items, nil
}

// DeleteReport removes a report server-side.
func (c *Client) DeleteReport(ctx context.Context, reportID string) error {
	if err := c.do(ctx, http.MethodDelete, c.baseURL+"/reports/"+url.PathEscape(reportID), nil, nil); err != nil {
		return fmt.Errorf("delete report %s: %w", reportID, err)
	}
	return nil
}

// DownloadRows pulls every page of CDR rows from the report's download
// URL, following the server-supplied cursor until exhausted.
func (c *Client) DownloadRows(ctx context.Context, downloadURL string) ([]CDRRecord, error) {
	var rows []CDRRecord
	cursor := ""
	for {
		u, err := url.Parse(downloadURL)
		if err != nil {
			return nil, fmt.Errorf("download url: %w", err)
		}
		if cursor != "" {
			q := u.Query()
			q.Set("cursor", cursor)
			u.RawQuery = q.Encode()
		}
		var page downloadPage
		if err := c.do(ctx, http.MethodGet, u.String(), nil, &page); err != nil {
			return nil, fmt.Errorf("download rows: %w", err)
		}
		rows = append(rows, page.Items...)
		if page.Cursor == "" {
			return rows, nil
		}
		cursor = page.Cursor
	}
}

// Me probes token validity against the people endpoint.
func (c *Client) Me(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, c.baseURL+"/people/me", nil, nil)
}

// do performs one authorized API call, retrying transient failures with
// exponential backoff up to the configured count.
func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			c.logger.Warn("retrying webex api call",
				"method", method,
				"url", rawURL,
				"attempt", attempt+1,
				"backoff_seconds", backoff.Seconds(),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.doOnce(ctx, method, rawURL, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !Transient(err) {
			return err
		}
	}
	return fmt.Errorf("after %d attempts: %w", c.retryCount+1, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, rawURL string, body, out any) error {
	rec, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+rec.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
