package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/auth"
	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/report"
	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/token"
	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/pkg/logger"
)

// RunLister reads back recorded report runs.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]*report.Run, error)
}

// Handler wires the OAuth flow, token manager and report runner onto the
// HTTP surface.
type Handler struct {
	manager *token.Manager
	flow    *auth.Flow
	runner  *report.Runner
	runs    RunLister
	metrics *Metrics
	logger  *logger.Logger
}

func New(manager *token.Manager, flow *auth.Flow, runner *report.Runner, runs RunLister, metrics *Metrics, log *logger.Logger) *Handler {
	return &Handler{
		manager: manager,
		flow:    flow,
		runner:  runner,
		runs:    runs,
		metrics: metrics,
		logger:  log,
	}
}

// Routes registers all endpoints on the router.
func (h *Handler) Routes(r *mux.Router) {
	r.Use(h.metrics.Middleware)

	r.HandleFunc("/", h.Home).Methods(http.MethodGet)
	r.HandleFunc("/login", h.Login).Methods(http.MethodGet)
	r.HandleFunc("/auth/start", h.AuthStart).Methods(http.MethodGet)
	r.HandleFunc("/callback", h.Callback).Methods(http.MethodGet)
	r.HandleFunc("/refresh", h.Refresh).Methods(http.MethodGet)
	r.HandleFunc("/run-report", h.RunReport).Methods(http.MethodGet)
	r.HandleFunc("/runs", h.ListRuns).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)
}

const homePage = `<!DOCTYPE html>
<html>
<head><title>Webex Calling Detailed Report</title></head>
<body>
<h1>Webex Calling Detailed Report</h1>
<p><a href="/login">Sign in with Webex</a> then <a href="/run-report">run a CDR report</a>.</p>
<p><a href="/runs">Previous runs</a></p>
</body>
</html>`

// Home serves the landing page.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, homePage)
}

// Login checks the stored token pair and either confirms the session or
// bounces through the authorization flow. A refreshable pair is refreshed
// in place by the manager.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	_, err := h.manager.EnsureValid(r.Context())
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "authenticated"})
	case errors.Is(err, token.ErrReauthRequired):
		http.Redirect(w, r, "/auth/start", http.StatusFound)
	default:
		h.writeError(w, err)
	}
}

// AuthStart redirects the browser to the provider's consent screen.
func (h *Handler) AuthStart(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.flow.Begin(r.Context(), w)
	if err != nil {
		h.logger.WithError(err).Error("failed to start authorization flow")
		h.writeError(w, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback completes the authorization-code exchange and hands off to the
// report run.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	if _, err := h.flow.Complete(r.Context(), w, r); err != nil {
		h.logger.WithError(err).Error("oauth callback failed")
		h.writeError(w, err)
		return
	}
	http.Redirect(w, r, "/run-report", http.StatusFound)
}

// Refresh forces a refresh exchange.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	_, err := h.manager.Refresh(r.Context())
	switch {
	case err == nil:
		h.metrics.tokenRefreshes.Inc()
		http.Redirect(w, r, "/run-report", http.StatusFound)
	case errors.Is(err, token.ErrReauthRequired):
		http.Redirect(w, r, "/auth/start", http.StatusFound)
	default:
		h.logger.WithError(err).Error("token refresh failed")
		h.writeError(w, err)
	}
}

// RunReport executes the full report pipeline and returns the run record.
func (h *Handler) RunReport(w http.ResponseWriter, r *http.Request) {
	run, err := h.runner.Run(r.Context())
	if run != nil {
		h.metrics.reportRuns.WithLabelValues(string(run.State)).Inc()
	}
	if err != nil {
		if errors.Is(err, token.ErrReauthRequired) {
			http.Redirect(w, r, "/auth/start", http.StatusFound)
			return
		}
		h.logger.WithError(err).Error("report run failed")
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

// ListRuns returns recorded runs, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if runs == nil {
		runs = []*report.Run{}
	}
	h.writeJSON(w, http.StatusOK, runs)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Error("failed to encode response")
	}
}

// writeError maps the error taxonomy onto HTTP status codes. Every error
// is surfaced to the caller, never swallowed.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, report.ErrInvalidRange):
		status = http.StatusBadRequest
	case errors.Is(err, report.ErrRunInProgress):
		status = http.StatusConflict
	case errors.Is(err, report.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, report.ErrGenerationFailed):
		status = http.StatusBadGateway
	case errors.Is(err, token.ErrProviderUnreachable):
		status = http.StatusBadGateway
	case errors.Is(err, token.ErrInvalidGrant):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrStateNotFound), errors.Is(err, auth.ErrStateMismatch):
		status = http.StatusBadRequest
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
