package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CLIENT_ID", "test-client-id")
	t.Setenv("CLIENT_SECRET", "test-client-secret")
	t.Setenv("PUBLIC_URL", "https://app.example.com")
	t.Setenv("STATE_SECRET", "test-state-secret")
	t.Setenv("LOOKBACK_DAYS", "7")
	// keep ambient values from leaking into the test
	t.Setenv("START_DATE", "")
	t.Setenv("END_DATE", "")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.OAuth.TokenURL != "https://webexapis.com/v1/access_token" {
		t.Errorf("TokenURL = %q", cfg.OAuth.TokenURL)
	}
	if len(cfg.OAuth.Scopes) != 3 {
		t.Errorf("Scopes = %v", cfg.OAuth.Scopes)
	}
	if cfg.Report.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s", cfg.Report.PollInterval)
	}
	if cfg.Report.MaxWait != 30*time.Minute {
		t.Errorf("MaxWait = %v, want 30m", cfg.Report.MaxWait)
	}
	if cfg.Report.LookbackDays != 7 {
		t.Errorf("LookbackDays = %d, want 7", cfg.Report.LookbackDays)
	}
	if cfg.RedirectURL() != "https://app.example.com/callback" {
		t.Errorf("RedirectURL = %q", cfg.RedirectURL())
	}
}

func TestLoadRequiredFields(t *testing.T) {
	cases := []struct {
		name  string
		unset string
	}{
		{"missing client id", "CLIENT_ID"},
		{"missing client secret", "CLIENT_SECRET"},
		{"missing public url", "PUBLIC_URL"},
		{"missing state secret", "STATE_SECRET"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tc.unset, "")
			if _, err := Load(); err == nil {
				t.Errorf("expected error when %s is empty", tc.unset)
			}
		})
	}
}

func TestLoadExplicitDateRange(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOOKBACK_DAYS", "")
	t.Setenv("START_DATE", "2023-10-01")
	t.Setenv("END_DATE", "2023-10-15")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Report.StartDate != time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC) {
		t.Errorf("StartDate = %v", cfg.Report.StartDate)
	}
	if cfg.Report.EndDate != time.Date(2023, 10, 15, 0, 0, 0, 0, time.UTC) {
		t.Errorf("EndDate = %v", cfg.Report.EndDate)
	}
}

func TestLoadRejectsOversizedRange(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOOKBACK_DAYS", "")
	t.Setenv("START_DATE", "2023-10-01")
	t.Setenv("END_DATE", "2023-12-01")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for range over 31 days")
	}
	if !strings.Contains(err.Error(), "31") {
		t.Errorf("error should mention the 31-day limit: %v", err)
	}
}

func TestLoadRejectsReversedRange(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOOKBACK_DAYS", "")
	t.Setenv("START_DATE", "2023-10-15")
	t.Setenv("END_DATE", "2023-10-01")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when END_DATE precedes START_DATE")
	}
}

func TestLoadRejectsDatesWithLookback(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("START_DATE", "2023-10-01")
	t.Setenv("END_DATE", "2023-10-15")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for dates combined with LOOKBACK_DAYS")
	}
}

func TestLoadRejectsMissingRange(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOOKBACK_DAYS", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when neither dates nor lookback are set")
	}
}

func TestLoadRejectsPartialDates(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOOKBACK_DAYS", "")
	t.Setenv("START_DATE", "2023-10-01")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when only START_DATE is set")
	}
}

func TestLoadRejectsOversizedLookback(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOOKBACK_DAYS", "45")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for lookback over 31 days")
	}
}
