package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MaxReportSpanDays is the widest date range the reports API accepts.
const MaxReportSpanDays = 31

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	OAuth   OAuthConfig
	Webex   WebexConfig
	Report  ReportConfig
	Storage StorageConfig
	Logging LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host      string
	Port      string
	PublicURL string
}

// OAuthConfig holds the Webex integration credentials and endpoints
type OAuthConfig struct {
	ClientID         string
	ClientSecret     string
	Scopes           []string
	AuthorizationURL string
	TokenURL         string
	StateSecret      string
	StateTTL         time.Duration
	EnablePKCE       bool
}

// WebexConfig holds Webex API client configuration
type WebexConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	RetryCount     int
}

// ReportConfig holds the CDR report date range and polling behavior
type ReportConfig struct {
	StartDate    time.Time
	EndDate      time.Time
	LookbackDays int
	PollInterval time.Duration
	MaxWait      time.Duration
}

// StorageConfig holds token, history and output locations
type StorageConfig struct {
	TokenFilePath string
	OutputDir     string
	HistoryDBPath string
	MongoURI      string
	RedisAddr     string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Host:      getEnv("HOST", "0.0.0.0"),
			Port:      getEnv("PORT", "8080"),
			PublicURL: getEnv("PUBLIC_URL", ""),
		},
		OAuth: OAuthConfig{
			ClientID:         getEnv("CLIENT_ID", ""),
			ClientSecret:     getEnv("CLIENT_SECRET", ""),
			Scopes:           parseStringList(getEnv("SCOPES", "spark:calls_read,spark-admin:calling_cdr_read,spark:people_read")),
			AuthorizationURL: getEnv("AUTHORIZATION_BASE_URL", "https://webexapis.com/v1/authorize"),
			TokenURL:         getEnv("TOKEN_URL", "https://webexapis.com/v1/access_token"),
			StateSecret:      getEnv("STATE_SECRET", ""),
			StateTTL:         parseDuration(getEnv("STATE_TTL", "10m"), 10*time.Minute),
			EnablePKCE:       parseBool(getEnv("ENABLE_PKCE", "false"), false),
		},
		Webex: WebexConfig{
			BaseURL:        getEnv("WEBEX_BASE_URL", "https://webexapis.com/v1"),
			RequestTimeout: parseDuration(getEnv("WEBEX_REQUEST_TIMEOUT", "30s"), 30*time.Second),
			RetryCount:     parseInt(getEnv("WEBEX_RETRY_COUNT", "3"), 3),
		},
		Report: ReportConfig{
			LookbackDays: parseInt(getEnv("LOOKBACK_DAYS", "0"), 0),
			PollInterval: parseDuration(getEnv("REPORT_POLL_INTERVAL", "30s"), 30*time.Second),
			MaxWait:      parseDuration(getEnv("REPORT_MAX_WAIT", "30m"), 30*time.Minute),
		},
		Storage: StorageConfig{
			TokenFilePath: getEnv("TOKEN_FILE_PATH", "./data/token.json"),
			OutputDir:     getEnv("OUTPUT_DIR", "./data"),
			HistoryDBPath: getEnv("HISTORY_DB_PATH", "./data/history.db"),
			MongoURI:      getEnv("MONGO_URI", ""),
			RedisAddr:     getEnv("REDIS_ADDR", ""),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "INFO"),
		},
	}

	if err := parseDates(config); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func parseDates(c *Config) error {
	start := getEnv("START_DATE", "")
	end := getEnv("END_DATE", "")
	if start == "" && end == "" {
		return nil
	}
	if start == "" || end == "" {
		return fmt.Errorf("START_DATE and END_DATE must both be set")
	}
	var err error
	c.Report.StartDate, err = time.Parse("2006-01-02", start)
	if err != nil {
		return fmt.Errorf("invalid START_DATE %q: %w", start, err)
	}
	c.Report.EndDate, err = time.Parse("2006-01-02", end)
	if err != nil {
		return fmt.Errorf("invalid END_DATE %q: %w", end, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.OAuth.ClientID == "" {
		return fmt.Errorf("CLIENT_ID is required")
	}
	if c.OAuth.ClientSecret == "" {
		return fmt.Errorf("CLIENT_SECRET is required")
	}
	if c.Server.PublicURL == "" {
		return fmt.Errorf("PUBLIC_URL is required")
	}
	if c.OAuth.StateSecret == "" {
		return fmt.Errorf("STATE_SECRET is required")
	}

	r := c.Report
	hasDates := !r.StartDate.IsZero() || !r.EndDate.IsZero()
	if hasDates && r.LookbackDays > 0 {
		return fmt.Errorf("START_DATE/END_DATE and LOOKBACK_DAYS are mutually exclusive")
	}
	if !hasDates && r.LookbackDays <= 0 {
		return fmt.Errorf("either START_DATE/END_DATE or LOOKBACK_DAYS is required")
	}
	if r.LookbackDays > MaxReportSpanDays {
		return fmt.Errorf("LOOKBACK_DAYS must be between 1 and %d", MaxReportSpanDays)
	}
	if hasDates {
		if r.EndDate.Before(r.StartDate) {
			return fmt.Errorf("END_DATE cannot be earlier than START_DATE")
		}
		if int(r.EndDate.Sub(r.StartDate).Hours()/24) > MaxReportSpanDays {
			return fmt.Errorf("date range should not exceed %d days", MaxReportSpanDays)
		}
	}
	return nil
}

// RedirectURL is the OAuth callback the provider redirects back to.
func (c *Config) RedirectURL() string {
	return strings.TrimSuffix(c.Server.PublicURL, "/") + "/callback"
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// parseInt parses string to int with default value
func parseInt(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// parseBool parses string to bool with default value
func parseBool(value string, defaultValue bool) bool {
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

// parseDuration parses string to time.Duration with default value
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

// parseStringList parses comma-separated string to slice
func parseStringList(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
