// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database access, Email Bison credentials,
// sync pacing, alert thresholds, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "marketing-ops-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// BisonConfig holds credentials and pacing knobs for the Email Bison
// platform instances. Each instance has its own base URL and shared
// super-admin key; workspace-scoped keys live in the workspace registry.
type BisonConfig struct {
	MaverickBaseURL string // BISON_MAVERICK_BASE_URL
	MaverickAPIKey  string // BISON_MAVERICK_API_KEY
	LongRunBaseURL  string // BISON_LONGRUN_BASE_URL
	LongRunAPIKey   string // BISON_LONGRUN_API_KEY

	PageSize int // replies page size per request

	// SwitchSettle is how long to wait after a successful switch-workspace
	// call before trusting the session context. The switch is asynchronous
	// on the platform side; this is an empirical workaround, so it stays
	// configurable rather than hardcoded.
	SwitchSettle time.Duration

	// WorkspaceSettle is the pause between workspaces in a sequential run,
	// protecting the shared session from context bleed.
	WorkspaceSettle time.Duration

	// PageRPS / WriteRPS bound request pacing against the Bison API and the
	// storage backend (token-bucket, requests per second).
	PageRPS  float64
	WriteRPS float64
}

// SlackConfig defines where operational notifications are delivered.
type SlackConfig struct {
	WebhookURL string // SLACK_WEBHOOK_URL; empty disables delivery
}

// AlertConfig holds the data-health thresholds evaluated by the health check.
// Rates are fractions in [0,1].
type AlertConfig struct {
	MinReplyRate  float64 // alert when reply rate falls below this
	MaxBounceRate float64 // alert when bounce rate exceeds this
}

// SchedulerConfig controls the in-process periodic jobs.
type SchedulerConfig struct {
	Enabled             bool
	SyncInterval        time.Duration // full lead sync across active workspaces
	HealthCheckInterval time.Duration // threshold evaluation + Slack alerting
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DatabaseURL     string // Postgres DSN
	UpsertBatchSize int    // lead upsert batch size

	// Integrations
	Bison BisonConfig
	Slack SlackConfig

	// Alerting and scheduling
	Alerts    AlertConfig
	Scheduler SchedulerConfig

	// Rate limiting (HTTP edge)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DatabaseURL:     getenv("DATABASE_URL", ""),
		UpsertBatchSize: getint("UPSERT_BATCH_SIZE", 100),

		// Email Bison instances
		Bison: BisonConfig{
			MaverickBaseURL: getenv("BISON_MAVERICK_BASE_URL", "https://send.maverickmarketingllc.com/api"),
			MaverickAPIKey:  getenv("BISON_MAVERICK_API_KEY", ""),
			LongRunBaseURL:  getenv("BISON_LONGRUN_BASE_URL", "https://send.longrun.agency/api"),
			LongRunAPIKey:   getenv("BISON_LONGRUN_API_KEY", ""),
			PageSize:        getint("BISON_PAGE_SIZE", 100),
			SwitchSettle:    getdur("BISON_SWITCH_SETTLE", 3*time.Second),
			WorkspaceSettle: getdur("BISON_WORKSPACE_SETTLE", 5*time.Second),
			PageRPS:         getfloat("BISON_PAGE_RPS", 5.0),
			WriteRPS:        getfloat("BISON_WRITE_RPS", 10.0),
		},

		// Notifications
		Slack: SlackConfig{
			WebhookURL: getenv("SLACK_WEBHOOK_URL", ""),
		},

		// Data-health thresholds
		Alerts: AlertConfig{
			MinReplyRate:  getfloat("ALERT_MIN_REPLY_RATE", 0.01),
			MaxBounceRate: getfloat("ALERT_MAX_BOUNCE_RATE", 0.03),
		},

		// Periodic jobs
		Scheduler: SchedulerConfig{
			Enabled:             getbool("SCHEDULER_ENABLED", true),
			SyncInterval:        getdur("SYNC_INTERVAL", 6*time.Hour),
			HealthCheckInterval: getdur("HEALTH_CHECK_INTERVAL", 24*time.Hour),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "marketing-ops-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.UpsertBatchSize < 1 {
		return cfg, errors.New("UPSERT_BATCH_SIZE must be >= 1")
	}
	if cfg.Bison.PageSize < 1 {
		return cfg, errors.New("BISON_PAGE_SIZE must be >= 1")
	}
	if cfg.Bison.SwitchSettle < 0 || cfg.Bison.WorkspaceSettle < 0 {
		return cfg, errors.New("Bison settle delays must be >= 0")
	}
	if cfg.Bison.PageRPS <= 0 || cfg.Bison.WriteRPS <= 0 {
		return cfg, errors.New("BISON_PAGE_RPS and BISON_WRITE_RPS must be > 0")
	}
	if cfg.Alerts.MinReplyRate < 0 || cfg.Alerts.MinReplyRate > 1 {
		return cfg, errors.New("ALERT_MIN_REPLY_RATE must be in [0,1]")
	}
	if cfg.Alerts.MaxBounceRate < 0 || cfg.Alerts.MaxBounceRate > 1 {
		return cfg, errors.New("ALERT_MAX_BOUNCE_RATE must be in [0,1]")
	}
	if cfg.Scheduler.SyncInterval <= 0 || cfg.Scheduler.HealthCheckInterval <= 0 {
		return cfg, errors.New("scheduler intervals must be positive durations")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
