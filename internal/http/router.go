// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/leadpulse/marketing-ops-backend/internal/bison"
	"github.com/leadpulse/marketing-ops-backend/internal/config"
	"github.com/leadpulse/marketing-ops-backend/internal/domain"
	"github.com/leadpulse/marketing-ops-backend/internal/http/handlers"
	"github.com/leadpulse/marketing-ops-backend/internal/http/middleware"
	"github.com/leadpulse/marketing-ops-backend/internal/notify"
	"github.com/leadpulse/marketing-ops-backend/internal/repo"
	"github.com/leadpulse/marketing-ops-backend/internal/services"
)

// syncRepoShim adapts the repository free functions to the services.SyncRepo
// interface expected by the SyncService. This keeps services decoupled from
// the concrete repo package while reusing existing functions.
type syncRepoShim struct{}

// ListActiveWorkspaces proxies repo.ListActiveWorkspaces.
func (syncRepoShim) ListActiveWorkspaces(ctx context.Context, db *gorm.DB) ([]domain.Workspace, error) {
	return repo.ListActiveWorkspaces(ctx, db)
}

// UpsertLeads proxies repo.UpsertLeads.
func (syncRepoShim) UpsertLeads(ctx context.Context, db *gorm.DB, leads []domain.Lead) error {
	return repo.UpsertLeads(ctx, db, leads)
}

// CreateSyncRun proxies repo.CreateSyncRun.
func (syncRepoShim) CreateSyncRun(ctx context.Context, db *gorm.DB, run *domain.SyncRun) error {
	return repo.CreateSyncRun(ctx, db, run)
}

// webhookRepoShim adapts the repository free functions to services.WebhookRepo.
type webhookRepoShim struct{}

func (webhookRepoShim) CreateWebhookDelivery(ctx context.Context, db *gorm.DB, eventType, workspace, payload string) (*domain.WebhookDelivery, error) {
	return repo.CreateWebhookDelivery(ctx, db, eventType, workspace, payload)
}

func (webhookRepoShim) FinishWebhookDelivery(ctx context.Context, db *gorm.DB, id string, success bool, processingMS int64, errMsg *string) error {
	return repo.FinishWebhookDelivery(ctx, db, id, success, processingMS, errMsg)
}

func (webhookRepoShim) TouchWebhookHealth(ctx context.Context, db *gorm.DB, workspace string, ok bool, errMsg *string, now time.Time) error {
	return repo.TouchWebhookHealth(ctx, db, workspace, ok, errMsg, now)
}

func (webhookRepoShim) IncrementDailyMetric(ctx context.Context, db *gorm.DB, workspace, date, metric string, delta int64) error {
	return repo.IncrementDailyMetric(ctx, db, workspace, date, metric, delta)
}

func (webhookRepoShim) CreateLeadReply(ctx context.Context, db *gorm.DB, reply *domain.LeadReply) error {
	return repo.CreateLeadReply(ctx, db, reply)
}

func (webhookRepoShim) UpdateLeadStageByEmail(ctx context.Context, db *gorm.DB, workspace, email, stage string) error {
	return repo.UpdateLeadStageByEmail(ctx, db, workspace, email, stage)
}

func (webhookRepoShim) UpsertLeads(ctx context.Context, db *gorm.DB, leads []domain.Lead) error {
	return repo.UpsertLeads(ctx, db, leads)
}

func (webhookRepoShim) AdjustActiveAccounts(ctx context.Context, db *gorm.DB, workspace string, delta int64) error {
	return repo.AdjustActiveAccounts(ctx, db, workspace, delta)
}

// metricsRepoShim adapts the repository free functions to services.MetricsRepo.
type metricsRepoShim struct{}

func (metricsRepoShim) SumMetricsBetween(ctx context.Context, db *gorm.DB, start, end string) ([]repo.WorkspaceTotals, error) {
	return repo.SumMetricsBetween(ctx, db, start, end)
}

func (metricsRepoShim) ListWorkspaces(ctx context.Context, db *gorm.DB) ([]domain.Workspace, error) {
	return repo.ListWorkspaces(ctx, db)
}

func (metricsRepoShim) CountInterestedLeadsBetween(ctx context.Context, db *gorm.DB, workspace string, start, end time.Time) (int64, error) {
	return repo.CountInterestedLeadsBetween(ctx, db, workspace, start, end)
}

func (metricsRepoShim) ListWebhookHealth(ctx context.Context, db *gorm.DB) ([]domain.WebhookHealth, error) {
	return repo.ListWebhookHealth(ctx, db)
}

// App bundles the long-lived application services constructed during route
// registration. The caller hands these to the scheduler so the periodic jobs
// share the exact instances (and the sync mutual exclusion) with the API.
type App struct {
	Sync     *services.SyncService
	Metrics  *services.MetricsService
	Notifier *notify.Sender
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per client IP, bypass on replay)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) *App {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction (lead emails show up in payloads)
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, workspace, key string, now time.Time) (bool, error) {
			if workspace == "" {
				workspace = "*"
			}
			rec, err := repo.GetIdempotency(ctx, db, "sync", workspace, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 8) Token-bucket rate limiter per client IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: platform clients ← config, services ← repo/db
	instances := map[string]services.Instance{
		"Maverick": newInstance(cfg.Bison.MaverickBaseURL, cfg.Bison.MaverickAPIKey, cfg.Bison),
		"LongRun":  newInstance(cfg.Bison.LongRunBaseURL, cfg.Bison.LongRunAPIKey, cfg.Bison),
	}

	syncSvc := services.NewSyncService(db, syncRepoShim{}, instances, log.Logger)
	syncSvc.BatchSize = cfg.UpsertBatchSize
	syncSvc.Writes = rate.NewLimiter(rate.Limit(cfg.Bison.WriteRPS), 1)
	syncSvc.WorkspaceSettle = cfg.Bison.WorkspaceSettle

	notifier := notify.NewSender(cfg.Slack.WebhookURL)
	hookSvc := services.NewWebhookService(db, webhookRepoShim{}, notifier, siteRoot(cfg.Bison.MaverickBaseURL), log.Logger)

	dashSvc := services.NewMetricsService(db, metricsRepoShim{}, services.Thresholds{
		MinReplyRate:  cfg.Alerts.MinReplyRate,
		MaxBounceRate: cfg.Alerts.MaxBounceRate,
	})

	h := handlers.New(syncSvc, hookSvc, dashSvc, db, cfg.IdempotencyTTL)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Sync
		api.POST("/sync/leads", h.TriggerSync)
		api.GET("/sync/runs", h.ListSyncRuns)

		// Webhooks
		api.POST("/webhooks/bison", h.ReceiveWebhook)

		// Dashboard
		api.GET("/dashboard/volume", h.Volume)
		api.GET("/dashboard/revenue", h.Revenue)
		api.GET("/dashboard/health", h.HealthReport)

		// Workspace registry
		api.GET("/workspaces", h.ListWorkspaces)
		api.GET("/workspaces/:name/leads", h.ListWorkspaceLeads)
	}

	return &App{Sync: syncSvc, Metrics: dashSvc, Notifier: notifier}
}

// newInstance builds one Email Bison client with the configured pacing.
func newInstance(baseURL, apiKey string, bc config.BisonConfig) services.Instance {
	client := bison.NewClient(baseURL, apiKey,
		bison.WithPageSize(bc.PageSize),
		bison.WithSettle(bc.SwitchSettle),
		bison.WithLimiter(rate.NewLimiter(rate.Limit(bc.PageRPS), 1)),
	)
	return services.Instance{Puller: client, InboxBase: siteRoot(baseURL)}
}

// siteRoot strips the API suffix from an instance base URL, yielding the web
// root used for inbox deep links.
func siteRoot(baseURL string) string {
	return strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/api")
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
