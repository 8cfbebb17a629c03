// Package handlers provides HTTP handler implementations for the public API.
//
// This file wires the handler set to the application services behind narrow
// interfaces. Handlers are transport-thin: they validate input, call the
// service layer, and translate results (including error taxonomy and
// conditional responses) into HTTP.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/leadpulse/marketing-ops-backend/internal/services"
	"github.com/leadpulse/marketing-ops-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// SyncService triggers lead reconciliation runs.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type SyncService interface {
	// Run executes one reconciliation pass. trigger is "manual" or
	// "scheduled"; only restricts the run to a single workspace when set.
	Run(ctx context.Context, trigger, only string) (*services.RunSummary, error)
}

// WebhookService ingests platform webhook deliveries.
type WebhookService interface {
	// Process routes one raw webhook payload and reports the outcome.
	Process(ctx context.Context, payload []byte) (*services.ProcessResult, error)
}

// DashboardService computes the dashboard aggregates.
type DashboardService interface {
	// Volume sums daily counters over an inclusive YYYY-MM-DD range.
	Volume(ctx context.Context, start, end string) (*services.VolumeReport, error)
	// Revenue computes the month's revenue from the billing model.
	Revenue(ctx context.Context, month string) (*services.RevenueReport, error)
	// Health evaluates data health over a trailing window of days.
	Health(ctx context.Context, windowDays int) (*services.HealthReport, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for sync, webhooks, dashboards, and the
// workspace registry. Registry reads and idempotency bookkeeping go straight
// to the repository layer; everything with business rules goes through the
// service interfaces.
type Handlers struct {
	syncSvc SyncService
	hookSvc WebhookService
	dashSvc DashboardService

	db      *gorm.DB
	idemTTL time.Duration
}

// New constructs a Handlers instance bound to the given services.
func New(syncSvc SyncService, hookSvc WebhookService, dashSvc DashboardService, db *gorm.DB, idemTTL time.Duration) *Handlers {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &Handlers{
		syncSvc: syncSvc,
		hookSvc: hookSvc,
		dashSvc: dashSvc,
		db:      db,
		idemTTL: idemTTL,
	}
}

//
// Shared DTOs and helpers
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// timeLayout is the wire format for timestamps in list responses.
const timeLayout = time.RFC3339

// nowUTC returns the current UTC time; split out so handlers share one clock.
func nowUTC() time.Time { return time.Now().UTC() }

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}
