// Package services – MetricsService
//
// This file implements the dashboard aggregation endpoints: sending volume
// with derived rates, revenue from the billing model, and data-health
// evaluation against configured thresholds. All date ranges are inclusive
// YYYY-MM-DD strings matching the daily metric rows.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/leadpulse/marketing-ops-backend/internal/domain"
	"github.com/leadpulse/marketing-ops-backend/internal/repo"
)

// MetricsRepo defines the persistence contract required by MetricsService.
type MetricsRepo interface {
	SumMetricsBetween(ctx context.Context, db *gorm.DB, start, end string) ([]repo.WorkspaceTotals, error)
	ListWorkspaces(ctx context.Context, db *gorm.DB) ([]domain.Workspace, error)
	CountInterestedLeadsBetween(ctx context.Context, db *gorm.DB, workspace string, start, end time.Time) (int64, error)
	ListWebhookHealth(ctx context.Context, db *gorm.DB) ([]domain.WebhookHealth, error)
}

// Thresholds holds the data-health limits evaluated by Health.
type Thresholds struct {
	MinReplyRate  float64
	MaxBounceRate float64
}

// MetricsService computes dashboard aggregates.
type MetricsService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the persistence contract.
	Repo MetricsRepo
	// Limits are the health thresholds.
	Limits Thresholds
	// Now is the clock seam.
	Now func() time.Time
}

// NewMetricsService constructs a MetricsService.
func NewMetricsService(db *gorm.DB, r MetricsRepo, limits Thresholds) *MetricsService {
	return &MetricsService{
		DB:     db,
		Repo:   r,
		Limits: limits,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// WorkspaceVolume is one workspace's volume block with derived rates.
// Rates are fractions in [0,1]; they are zero when no email was sent.
type WorkspaceVolume struct {
	WorkspaceName string  `json:"workspace_name"`
	EmailsSent    int64   `json:"emails_sent"`
	Replies       int64   `json:"replies"`
	Interested    int64   `json:"interested"`
	Bounces       int64   `json:"bounces"`
	Unsubscribes  int64   `json:"unsubscribes"`
	ReplyRate     float64 `json:"reply_rate"`
	BounceRate    float64 `json:"bounce_rate"`
}

// VolumeReport aggregates volume across workspaces for a date range.
type VolumeReport struct {
	Start      string            `json:"start_date"`
	End        string            `json:"end_date"`
	Workspaces []WorkspaceVolume `json:"workspaces"`
	Totals     WorkspaceVolume   `json:"totals"`
}

// Volume sums the daily counters per workspace over the inclusive
// [start, end] date range and derives reply and bounce rates.
func (s *MetricsService) Volume(ctx context.Context, start, end string) (*VolumeReport, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}

	totals, err := s.Repo.SumMetricsBetween(ctx, s.DB, start, end)
	if err != nil {
		return nil, err
	}

	report := &VolumeReport{Start: start, End: end, Workspaces: make([]WorkspaceVolume, 0, len(totals))}
	report.Totals.WorkspaceName = "all"
	for _, t := range totals {
		v := WorkspaceVolume{
			WorkspaceName: t.WorkspaceName,
			EmailsSent:    t.EmailsSent,
			Replies:       t.Replies,
			Interested:    t.Interested,
			Bounces:       t.Bounces,
			Unsubscribes:  t.Unsubscribes,
			ReplyRate:     ratio(t.Replies, t.EmailsSent),
			BounceRate:    ratio(t.Bounces, t.EmailsSent),
		}
		report.Workspaces = append(report.Workspaces, v)

		report.Totals.EmailsSent += t.EmailsSent
		report.Totals.Replies += t.Replies
		report.Totals.Interested += t.Interested
		report.Totals.Bounces += t.Bounces
		report.Totals.Unsubscribes += t.Unsubscribes
	}
	report.Totals.ReplyRate = ratio(report.Totals.Replies, report.Totals.EmailsSent)
	report.Totals.BounceRate = ratio(report.Totals.Bounces, report.Totals.EmailsSent)
	return report, nil
}

// WorkspaceRevenue is one workspace's revenue for a billing month.
type WorkspaceRevenue struct {
	WorkspaceName   string  `json:"workspace_name"`
	BillingType     string  `json:"billing_type"`
	RetainerAmount  float64 `json:"retainer_amount,omitempty"`
	PricePerLead    float64 `json:"price_per_lead,omitempty"`
	InterestedLeads int64   `json:"interested_leads,omitempty"`
	Revenue         float64 `json:"revenue"`
}

// RevenueReport aggregates revenue across workspaces for one month.
type RevenueReport struct {
	Month      string             `json:"month"` // YYYY-MM
	Workspaces []WorkspaceRevenue `json:"workspaces"`
	Total      float64            `json:"total_revenue"`
}

// Revenue computes the month's revenue per workspace. Retainer workspaces
// contribute their flat amount; per-lead workspaces contribute price times
// the interested leads created inside the month. month is YYYY-MM; empty
// means the current month.
func (s *MetricsService) Revenue(ctx context.Context, month string) (*RevenueReport, error) {
	start, end, label, err := monthWindow(month, s.Now())
	if err != nil {
		return nil, err
	}

	workspaces, err := s.Repo.ListWorkspaces(ctx, s.DB)
	if err != nil {
		return nil, err
	}

	report := &RevenueReport{Month: label, Workspaces: make([]WorkspaceRevenue, 0, len(workspaces))}
	for _, ws := range workspaces {
		if !ws.IsActive {
			continue
		}
		r := WorkspaceRevenue{WorkspaceName: ws.Name, BillingType: ws.BillingType}
		switch ws.BillingType {
		case domain.BillingPerLead:
			n, err := s.Repo.CountInterestedLeadsBetween(ctx, s.DB, ws.Name, start, end)
			if err != nil {
				return nil, err
			}
			r.PricePerLead = ws.PricePerLead
			r.InterestedLeads = n
			r.Revenue = ws.PricePerLead * float64(n)
		default:
			r.RetainerAmount = ws.RetainerAmount
			r.Revenue = ws.RetainerAmount
		}
		report.Workspaces = append(report.Workspaces, r)
		report.Total += r.Revenue
	}
	return report, nil
}

// HealthIssue is one threshold violation or webhook anomaly.
type HealthIssue struct {
	WorkspaceName string  `json:"workspace_name"`
	Kind          string  `json:"kind"` // low_reply_rate | high_bounce_rate | webhook_failures | webhook_silent
	Detail        string  `json:"detail"`
	Value         float64 `json:"value,omitempty"`
	Threshold     float64 `json:"threshold,omitempty"`
}

// HealthReport is the data-health evaluation over the trailing window.
type HealthReport struct {
	Healthy    bool                   `json:"healthy"`
	Issues     []HealthIssue          `json:"issues"`
	Webhooks   []domain.WebhookHealth `json:"webhooks"`
	WindowDays int                    `json:"window_days"`
}

// Health evaluates each workspace's trailing-window rates against the
// thresholds and flags webhook anomalies (failure streaks, silence beyond
// the window). windowDays <= 0 defaults to 7.
func (s *MetricsService) Health(ctx context.Context, windowDays int) (*HealthReport, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	now := s.Now()
	start := now.AddDate(0, 0, -windowDays).Format("2006-01-02")
	end := now.Format("2006-01-02")

	totals, err := s.Repo.SumMetricsBetween(ctx, s.DB, start, end)
	if err != nil {
		return nil, err
	}
	webhooks, err := s.Repo.ListWebhookHealth(ctx, s.DB)
	if err != nil {
		return nil, err
	}

	report := &HealthReport{Healthy: true, Issues: []HealthIssue{}, Webhooks: webhooks, WindowDays: windowDays}
	for _, t := range totals {
		if t.EmailsSent == 0 {
			continue
		}
		if rr := ratio(t.Replies, t.EmailsSent); rr < s.Limits.MinReplyRate {
			report.Issues = append(report.Issues, HealthIssue{
				WorkspaceName: t.WorkspaceName,
				Kind:          "low_reply_rate",
				Detail:        "reply rate below threshold",
				Value:         rr,
				Threshold:     s.Limits.MinReplyRate,
			})
		}
		if br := ratio(t.Bounces, t.EmailsSent); br > s.Limits.MaxBounceRate {
			report.Issues = append(report.Issues, HealthIssue{
				WorkspaceName: t.WorkspaceName,
				Kind:          "high_bounce_rate",
				Detail:        "bounce rate above threshold",
				Value:         br,
				Threshold:     s.Limits.MaxBounceRate,
			})
		}
	}
	for _, h := range webhooks {
		if h.TotalReceived > 0 && h.TotalFailed*5 > h.TotalReceived {
			report.Issues = append(report.Issues, HealthIssue{
				WorkspaceName: h.WorkspaceName,
				Kind:          "webhook_failures",
				Detail:        "more than 20% of webhook deliveries failed",
				Value:         ratio(h.TotalFailed, h.TotalReceived),
			})
		}
		if h.LastEventAt != nil && now.Sub(*h.LastEventAt) > time.Duration(windowDays)*24*time.Hour {
			report.Issues = append(report.Issues, HealthIssue{
				WorkspaceName: h.WorkspaceName,
				Kind:          "webhook_silent",
				Detail:        "no webhook activity inside the window",
			})
		}
	}

	report.Healthy = len(report.Issues) == 0
	return report, nil
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func validateRange(start, end string) error {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return ErrInvalidDateRange
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return ErrInvalidDateRange
	}
	if e.Before(s) {
		return ErrInvalidDateRange
	}
	return nil
}

// monthWindow resolves a YYYY-MM label to its [start, end) time window.
func monthWindow(month string, now time.Time) (start, end time.Time, label string, err error) {
	if month == "" {
		month = now.Format("2006-01")
	}
	start, err = time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, "", ErrInvalidDateRange
	}
	return start, start.AddDate(0, 1, 0), month, nil
}
