// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the DailyMetric
// model: atomic per-day counter increments and range aggregation for the
// dashboard endpoints.
package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/leadpulse/marketing-ops-backend/internal/domain"
)

// Metric counter names accepted by IncrementDailyMetric. These map 1:1 to
// DailyMetric columns; anything else is rejected before touching the DB.
const (
	MetricEmailsSent   = "emails_sent"
	MetricReplies      = "replies"
	MetricInterested   = "interested"
	MetricBounces      = "bounces"
	MetricUnsubscribes = "unsubscribes"
)

var metricColumns = map[string]struct{}{
	MetricEmailsSent:   {},
	MetricReplies:      {},
	MetricInterested:   {},
	MetricBounces:      {},
	MetricUnsubscribes: {},
}

// WorkspaceTotals is one workspace's summed counters over a date range,
// as returned by SumMetricsBetween.
type WorkspaceTotals struct {
	WorkspaceName string `json:"workspace_name"`
	EmailsSent    int64  `json:"emails_sent"`
	Replies       int64  `json:"replies"`
	Interested    int64  `json:"interested"`
	Bounces       int64  `json:"bounces"`
	Unsubscribes  int64  `json:"unsubscribes"`
}

// IncrementDailyMetric atomically adds delta to one counter of the
// (workspace, date) row, creating the row if it does not exist yet.
// The metric name must be one of the Metric* constants.
func IncrementDailyMetric(ctx context.Context, db *gorm.DB, workspace, date, metric string, delta int64) error {
	if _, ok := metricColumns[metric]; !ok {
		return fmt.Errorf("unknown metric %q", metric)
	}

	now := time.Now().UTC()
	row := domain.DailyMetric{
		ID:            uuid.NewString(),
		WorkspaceName: workspace,
		MetricDate:    date,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	switch metric {
	case MetricEmailsSent:
		row.EmailsSent = delta
	case MetricReplies:
		row.Replies = delta
	case MetricInterested:
		row.Interested = delta
	case MetricBounces:
		row.Bounces = delta
	case MetricUnsubscribes:
		row.Unsubscribes = delta
	}

	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "workspace_name"}, {Name: "metric_date"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				metric:       gorm.Expr("daily_metrics."+metric+" + ?", delta),
				"updated_at": now,
			}),
		}).
		Create(&row).Error
}

// SumMetricsBetween returns per-workspace counter sums for metric dates in
// [start, end], both inclusive, formatted as YYYY-MM-DD. Workspaces with no
// rows in the range are absent from the result.
func SumMetricsBetween(ctx context.Context, db *gorm.DB, start, end string) ([]WorkspaceTotals, error) {
	var out []WorkspaceTotals
	err := db.WithContext(ctx).
		Model(&domain.DailyMetric{}).
		Select(`workspace_name,
			SUM(emails_sent)  AS emails_sent,
			SUM(replies)      AS replies,
			SUM(interested)   AS interested,
			SUM(bounces)      AS bounces,
			SUM(unsubscribes) AS unsubscribes`).
		Where("metric_date >= ? AND metric_date <= ?", start, end).
		Group("workspace_name").
		Order("workspace_name asc").
		Scan(&out).Error
	return out, err
}

// ListDailyMetrics returns the raw per-day rows for one workspace in the
// inclusive [start, end] date range, oldest first. Feeds the volume charts.
func ListDailyMetrics(ctx context.Context, db *gorm.DB, workspace, start, end string) ([]domain.DailyMetric, error) {
	var out []domain.DailyMetric
	err := db.WithContext(ctx).
		Where("workspace_name = ? AND metric_date >= ? AND metric_date <= ?", workspace, start, end).
		Order("metric_date asc").
		Find(&out).Error
	return out, err
}
