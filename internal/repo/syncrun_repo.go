// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the SyncRun
// audit log written after each reconciliation pass.
package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadpulse/marketing-ops-backend/internal/domain"
)

// CreateSyncRun persists one run's audit row. A missing ID is assigned.
func CreateSyncRun(ctx context.Context, db *gorm.DB, run *domain.SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	return db.WithContext(ctx).Create(run).Error
}

// ListRecentSyncRuns returns the most recent runs, newest first.
func ListRecentSyncRuns(ctx context.Context, db *gorm.DB, limit int) ([]domain.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []domain.SyncRun
	err := db.WithContext(ctx).
		Order("started_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
