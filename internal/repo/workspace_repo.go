// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Workspace
// registry.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a workspace is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/leadpulse/marketing-ops-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ListActiveWorkspaces returns every active workspace ordered by name.
// The ordering fixes the processing order of sequential sync runs.
func ListActiveWorkspaces(ctx context.Context, db *gorm.DB) ([]domain.Workspace, error) {
	var out []domain.Workspace
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name asc").
		Find(&out).Error
	return out, err
}

// ListWorkspaces returns the full registry (active and inactive), ordered by name.
func ListWorkspaces(ctx context.Context, db *gorm.DB) ([]domain.Workspace, error) {
	var out []domain.Workspace
	err := db.WithContext(ctx).Order("name asc").Find(&out).Error
	return out, err
}

// GetWorkspaceByName fetches a single workspace by its unique name, or
// ErrNotFound if missing.
func GetWorkspaceByName(ctx context.Context, db *gorm.DB, name string) (*domain.Workspace, error) {
	var ws domain.Workspace
	if err := db.WithContext(ctx).Where("name = ?", name).First(&ws).Error; err != nil {
		return nil, err
	}
	return &ws, nil
}

// AdjustActiveAccounts shifts a workspace's connected-inbox counter by delta
// (positive when an account connects, negative when one disconnects). The
// counter never drops below zero.
func AdjustActiveAccounts(ctx context.Context, db *gorm.DB, name string, delta int64) error {
	// CASE keeps the expression portable across Postgres and SQLite.
	res := db.WithContext(ctx).
		Model(&domain.Workspace{}).
		Where("name = ?", name).
		UpdateColumn("active_accounts",
			gorm.Expr("CASE WHEN active_accounts + ? < 0 THEN 0 ELSE active_accounts + ? END", delta, delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
