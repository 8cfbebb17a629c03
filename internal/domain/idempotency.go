// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency represents a recorded result of a previously processed request,
// keyed by (scope, workspace_name, key). It enables safe retries for the
// mutating endpoints (sync trigger, webhook ingestion) by acknowledging a
// replayed Idempotency-Key without re-executing side effects.
//
// Scope identifies the endpoint family ("sync", "webhook"); WorkspaceName is
// the tenant the request targeted, or "*" for all-workspace runs.
type Idempotency struct {
	ID            string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Scope         string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_scope_workspace_key,priority:1"`
	WorkspaceName string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_scope_workspace_key,priority:2"`
	Key           string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_scope_workspace_key,priority:3"`
	ResultRef     string    `gorm:"type:TEXT NOT NULL"`
	Status        int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt     time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt     time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
