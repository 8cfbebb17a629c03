// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Lead and
// LeadReply models.
//
// Error semantics:
//   - Duplicate reply rows (same bison_reply_id) rely on the database unique
//     constraint and are returned as ErrDuplicate so webhook redeliveries can
//     be acknowledged without side effects.
//   - On other DB errors (connectivity, constraints, etc.), the raw gorm
//     error is propagated.
//
// Functions:
//
//   - UpsertLeads(ctx, db, leads) -> error
//     Inserts or updates a batch of reconciled leads keyed on external_id.
//
//   - CountLeads(ctx, db, workspace) -> (int64, error)
//     Total leads for a workspace (pagination support).
//
//   - ListLeadsPage(ctx, db, workspace, offset, limit) -> ([]domain.Lead, error)
//     Returns a page of leads, most recently received first.
//
//   - CountInterestedLeadsBetween(ctx, db, workspace, start, end) -> (int64, error)
//     Interested-lead count in a created-at window (per-lead billing input).
//
//   - UpdateLeadStageByEmail(ctx, db, workspace, email, stage) -> error
//     Moves every matching lead to a new pipeline stage (webhook routing).
//
//   - CreateLeadReply(ctx, db, reply) -> error
//     Inserts one webhook-delivered reply row; ErrDuplicate on redelivery.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/leadpulse/marketing-ops-backend/internal/domain"
)

// ErrDuplicate indicates that a row with the same unique key already exists.
var ErrDuplicate = errors.New("duplicate")

// leadUpdateColumns is the set of columns refreshed when an upsert hits an
// existing external_id. Matches the overwrite semantics of the sync pipeline:
// a re-run fully refreshes the row, including the pipeline stage.
var leadUpdateColumns = []string{
	"workspace_name", "email", "first_name", "last_name", "date_received",
	"interested", "pipeline_stage", "bison_reply_id", "bison_reply_uuid",
	"bison_lead_id", "conversation_url", "updated_at",
}

// UpsertLeads writes one batch of reconciled leads using insert-or-update
// semantics keyed on external_id. Rows without an ID are assigned a UUID;
// UpdatedAt is always bumped so conflicting rows reflect the latest run.
//
// The caller is responsible for batching; this function issues exactly one
// statement for the slice it is given.
func UpsertLeads(ctx context.Context, db *gorm.DB, leads []domain.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range leads {
		if leads[i].ID == "" {
			leads[i].ID = uuid.NewString()
		}
		if leads[i].CreatedAt.IsZero() {
			leads[i].CreatedAt = now
		}
		leads[i].UpdatedAt = now
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns(leadUpdateColumns),
		}).
		Create(&leads).Error
}

// CountLeads returns the total number of leads owned by the workspace.
func CountLeads(ctx context.Context, db *gorm.DB, workspace string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Lead{}).
		Where("workspace_name = ?", workspace).
		Count(&total).Error
	return total, err
}

// ListLeadsPage returns a paginated slice of a workspace's leads ordered by
// date received descending (most recent responders first), with row id as a
// deterministic tie-break.
func ListLeadsPage(ctx context.Context, db *gorm.DB, workspace string, offset, limit int) ([]domain.Lead, error) {
	var out []domain.Lead
	err := db.WithContext(ctx).
		Where("workspace_name = ?", workspace).
		Order("date_received DESC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountInterestedLeadsBetween counts interested leads created for the
// workspace within [start, end). Used for per-lead revenue computation.
func CountInterestedLeadsBetween(ctx context.Context, db *gorm.DB, workspace string, start, end time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Lead{}).
		Where("workspace_name = ? AND interested = ? AND created_at >= ? AND created_at < ?",
			workspace, true, start, end).
		Count(&total).Error
	return total, err
}

// UpdateLeadStageByEmail moves the workspace's leads with the given email to
// a new pipeline stage. Matching zero rows is not an error: bounce and
// unsubscribe events routinely reference addresses that never became leads.
func UpdateLeadStageByEmail(ctx context.Context, db *gorm.DB, workspace, email, stage string) error {
	return db.WithContext(ctx).
		Model(&domain.Lead{}).
		Where("workspace_name = ? AND email = ?", workspace, strings.ToLower(strings.TrimSpace(email))).
		Updates(map[string]interface{}{
			"pipeline_stage": stage,
			"updated_at":     time.Now().UTC(),
		}).Error
}

// CreateLeadReply inserts a single webhook-delivered reply row. The
// bison_reply_id unique index makes webhook redelivery harmless: a duplicate
// insert is reported as ErrDuplicate, which callers treat as success.
func CreateLeadReply(ctx context.Context, db *gorm.DB, reply *domain.LeadReply) error {
	if reply.ID == "" {
		reply.ID = uuid.NewString()
	}
	if reply.CreatedAt.IsZero() {
		reply.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(reply).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") ||
			strings.Contains(low, "duplicate key value") {
			return ErrDuplicate
		}
		return err
	}
	return nil
}
