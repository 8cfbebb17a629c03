// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the webhook
// audit log (WebhookDelivery) and the per-workspace health rollup
// (WebhookHealth).
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadpulse/marketing-ops-backend/internal/domain"
)

// CreateWebhookDelivery records an incoming webhook before it is processed.
// Success is false until FinishWebhookDelivery flips it.
func CreateWebhookDelivery(ctx context.Context, db *gorm.DB, eventType, workspace, payload string) (*domain.WebhookDelivery, error) {
	d := &domain.WebhookDelivery{
		ID:            uuid.NewString(),
		EventType:     eventType,
		WorkspaceName: workspace,
		Payload:       payload,
		Success:       false,
		CreatedAt:     time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(d).Error; err != nil {
		return nil, err
	}
	return d, nil
}

// FinishWebhookDelivery updates a delivery row with the processing outcome.
func FinishWebhookDelivery(ctx context.Context, db *gorm.DB, id string, success bool, processingMS int64, errMsg *string) error {
	return db.WithContext(ctx).
		Model(&domain.WebhookDelivery{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"success":            success,
			"processing_time_ms": processingMS,
			"error_message":      errMsg,
		}).Error
}

// TouchWebhookHealth folds one delivery outcome into the workspace's health
// rollup, creating the row on first contact. Read-modify-write is acceptable
// here: deliveries for one workspace arrive effectively serially and the
// counters are advisory.
func TouchWebhookHealth(ctx context.Context, db *gorm.DB, workspace string, ok bool, errMsg *string, now time.Time) error {
	var h domain.WebhookHealth
	err := db.WithContext(ctx).Where("workspace_name = ?", workspace).First(&h).Error
	switch {
	case err == nil:
		h.LastEventAt = &now
		h.TotalReceived++
		if ok {
			h.LastSuccessAt = &now
			h.LastError = nil
		} else {
			h.TotalFailed++
			h.LastError = errMsg
		}
		h.UpdatedAt = now
		return db.WithContext(ctx).Save(&h).Error
	case err == gorm.ErrRecordNotFound:
		h = domain.WebhookHealth{
			ID:            uuid.NewString(),
			WorkspaceName: workspace,
			LastEventAt:   &now,
			TotalReceived: 1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if ok {
			h.LastSuccessAt = &now
		} else {
			h.TotalFailed = 1
			h.LastError = errMsg
		}
		return db.WithContext(ctx).Create(&h).Error
	default:
		return err
	}
}

// ListWebhookHealth returns every workspace's health rollup, ordered by name.
func ListWebhookHealth(ctx context.Context, db *gorm.DB) ([]domain.WebhookHealth, error) {
	var out []domain.WebhookHealth
	err := db.WithContext(ctx).Order("workspace_name asc").Find(&out).Error
	return out, err
}
