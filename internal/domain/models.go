// Package domain defines the persistence models for workspaces, leads,
// replies, daily KPI metrics, and webhook bookkeeping. These types are mapped
// with GORM and form the core data layer of the marketing-ops backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Billing types recognized on a Workspace.
const (
	BillingRetainer = "retainer"
	BillingPerLead  = "per_lead"
)

// Workspace represents one client tenant in the remote sending platform
// (Email Bison). It mirrors the client registry: which Bison instance the
// workspace lives on, how to authenticate against it, and how the client is
// billed.
//
// Fields:
//   - Name: unique human-readable workspace name, used as the tenant key
//     across leads, replies, and metrics.
//   - BisonWorkspaceID: numeric workspace (team) id on the Bison instance,
//     passed to the switch-workspace call.
//   - BisonInstance: which platform instance hosts the workspace
//     ("Maverick" or "LongRun"); selects base URL and shared credential.
//   - BisonAPIKey: optional workspace-scoped API key. When present the
//     shared-credential switch-workspace step is skipped entirely.
//   - BillingType / RetainerAmount / PricePerLead: revenue model inputs.
//   - ActiveAccounts: connected sender inbox count, maintained by
//     infrastructure webhook events.
type Workspace struct {
	ID               string         `json:"id"                 gorm:"type:char(36);primaryKey"`
	Name             string         `json:"name"               gorm:"type:varchar(255);not null;uniqueIndex:ux_workspace_name"`
	BisonWorkspaceID int64          `json:"bison_workspace_id" gorm:"not null"`
	BisonInstance    string         `json:"bison_instance"     gorm:"type:varchar(32);not null;default:'Maverick'"`
	BisonAPIKey      string         `json:"-"                  gorm:"type:varchar(255)"`
	IsActive         bool           `json:"is_active"          gorm:"not null;index"`
	BillingType      string         `json:"billing_type"       gorm:"type:varchar(16);not null;default:'retainer';check:billing_type IN ('retainer','per_lead')"`
	RetainerAmount   float64        `json:"retainer_amount"    gorm:"not null;default:0"`
	PricePerLead     float64        `json:"price_per_lead"     gorm:"not null;default:0"`
	ActiveAccounts   int64          `json:"active_accounts"    gorm:"not null;default:0"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-"                  gorm:"index"`
}

// TableName returns the database table name for Workspace.
func (Workspace) TableName() string { return "workspaces" }

// Lead is the canonical, deduplicated representation of one interested
// responder within a workspace. Rows are written exclusively through an
// upsert keyed on ExternalID, which makes repeated reconciliation runs
// idempotent.
//
// Fields:
//   - ExternalID: stable conflict key. Sync-pipeline rows derive it from the
//     source reply id (e.g. "bison_reply_18231"); webhook rows that carry no
//     reply id key on the workspace and email instead, so tenants can never
//     collide on a shared id. Unique across the table.
//   - WorkspaceName: owning tenant; (workspace_name, email) is indexed for
//     per-workspace lookups.
//   - Email: normalized (lowercased) responder address. Blank sender
//     addresses are stored under a sentinel placeholder, never dropped.
//   - FirstName / LastName: parsed from the sender display name; both nil
//     when the display name is absent.
//   - Interested: always true for rows produced by the sync pipeline.
//   - PipelineStage: operator-managed stage, defaulting to "new".
//   - ConversationURL: inbox deep link, only set when the source reply
//     carried a UUID.
type Lead struct {
	ID              string         `json:"id"               gorm:"type:char(36);primaryKey"`
	ExternalID      string         `json:"external_id"      gorm:"type:varchar(640);not null;uniqueIndex:ux_lead_external_id"`
	WorkspaceName   string         `json:"workspace_name"   gorm:"type:varchar(255);not null;index:idx_workspace_email,priority:1"`
	Email           string         `json:"email"            gorm:"type:varchar(320);not null;index:idx_workspace_email,priority:2"`
	FirstName       *string        `json:"first_name,omitempty"`
	LastName        *string        `json:"last_name,omitempty"`
	DateReceived    *time.Time     `json:"date_received,omitempty"`
	Interested      bool           `json:"interested"       gorm:"not null;default:true"`
	PipelineStage   string         `json:"pipeline_stage"   gorm:"type:varchar(32);not null;default:'new'"`
	BisonReplyID    int64          `json:"bison_reply_id"   gorm:"not null"`
	BisonReplyUUID  *string        `json:"bison_reply_uuid,omitempty" gorm:"type:char(36)"`
	BisonLeadID     *string        `json:"bison_lead_id,omitempty"    gorm:"type:varchar(32)"`
	ConversationURL *string        `json:"conversation_url,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-"                gorm:"index"`
}

// TableName returns the database table name for Lead.
func (Lead) TableName() string { return "leads" }

// LeadReply records a single inbound reply delivered by webhook, regardless
// of sentiment. It backs the real-time reply feed on the dashboard. The
// source reply id is unique so webhook redeliveries cannot duplicate rows.
type LeadReply struct {
	ID              string    `json:"id"              gorm:"type:char(36);primaryKey"`
	WorkspaceName   string    `json:"workspace_name"  gorm:"type:varchar(255);not null;index"`
	LeadEmail       string    `json:"lead_email"      gorm:"type:varchar(320);not null"`
	ReplyText       *string   `json:"reply_text,omitempty" gorm:"type:text"`
	Sentiment       string    `json:"sentiment"       gorm:"type:varchar(16);not null;default:'neutral';check:sentiment IN ('positive','negative','neutral')"`
	BisonReplyID    int64     `json:"bison_reply_id"  gorm:"not null;uniqueIndex:ux_reply_bison_id"`
	ConversationURL *string   `json:"conversation_url,omitempty"`
	ReceivedAt      time.Time `json:"received_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName returns the database table name for LeadReply.
func (LeadReply) TableName() string { return "lead_replies" }

// DailyMetric is one day of KPI counters for one workspace. Counters are
// incremented atomically by webhook events and read in ranges by the
// dashboard aggregation endpoints. (workspace_name, metric_date) is unique
// so increments can upsert.
type DailyMetric struct {
	ID            string    `json:"id"             gorm:"type:char(36);primaryKey"`
	WorkspaceName string    `json:"workspace_name" gorm:"type:varchar(255);not null;uniqueIndex:ux_metric_day,priority:1"`
	MetricDate    string    `json:"metric_date"    gorm:"type:varchar(10);not null;uniqueIndex:ux_metric_day,priority:2"` // YYYY-MM-DD
	EmailsSent    int64     `json:"emails_sent"    gorm:"not null;default:0"`
	Replies       int64     `json:"replies"        gorm:"not null;default:0"`
	Interested    int64     `json:"interested"     gorm:"not null;default:0"`
	Bounces       int64     `json:"bounces"        gorm:"not null;default:0"`
	Unsubscribes  int64     `json:"unsubscribes"   gorm:"not null;default:0"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for DailyMetric.
func (DailyMetric) TableName() string { return "daily_metrics" }

// WebhookDelivery is the audit log of every webhook received from the
// sending platform: raw payload, routing outcome, and processing latency.
type WebhookDelivery struct {
	ID            string    `json:"id"              gorm:"type:char(36);primaryKey"`
	EventType     string    `json:"event_type"      gorm:"type:varchar(64);not null;index"`
	WorkspaceName string    `json:"workspace_name"  gorm:"type:varchar(255);not null;index"`
	Payload       string    `json:"payload"         gorm:"type:text;not null"`
	Success       bool      `json:"success"         gorm:"not null;default:false"`
	ProcessingMS  int64     `json:"processing_time_ms" gorm:"column:processing_time_ms;not null;default:0"`
	ErrorMessage  *string   `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"      gorm:"index"`
}

// TableName returns the database table name for WebhookDelivery.
func (WebhookDelivery) TableName() string { return "webhook_deliveries" }

// WebhookHealth is the per-workspace rollup of webhook delivery outcomes,
// used by the health dashboard and the daily health check.
type WebhookHealth struct {
	ID            string     `json:"id"              gorm:"type:char(36);primaryKey"`
	WorkspaceName string     `json:"workspace_name"  gorm:"type:varchar(255);not null;uniqueIndex:ux_health_workspace"`
	LastEventAt   *time.Time `json:"last_event_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	TotalReceived int64      `json:"total_received"  gorm:"not null;default:0"`
	TotalFailed   int64      `json:"total_failed"    gorm:"not null;default:0"`
	LastError     *string    `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for WebhookHealth.
func (WebhookHealth) TableName() string { return "webhook_health" }

// SyncRun is the audit row written after each reconciliation pass: what
// triggered it, how many workspaces succeeded, and the serialized summary
// returned to the caller.
type SyncRun struct {
	ID              string    `json:"id"               gorm:"type:char(36);primaryKey"`
	Trigger         string    `json:"trigger"          gorm:"type:varchar(16);not null;check:trigger IN ('manual','scheduled')"`
	TotalWorkspaces int       `json:"total_workspaces" gorm:"not null;default:0"`
	Succeeded       int       `json:"succeeded"        gorm:"not null;default:0"`
	Failed          int       `json:"failed"           gorm:"not null;default:0"`
	LeadsUpserted   int       `json:"leads_upserted"   gorm:"not null;default:0"`
	Report          string    `json:"report"           gorm:"type:text;not null"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

// TableName returns the database table name for SyncRun.
func (SyncRun) TableName() string { return "sync_runs" }
