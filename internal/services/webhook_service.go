// Package services – WebhookService
//
// This file implements ingestion of Email Bison webhook events. Every
// delivery is logged to the audit table before routing, then dispatched by
// event type: KPI events increment the day's counters (and may record a
// reply row or move a lead's pipeline stage), infrastructure events maintain
// the workspace's connected-account count. Each delivery finishes by folding
// its outcome into the per-workspace health rollup.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/leadpulse/marketing-ops-backend/internal/domain"
	"github.com/leadpulse/marketing-ops-backend/internal/repo"
)

// Webhook event types accepted by Process.
const (
	EventEmailSent           = "email_sent"
	EventLeadReplied         = "lead_replied"
	EventLeadInterested      = "lead_interested"
	EventEmailBounced        = "email_bounced"
	EventLeadUnsubscribed    = "lead_unsubscribed"
	EventAccountAdded        = "email_account_added"
	EventAccountDisconnected = "email_account_disconnected"
	EventAccountReconnected  = "email_account_reconnected"
)

// WebhookEvent is the envelope the platform posts. Only the fields the
// routing handlers consume are mapped; the raw payload is preserved in the
// audit log regardless.
type WebhookEvent struct {
	Event struct {
		Type          string `json:"type"`
		WorkspaceName string `json:"workspace_name"`
		WorkspaceID   int64  `json:"workspace_id,omitempty"`
	} `json:"event"`
	Data struct {
		Lead        *LeadData        `json:"lead,omitempty"`
		Reply       *ReplyData       `json:"reply,omitempty"`
		SenderEmail *SenderEmailData `json:"sender_email,omitempty"`
	} `json:"data"`
}

// LeadData is the lead detail block of a webhook payload.
type LeadData struct {
	Email      string `json:"email"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Interested *bool  `json:"interested,omitempty"`
}

// ReplyData is the reply detail block of a webhook payload.
type ReplyData struct {
	ID             int64  `json:"id"`
	UUID           string `json:"uuid,omitempty"`
	Content        string `json:"content,omitempty"`
	Interested     *bool  `json:"interested,omitempty"`
	AutomatedReply bool   `json:"automated_reply,omitempty"`
}

// SenderEmailData is the sender inbox block of an infrastructure event.
type SenderEmailData struct {
	Email string `json:"email"`
}

// WebhookRepo defines the persistence contract required by WebhookService.
type WebhookRepo interface {
	CreateWebhookDelivery(ctx context.Context, db *gorm.DB, eventType, workspace, payload string) (*domain.WebhookDelivery, error)
	FinishWebhookDelivery(ctx context.Context, db *gorm.DB, id string, success bool, processingMS int64, errMsg *string) error
	TouchWebhookHealth(ctx context.Context, db *gorm.DB, workspace string, ok bool, errMsg *string, now time.Time) error
	IncrementDailyMetric(ctx context.Context, db *gorm.DB, workspace, date, metric string, delta int64) error
	CreateLeadReply(ctx context.Context, db *gorm.DB, reply *domain.LeadReply) error
	UpdateLeadStageByEmail(ctx context.Context, db *gorm.DB, workspace, email, stage string) error
	UpsertLeads(ctx context.Context, db *gorm.DB, leads []domain.Lead) error
	AdjustActiveAccounts(ctx context.Context, db *gorm.DB, workspace string, delta int64) error
}

// Notifier delivers operational notifications. Implementations must be safe
// for concurrent use; a nil Notifier disables delivery.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// WebhookService routes platform webhook events.
type WebhookService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the persistence contract.
	Repo WebhookRepo
	// Notify receives interested-lead notifications; nil disables them.
	Notify Notifier
	// InboxBase is the site root for conversation deep links.
	InboxBase string
	// Now is the clock seam.
	Now func() time.Time
	// Log receives routing diagnostics.
	Log zerolog.Logger
}

// NewWebhookService constructs a WebhookService.
func NewWebhookService(db *gorm.DB, r WebhookRepo, notify Notifier, inboxBase string, log zerolog.Logger) *WebhookService {
	return &WebhookService{
		DB:        db,
		Repo:      r,
		Notify:    notify,
		InboxBase: inboxBase,
		Now:       func() time.Time { return time.Now().UTC() },
		Log:       log,
	}
}

// ProcessResult reports how one delivery was handled.
type ProcessResult struct {
	DeliveryID    string `json:"delivery_id"`
	EventType     string `json:"event_type"`
	WorkspaceName string `json:"workspace_name"`
	Message       string `json:"message"`
	ProcessingMS  int64  `json:"processing_time_ms"`
}

// Process ingests one raw webhook payload. The delivery is recorded before
// routing so even unroutable events leave an audit trail. ErrUnknownEvent
// and ErrMissingEventData are returned for caller-side (4xx) conditions.
func (s *WebhookService) Process(ctx context.Context, payload []byte) (*ProcessResult, error) {
	started := s.Now()

	var ev WebhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, errors.Join(ErrMissingEventData, err)
	}

	eventType := strings.ToLower(strings.TrimSpace(ev.Event.Type))
	workspace := ev.Event.WorkspaceName
	if workspace == "" {
		workspace = "Unknown"
	}

	delivery, err := s.Repo.CreateWebhookDelivery(ctx, s.DB, eventType, workspace, string(payload))
	if err != nil {
		return nil, err
	}

	msg, routeErr := s.route(ctx, eventType, workspace, &ev)
	elapsed := s.Now().Sub(started).Milliseconds()

	ok := routeErr == nil
	var errMsg *string
	if routeErr != nil {
		m := routeErr.Error()
		errMsg = &m
	}
	if err := s.Repo.FinishWebhookDelivery(ctx, s.DB, delivery.ID, ok, elapsed, errMsg); err != nil {
		s.Log.Error().Err(err).Str("delivery", delivery.ID).Msg("finish webhook delivery")
	}
	if err := s.Repo.TouchWebhookHealth(ctx, s.DB, workspace, ok, errMsg, s.Now()); err != nil {
		s.Log.Error().Err(err).Str("workspace", workspace).Msg("update webhook health")
	}

	if routeErr != nil {
		return nil, routeErr
	}
	return &ProcessResult{
		DeliveryID:    delivery.ID,
		EventType:     eventType,
		WorkspaceName: workspace,
		Message:       msg,
		ProcessingMS:  elapsed,
	}, nil
}

func (s *WebhookService) route(ctx context.Context, eventType, workspace string, ev *WebhookEvent) (string, error) {
	today := s.Now().Format("2006-01-02")

	switch eventType {
	case EventEmailSent:
		if err := s.Repo.IncrementDailyMetric(ctx, s.DB, workspace, today, repo.MetricEmailsSent, 1); err != nil {
			return "", err
		}
		return "email sent count incremented", nil

	case EventLeadReplied:
		return s.handleLeadReplied(ctx, workspace, today, ev)

	case EventLeadInterested:
		return s.handleLeadInterested(ctx, workspace, today, ev)

	case EventEmailBounced:
		if err := s.Repo.IncrementDailyMetric(ctx, s.DB, workspace, today, repo.MetricBounces, 1); err != nil {
			return "", err
		}
		if lead := ev.Data.Lead; lead != nil && lead.Email != "" {
			if err := s.Repo.UpdateLeadStageByEmail(ctx, s.DB, workspace, lead.Email, "bounced"); err != nil {
				return "", err
			}
		}
		return "bounce count incremented", nil

	case EventLeadUnsubscribed:
		if err := s.Repo.IncrementDailyMetric(ctx, s.DB, workspace, today, repo.MetricUnsubscribes, 1); err != nil {
			return "", err
		}
		if lead := ev.Data.Lead; lead != nil && lead.Email != "" {
			if err := s.Repo.UpdateLeadStageByEmail(ctx, s.DB, workspace, lead.Email, "unsubscribed"); err != nil {
				return "", err
			}
		}
		return "unsubscribe count incremented", nil

	case EventAccountAdded, EventAccountReconnected:
		if ev.Data.SenderEmail == nil {
			return "", ErrMissingEventData
		}
		if err := s.Repo.AdjustActiveAccounts(ctx, s.DB, workspace, 1); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return "", err
		}
		return "account connected", nil

	case EventAccountDisconnected:
		if ev.Data.SenderEmail == nil {
			return "", ErrMissingEventData
		}
		if err := s.Repo.AdjustActiveAccounts(ctx, s.DB, workspace, -1); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return "", err
		}
		return "account disconnected", nil

	default:
		return "", ErrUnknownEvent
	}
}

func (s *WebhookService) handleLeadReplied(ctx context.Context, workspace, today string, ev *WebhookEvent) (string, error) {
	if err := s.Repo.IncrementDailyMetric(ctx, s.DB, workspace, today, repo.MetricReplies, 1); err != nil {
		return "", err
	}

	lead, reply := ev.Data.Lead, ev.Data.Reply
	if lead == nil || lead.Email == "" || reply == nil {
		// Counter-only events are valid; some senders omit the detail block.
		return "reply count incremented", nil
	}

	if err := s.recordReply(ctx, workspace, lead.Email, reply, replySentiment(ev)); err != nil {
		return "", err
	}
	if err := s.Repo.UpdateLeadStageByEmail(ctx, s.DB, workspace, lead.Email, "replied"); err != nil {
		return "", err
	}
	return "reply recorded", nil
}

func (s *WebhookService) handleLeadInterested(ctx context.Context, workspace, today string, ev *WebhookEvent) (string, error) {
	lead := ev.Data.Lead
	if lead == nil || lead.Email == "" {
		return "", ErrMissingEventData
	}

	if err := s.Repo.IncrementDailyMetric(ctx, s.DB, workspace, today, repo.MetricInterested, 1); err != nil {
		return "", err
	}

	// Interested events are always positive regardless of reply flags.
	if reply := ev.Data.Reply; reply != nil {
		if err := s.recordReply(ctx, workspace, lead.Email, reply, "positive"); err != nil {
			return "", err
		}
	}

	now := s.Now()
	row := domain.Lead{
		ExternalID:    interestedLeadID(workspace, lead.Email, replyID(ev)),
		WorkspaceName: workspace,
		Email:         normalizeEmail(lead.Email),
		Interested:    true,
		PipelineStage: "interested",
		BisonReplyID:  replyID(ev),
		DateReceived:  &now,
	}
	if lead.FirstName != "" {
		f := lead.FirstName
		row.FirstName = &f
	}
	if lead.LastName != "" {
		l := lead.LastName
		row.LastName = &l
	}
	if reply := ev.Data.Reply; reply != nil && reply.UUID != "" {
		u := reply.UUID
		row.BisonReplyUUID = &u
		if s.InboxBase != "" {
			url := strings.TrimRight(s.InboxBase, "/") + "/inbox?reply_uuid=" + u
			row.ConversationURL = &url
		}
	}
	if err := s.Repo.UpsertLeads(ctx, s.DB, []domain.Lead{row}); err != nil {
		return "", err
	}

	if s.Notify != nil {
		text := "New interested lead for " + workspace + ": " + normalizeEmail(lead.Email)
		if err := s.Notify.Notify(ctx, text); err != nil {
			// Notification failures never fail the delivery.
			s.Log.Warn().Err(err).Str("workspace", workspace).Msg("interested-lead notification")
		}
	}
	return "interested lead recorded", nil
}

func (s *WebhookService) recordReply(ctx context.Context, workspace, email string, reply *ReplyData, sentiment string) error {
	row := &domain.LeadReply{
		WorkspaceName: workspace,
		LeadEmail:     normalizeEmail(email),
		Sentiment:     sentiment,
		BisonReplyID:  reply.ID,
		ReceivedAt:    s.Now(),
	}
	if reply.Content != "" {
		c := reply.Content
		row.ReplyText = &c
	}
	if reply.UUID != "" && s.InboxBase != "" {
		url := strings.TrimRight(s.InboxBase, "/") + "/inbox?reply_uuid=" + reply.UUID
		row.ConversationURL = &url
	}

	err := s.Repo.CreateLeadReply(ctx, s.DB, row)
	if errors.Is(err, repo.ErrDuplicate) {
		// Redelivery of a reply already on file is acknowledged silently.
		return nil
	}
	return err
}

// replySentiment derives sentiment from the platform's own classification:
// automated replies are neutral, an explicit interested flag wins either way,
// and everything else stays neutral.
func replySentiment(ev *WebhookEvent) string {
	reply, lead := ev.Data.Reply, ev.Data.Lead
	switch {
	case reply != nil && reply.AutomatedReply:
		return "neutral"
	case reply != nil && reply.Interested != nil && *reply.Interested:
		return "positive"
	case lead != nil && lead.Interested != nil && *lead.Interested:
		return "positive"
	case reply != nil && reply.Interested != nil && !*reply.Interested:
		return "negative"
	default:
		return "neutral"
	}
}

func replyID(ev *WebhookEvent) int64 {
	if ev.Data.Reply != nil {
		return ev.Data.Reply.ID
	}
	return 0
}

// interestedLeadID derives the upsert conflict key for a webhook-sourced
// lead. With a reply id it matches the sync pipeline's reply-derived key;
// without one it keys on (workspace, email), the same conflict target the
// platform uses for reply-less interested events, so tenants never collide
// on a shared sentinel id.
func interestedLeadID(workspace, email string, replyID int64) string {
	if replyID != 0 {
		return ExternalIDPrefix + itoa64(replyID)
	}
	return "bison_lead_" + workspace + ":" + normalizeEmail(email)
}
