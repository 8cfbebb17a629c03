// Package services – SyncService
//
// This file implements the reconciliation run: for every active workspace,
// pull the full set of interested replies from its Email Bison instance,
// deduplicate them, and upsert the survivors as canonical leads. Workspaces
// are processed strictly one at a time because the super-admin session on an
// instance is shared state; the pause between workspaces and the post-switch
// settle both live behind injectable seams so tests run without waiting.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/leadpulse/marketing-ops-backend/internal/bison"
	"github.com/leadpulse/marketing-ops-backend/internal/domain"
)

// Workspace outcome status values. Failed covers a failed workspace switch;
// Error covers everything else that aborted the workspace.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeError   = "error"
)

// ReasonSwitchFailed is the error label recorded when the platform rejects
// the switch-workspace call.
const ReasonSwitchFailed = "workspace_switch_failed"

// ReplyPuller is the per-instance platform client contract.
type ReplyPuller interface {
	InterestedReplies(ctx context.Context, teamID int64, workspaceKey string) (*bison.RepliesResult, error)
}

// SyncRepo defines the persistence contract required by SyncService.
type SyncRepo interface {
	ListActiveWorkspaces(ctx context.Context, db *gorm.DB) ([]domain.Workspace, error)
	UpsertLeads(ctx context.Context, db *gorm.DB, leads []domain.Lead) error
	CreateSyncRun(ctx context.Context, db *gorm.DB, run *domain.SyncRun) error
}

// Instance bundles a platform client with the site root used for inbox
// deep links.
type Instance struct {
	Puller    ReplyPuller
	InboxBase string
}

// WorkspaceOutcome is the per-workspace result of a run. Status tags which
// of the remaining fields are meaningful: counts are only populated on
// success, Error only on failure.
type WorkspaceOutcome struct {
	WorkspaceName string `json:"workspace_name"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	TotalReplies  int    `json:"total_replies"`
	UniqueLeads   int    `json:"unique_leads"`
	Upserted      int    `json:"inserted"`
	PagesFetched  int    `json:"pages_fetched"`
	Partial       bool   `json:"partial,omitempty"`
}

// RunSummary is the aggregate result of one reconciliation run.
type RunSummary struct {
	RunID           string             `json:"run_id"`
	Trigger         string             `json:"trigger"`
	TotalWorkspaces int                `json:"total_workspaces"`
	Succeeded       int                `json:"successful"`
	Failed          int                `json:"failed"`
	LeadsUpserted   int                `json:"total_leads_inserted"`
	Results         []WorkspaceOutcome `json:"results"`
	StartedAt       time.Time          `json:"started_at"`
	FinishedAt      time.Time          `json:"finished_at"`
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SyncService orchestrates reconciliation runs.
type SyncService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the persistence contract.
	Repo SyncRepo
	// Instances maps a workspace's BisonInstance value to its client.
	Instances map[string]Instance

	// BatchSize caps how many leads one upsert statement carries.
	BatchSize int
	// Writes paces consecutive upsert batches against the storage backend;
	// nil disables pacing.
	Writes bison.Limiter
	// WorkspaceSettle is the pause between consecutive workspaces.
	WorkspaceSettle time.Duration
	// Sleep is the waiting seam; defaults to a context-aware timer.
	Sleep SleepFunc
	// Log receives run progress.
	Log zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewSyncService constructs a SyncService with defaults.
func NewSyncService(db *gorm.DB, repo SyncRepo, instances map[string]Instance, log zerolog.Logger) *SyncService {
	return &SyncService{
		DB:              db,
		Repo:            repo,
		Instances:       instances,
		BatchSize:       100,
		WorkspaceSettle: 5 * time.Second,
		Sleep:           sleepCtx,
		Log:             log,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes one reconciliation pass. trigger records what started it
// ("manual" or "scheduled"). When only is non-empty the run covers just that
// workspace; an unknown or inactive name yields ErrWorkspaceNotFound.
//
// Only one run executes at a time; a second caller gets ErrSyncInProgress
// instead of queueing.
func (s *SyncService) Run(ctx context.Context, trigger, only string) (*RunSummary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	workspaces, err := s.Repo.ListActiveWorkspaces(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	if only != "" {
		workspaces = filterWorkspace(workspaces, only)
		if len(workspaces) == 0 {
			return nil, ErrWorkspaceNotFound
		}
	}

	summary := &RunSummary{
		Trigger:         trigger,
		TotalWorkspaces: len(workspaces),
		Results:         make([]WorkspaceOutcome, 0, len(workspaces)),
		StartedAt:       time.Now().UTC(),
	}

	s.Log.Info().
		Str("trigger", trigger).
		Int("workspaces", len(workspaces)).
		Msg("sync run started")

	for i, ws := range workspaces {
		outcome := s.syncWorkspace(ctx, ws)
		summary.Results = append(summary.Results, outcome)
		if outcome.Status == OutcomeSuccess {
			summary.Succeeded++
			summary.LeadsUpserted += outcome.Upserted
		} else {
			summary.Failed++
		}

		// The shared session needs quiet time between workspaces.
		if i < len(workspaces)-1 {
			if err := s.Sleep(ctx, s.WorkspaceSettle); err != nil {
				return nil, err
			}
		}
	}

	summary.FinishedAt = time.Now().UTC()

	run := &domain.SyncRun{
		Trigger:         trigger,
		TotalWorkspaces: summary.TotalWorkspaces,
		Succeeded:       summary.Succeeded,
		Failed:          summary.Failed,
		LeadsUpserted:   summary.LeadsUpserted,
		StartedAt:       summary.StartedAt,
		FinishedAt:      summary.FinishedAt,
	}
	if report, err := json.Marshal(summary.Results); err == nil {
		run.Report = string(report)
	}
	if err := s.Repo.CreateSyncRun(ctx, s.DB, run); err != nil {
		s.Log.Error().Err(err).Msg("record sync run")
	}
	summary.RunID = run.ID

	s.Log.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("leads", summary.LeadsUpserted).
		Dur("elapsed", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("sync run finished")

	return summary, nil
}

func (s *SyncService) syncWorkspace(ctx context.Context, ws domain.Workspace) WorkspaceOutcome {
	out := WorkspaceOutcome{WorkspaceName: ws.Name, Status: OutcomeSuccess}
	log := s.Log.With().Str("workspace", ws.Name).Str("instance", ws.BisonInstance).Logger()

	inst, ok := s.Instances[ws.BisonInstance]
	if !ok {
		log.Error().Msg("workspace references unknown instance")
		out.Status = OutcomeError
		out.Error = "unknown_instance"
		return out
	}

	res, err := inst.Puller.InterestedReplies(ctx, ws.BisonWorkspaceID, ws.BisonAPIKey)
	if err != nil {
		if errors.Is(err, bison.ErrSwitchFailed) {
			log.Error().Err(err).Msg("workspace switch rejected")
			out.Status = OutcomeFailed
			out.Error = ReasonSwitchFailed
			return out
		}
		log.Error().Err(err).Msg("pull interested replies")
		out.Status = OutcomeError
		out.Error = err.Error()
		return out
	}

	out.TotalReplies = len(res.Replies)
	out.PagesFetched = res.Pages
	out.Partial = res.Partial

	unique := DedupeReplies(res.Replies)
	out.UniqueLeads = len(unique)

	leads := MapReplies(ws.Name, inst.InboxBase, unique)
	for start := 0; start < len(leads); start += s.BatchSize {
		end := start + s.BatchSize
		if end > len(leads) {
			end = len(leads)
		}
		if s.Writes != nil && start > 0 {
			if err := s.Writes.Wait(ctx); err != nil {
				log.Error().Err(err).Int("batch_start", start).Msg("write pacing interrupted")
				out.Status = OutcomeError
				out.Error = err.Error()
				return out
			}
		}
		if err := s.Repo.UpsertLeads(ctx, s.DB, leads[start:end]); err != nil {
			// A failed batch does not abort the workspace; the next full
			// run converges on the same rows.
			log.Error().Err(err).Int("batch_start", start).Msg("upsert batch")
			continue
		}
		out.Upserted += end - start
	}

	log.Info().
		Int("replies", out.TotalReplies).
		Int("unique", out.UniqueLeads).
		Int("upserted", out.Upserted).
		Bool("partial", out.Partial).
		Msg("workspace reconciled")
	return out
}

func filterWorkspace(all []domain.Workspace, name string) []domain.Workspace {
	for _, ws := range all {
		if ws.Name == name {
			return []domain.Workspace{ws}
		}
	}
	return nil
}
