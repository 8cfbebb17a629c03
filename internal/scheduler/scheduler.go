// Package scheduler runs the in-process periodic jobs: the full lead
// reconciliation sweep and the daily data-health check with Slack alerting.
// Both loops stop cleanly when the context is canceled.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/leadpulse/marketing-ops-backend/internal/notify"
	"github.com/leadpulse/marketing-ops-backend/internal/services"
)

// SyncRunner starts one reconciliation run.
type SyncRunner interface {
	Run(ctx context.Context, trigger, only string) (*services.RunSummary, error)
}

// HealthChecker evaluates data health over a trailing window.
type HealthChecker interface {
	Health(ctx context.Context, windowDays int) (*services.HealthReport, error)
}

// Notifier delivers alert lines.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Scheduler drives the periodic jobs.
type Scheduler struct {
	Sync   SyncRunner
	Checks HealthChecker
	Notify Notifier

	SyncInterval        time.Duration
	HealthCheckInterval time.Duration

	Log zerolog.Logger
}

// New constructs a Scheduler.
func New(sync SyncRunner, checks HealthChecker, notifier Notifier, syncEvery, checkEvery time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		Sync:                sync,
		Checks:              checks,
		Notify:              notifier,
		SyncInterval:        syncEvery,
		HealthCheckInterval: checkEvery,
		Log:                 log,
	}
}

// Start runs both loops until ctx is canceled and returns ctx.Err(). The
// first sync fires one interval after startup, not immediately, so restarts
// do not hammer the platform API.
func (s *Scheduler) Start(ctx context.Context) error {
	s.Log.Info().
		Dur("sync_interval", s.SyncInterval).
		Dur("health_interval", s.HealthCheckInterval).
		Msg("scheduler started")

	syncTicker := time.NewTicker(s.SyncInterval)
	defer syncTicker.Stop()
	healthTicker := time.NewTicker(s.HealthCheckInterval)
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Log.Info().Msg("scheduler shutting down")
			return ctx.Err()
		case <-syncTicker.C:
			s.runSync(ctx)
		case <-healthTicker.C:
			s.runHealthCheck(ctx)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	sum, err := s.Sync.Run(ctx, "scheduled", "")
	if err != nil {
		// An in-progress manual run is not a fault; the next tick retries.
		if err == services.ErrSyncInProgress {
			s.Log.Warn().Msg("scheduled sync skipped: run already in progress")
			return
		}
		s.Log.Error().Err(err).Msg("scheduled sync failed")
		return
	}
	s.Log.Info().
		Int("succeeded", sum.Succeeded).
		Int("failed", sum.Failed).
		Int("leads", sum.LeadsUpserted).
		Msg("scheduled sync finished")
}

func (s *Scheduler) runHealthCheck(ctx context.Context) {
	rep, err := s.Checks.Health(ctx, 0)
	if err != nil {
		s.Log.Error().Err(err).Msg("health check failed")
		return
	}
	if rep.Healthy {
		s.Log.Info().Msg("health check passed")
		return
	}

	s.Log.Warn().Int("issues", len(rep.Issues)).Msg("health check found issues")
	if s.Notify == nil {
		return
	}
	for _, issue := range rep.Issues {
		line := notify.FormatIssue(issue.WorkspaceName, issue.Kind, issue.Detail, issue.Value, issue.Threshold)
		if err := s.Notify.Notify(ctx, line); err != nil {
			s.Log.Warn().Err(err).Str("workspace", issue.WorkspaceName).Msg("health alert delivery")
		}
	}
}
