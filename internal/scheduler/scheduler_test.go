package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/leadpulse/marketing-ops-backend/internal/services"
)

type fakeRunner struct {
	mu    sync.Mutex
	runs  []string
	err   error
	runCh chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, trigger, only string) (*services.RunSummary, error) {
	f.mu.Lock()
	f.runs = append(f.runs, trigger+"/"+only)
	f.mu.Unlock()
	if f.runCh != nil {
		select {
		case f.runCh <- struct{}{}:
		default:
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &services.RunSummary{Succeeded: 1}, nil
}

type fakeChecker struct {
	report  *services.HealthReport
	err     error
	checkCh chan struct{}
}

func (f *fakeChecker) Health(ctx context.Context, windowDays int) (*services.HealthReport, error) {
	if f.checkCh != nil {
		select {
		case f.checkCh <- struct{}{}:
		default:
		}
	}
	return f.report, f.err
}

type recordingNotifier struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingNotifier) Notify(ctx context.Context, text string) error {
	r.mu.Lock()
	r.lines = append(r.lines, text)
	r.mu.Unlock()
	return nil
}

func TestStart_TicksAndStopsOnCancel(t *testing.T) {
	runner := &fakeRunner{runCh: make(chan struct{}, 1)}
	checker := &fakeChecker{report: &services.HealthReport{Healthy: true}}

	s := New(runner, checker, nil, 10*time.Millisecond, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case <-runner.runCh:
	case <-time.After(2 * time.Second):
		t.Fatal("sync tick never fired")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Start returned %v; want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.runs) == 0 || runner.runs[0] != "scheduled/" {
		t.Fatalf("runs = %v; want scheduled full-sweep runs", runner.runs)
	}
}

func TestRunHealthCheck_AlertsOnIssues(t *testing.T) {
	checker := &fakeChecker{report: &services.HealthReport{
		Healthy: false,
		Issues: []services.HealthIssue{
			{WorkspaceName: "Acme", Kind: "low_reply_rate", Detail: "reply rate below threshold", Value: 0.001, Threshold: 0.01},
			{WorkspaceName: "Globex", Kind: "webhook_silent", Detail: "no webhook activity inside the window"},
		},
	}}
	notifier := &recordingNotifier{}

	s := New(&fakeRunner{}, checker, notifier, time.Hour, time.Hour, zerolog.Nop())
	s.runHealthCheck(context.Background())

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.lines) != 2 {
		t.Fatalf("alert lines = %d; want 2", len(notifier.lines))
	}
}

func TestRunHealthCheck_NoAlertsWhenHealthy(t *testing.T) {
	checker := &fakeChecker{report: &services.HealthReport{Healthy: true}}
	notifier := &recordingNotifier{}

	s := New(&fakeRunner{}, checker, notifier, time.Hour, time.Hour, zerolog.Nop())
	s.runHealthCheck(context.Background())

	if len(notifier.lines) != 0 {
		t.Fatalf("healthy report must not alert: %v", notifier.lines)
	}
}

func TestRunSync_InProgressIsNotAFault(t *testing.T) {
	runner := &fakeRunner{err: services.ErrSyncInProgress}
	s := New(runner, &fakeChecker{report: &services.HealthReport{Healthy: true}}, nil, time.Hour, time.Hour, zerolog.Nop())

	// Must not panic or alert; the next tick simply retries.
	s.runSync(context.Background())
}
