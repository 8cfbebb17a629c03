package repo

import (
	"context"
	"testing"
	"time"

	"github.com/leadpulse/marketing-ops-backend/internal/domain"
)

func TestSyncRuns_CreateAndListRecent(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := &domain.SyncRun{
			Trigger:         "scheduled",
			TotalWorkspaces: 5,
			Succeeded:       4,
			Failed:          1,
			LeadsUpserted:   100 + i,
			Report:          "{}",
			StartedAt:       base.Add(time.Duration(i) * time.Hour),
			FinishedAt:      base.Add(time.Duration(i)*time.Hour + 10*time.Minute),
		}
		if err := CreateSyncRun(ctx, db, run); err != nil {
			t.Fatalf("create run %d: %v", i, err)
		}
		if run.ID == "" {
			t.Fatalf("run %d: missing assigned id", i)
		}
	}

	runs, err := ListRecentSyncRuns(ctx, db, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs; want 2", len(runs))
	}
	// Newest first.
	if !runs[0].StartedAt.After(runs[1].StartedAt) {
		t.Fatalf("expected newest first: %v then %v", runs[0].StartedAt, runs[1].StartedAt)
	}
	if runs[0].LeadsUpserted != 102 {
		t.Fatalf("newest run leads = %d; want 102", runs[0].LeadsUpserted)
	}

	// Non-positive limit falls back to the default and returns everything here.
	all, err := ListRecentSyncRuns(ctx, db, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("default-limit list = %d rows, err=%v; want 3", len(all), err)
	}
}
