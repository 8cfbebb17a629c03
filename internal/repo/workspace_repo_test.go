package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/leadpulse/marketing-ops-backend/internal/domain"
)

func mkWorkspace(name string, active bool) *domain.Workspace {
	now := time.Now().UTC()
	return &domain.Workspace{
		ID:               uuid.NewString(),
		Name:             name,
		BisonWorkspaceID: 1,
		BisonInstance:    "Maverick",
		IsActive:         active,
		BillingType:      domain.BillingRetainer,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestListActiveWorkspaces_FiltersAndOrders(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	for _, ws := range []*domain.Workspace{
		mkWorkspace("Zeta", true),
		mkWorkspace("Acme", true),
		mkWorkspace("Dormant", false),
	} {
		if err := db.Create(ws).Error; err != nil {
			t.Fatalf("seed %s: %v", ws.Name, err)
		}
	}

	got, err := ListActiveWorkspaces(ctx, db)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Acme" || got[1].Name != "Zeta" {
		t.Fatalf("unexpected active workspaces: %+v", got)
	}

	all, err := ListWorkspaces(ctx, db)
	if err != nil || len(all) != 3 {
		t.Fatalf("full registry = %d rows, err=%v; want 3", len(all), err)
	}

	// The inactive flag must survive the insert round trip.
	dormant, err := GetWorkspaceByName(ctx, db, "Dormant")
	if err != nil {
		t.Fatalf("get dormant: %v", err)
	}
	if dormant.IsActive {
		t.Fatalf("Dormant persisted as active")
	}
}

func TestGetWorkspaceByName(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	if err := db.Create(mkWorkspace("Acme", true)).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	ws, err := GetWorkspaceByName(ctx, db, "Acme")
	if err != nil || ws.Name != "Acme" {
		t.Fatalf("get: ws=%+v err=%v", ws, err)
	}

	if _, err := GetWorkspaceByName(ctx, db, "Nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAdjustActiveAccounts_IncrementsAndFloorsAtZero(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	if err := db.Create(mkWorkspace("Acme", true)).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := AdjustActiveAccounts(ctx, db, "Acme", 3); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := AdjustActiveAccounts(ctx, db, "Acme", -1); err != nil {
		t.Fatalf("decrement: %v", err)
	}

	ws, err := GetWorkspaceByName(ctx, db, "Acme")
	if err != nil || ws.ActiveAccounts != 2 {
		t.Fatalf("accounts = %d, err=%v; want 2", ws.ActiveAccounts, err)
	}

	// Over-decrement clamps to zero instead of going negative.
	if err := AdjustActiveAccounts(ctx, db, "Acme", -10); err != nil {
		t.Fatalf("over-decrement: %v", err)
	}
	ws, _ = GetWorkspaceByName(ctx, db, "Acme")
	if ws.ActiveAccounts != 0 {
		t.Fatalf("accounts = %d; want 0 after clamp", ws.ActiveAccounts)
	}

	if err := AdjustActiveAccounts(ctx, db, "Nobody", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown workspace, got %v", err)
	}
}
