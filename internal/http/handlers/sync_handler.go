// Sync HTTP handlers.
//
// This file exposes the reconciliation endpoints:
//   - POST /sync/leads   (trigger a run, optionally for one workspace)
//   - GET  /sync/runs    (recent run audit log)
//
// Triggering a run is idempotent when the client sends an Idempotency-Key:
// a replayed key inside the TTL returns the previously persisted summary
// without starting another run.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leadpulse/marketing-ops-backend/internal/http/middleware"
	"github.com/leadpulse/marketing-ops-backend/internal/repo"
	"github.com/leadpulse/marketing-ops-backend/internal/services"
	"github.com/leadpulse/marketing-ops-backend/internal/utils"
)

// idemScopeSync is the idempotency scope for the sync trigger endpoint.
const idemScopeSync = "sync"

// ListSyncRunsResponse wraps the recent run audit rows.
type ListSyncRunsResponse struct {
	Runs []SyncRunView `json:"runs"`
}

// SyncRunView is one audit row with the stored report inlined as JSON.
type SyncRunView struct {
	ID              string          `json:"id"`
	Trigger         string          `json:"trigger"`
	TotalWorkspaces int             `json:"total_workspaces"`
	Succeeded       int             `json:"succeeded"`
	Failed          int             `json:"failed"`
	LeadsUpserted   int             `json:"leads_upserted"`
	Report          json.RawMessage `json:"report"`
	StartedAt       string          `json:"started_at"`
	FinishedAt      string          `json:"finished_at"`
}

// TriggerSync godoc
// @ID          triggerSync
// @Summary     Trigger a lead reconciliation run
// @Description Pulls interested replies from Email Bison for every active workspace (or a single one) and upserts them as leads. Safe to retry with an Idempotency-Key.
// @Tags        Sync
// @Produce     json
//
// @Param       workspace        query   string  false "Restrict the run to one workspace"  example(Acme Corp)
// @Param       Idempotency-Key  header  string  false "Safe-retry key"                     example(run-2026-02-01)
//
// @Success     200  {object}  services.RunSummary
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown workspace"
// @Failure     409  {object}  handlers.ErrorResponse  "A run is already in progress"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sync/leads [post]
func (h *Handlers) TriggerSync(c *gin.Context) {
	ctx := c.Request.Context()
	workspace := c.Query("workspace")

	// Replay path: return the stored summary without starting another run.
	if key, hasKey := middleware.GetIdempotencyKey(c); hasKey && middleware.IsReplay(c) {
		rec, err := repo.GetIdempotency(ctx, h.db, idemScopeSync, idemWorkspace(workspace), key, nowUTC())
		if err == nil {
			c.Data(rec.Status, "application/json", []byte(rec.ResultRef))
			return
		}
		// Fall through and re-run when the record vanished mid-request.
	}

	sum, err := h.syncSvc.Run(ctx, "manual", workspace)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrWorkspaceNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "workspace not found or inactive")
		case errors.Is(err, services.ErrSyncInProgress):
			fail(c, http.StatusConflict, ErrCodeConflict, "a sync run is already in progress")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeSyncFailed, err.Error())
		}
		return
	}

	if key, hasKey := middleware.GetIdempotencyKey(c); hasKey {
		if body, merr := json.Marshal(sum); merr == nil {
			// Best effort: a concurrent retry winning the insert is fine.
			if _, err := repo.CreateIdempotency(ctx, h.db, idemScopeSync, idemWorkspace(workspace), key, string(body), http.StatusOK, h.idemTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("persist sync idempotency record")
			}
		}
	}

	ok(c, http.StatusOK, sum)
}

// ListSyncRuns godoc
// @ID          listSyncRuns
// @Summary     List recent reconciliation runs
// @Description Returns the newest run audit rows, including the serialized per-workspace report.
// @Tags        Sync
// @Produce     json
//
// @Param       limit  query  int  false "Maximum rows to return"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListSyncRunsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sync/runs [get]
func (h *Handlers) ListSyncRuns(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 20)
	if limit > 100 {
		limit = 100
	}

	runs, err := repo.ListRecentSyncRuns(c.Request.Context(), h.db, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	resp := ListSyncRunsResponse{Runs: make([]SyncRunView, 0, len(runs))}
	for _, r := range runs {
		view := SyncRunView{
			ID:              r.ID,
			Trigger:         r.Trigger,
			TotalWorkspaces: r.TotalWorkspaces,
			Succeeded:       r.Succeeded,
			Failed:          r.Failed,
			LeadsUpserted:   r.LeadsUpserted,
			StartedAt:       r.StartedAt.UTC().Format(timeLayout),
			FinishedAt:      r.FinishedAt.UTC().Format(timeLayout),
		}
		if json.Valid([]byte(r.Report)) {
			view.Report = json.RawMessage(r.Report)
		}
		resp.Runs = append(resp.Runs, view)
	}
	ok(c, http.StatusOK, resp)
}

// idemWorkspace maps an optional workspace filter to the idempotency tenant
// column; "*" marks an all-workspace run.
func idemWorkspace(workspace string) string {
	if workspace == "" {
		return "*"
	}
	return workspace
}
