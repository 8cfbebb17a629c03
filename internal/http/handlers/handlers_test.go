package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/leadpulse/marketing-ops-backend/internal/domain"
	"github.com/leadpulse/marketing-ops-backend/internal/http/middleware"
	"github.com/leadpulse/marketing-ops-backend/internal/repo"
	"github.com/leadpulse/marketing-ops-backend/internal/services"
)

//
// Fakes and fixtures
//

type fakeSync struct {
	sum   *services.RunSummary
	err   error
	calls []string // "trigger/only"
}

func (f *fakeSync) Run(ctx context.Context, trigger, only string) (*services.RunSummary, error) {
	f.calls = append(f.calls, trigger+"/"+only)
	if f.err != nil {
		return nil, f.err
	}
	return f.sum, nil
}

type fakeHook struct {
	res *services.ProcessResult
	err error
	got []byte
}

func (f *fakeHook) Process(ctx context.Context, payload []byte) (*services.ProcessResult, error) {
	f.got = payload
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type fakeDash struct {
	vol    *services.VolumeReport
	rev    *services.RevenueReport
	health *services.HealthReport
	err    error

	gotStart, gotEnd string
	gotMonth         string
	gotWindow        int
}

func (f *fakeDash) Volume(ctx context.Context, start, end string) (*services.VolumeReport, error) {
	f.gotStart, f.gotEnd = start, end
	return f.vol, f.err
}

func (f *fakeDash) Revenue(ctx context.Context, month string) (*services.RevenueReport, error) {
	f.gotMonth = month
	return f.rev, f.err
}

func (f *fakeDash) Health(ctx context.Context, windowDays int) (*services.HealthReport, error) {
	f.gotWindow = windowDays
	return f.health, f.err
}

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := repo.OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// newTestRouter wires the handlers with the same idempotency middleware shape
// the production router uses.
func newTestRouter(t *testing.T, h *Handlers, db *gorm.DB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()

	idem := middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, func(ctx context.Context, workspace, key string, now time.Time) (bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, idemScopeSync, idemWorkspace(workspace), key, now)
		return err == nil && rec != nil, nil
	})

	r.POST("/sync/leads", idem, h.TriggerSync)
	r.GET("/sync/runs", h.ListSyncRuns)
	r.POST("/webhooks/bison", h.ReceiveWebhook)
	r.GET("/dashboard/volume", h.Volume)
	r.GET("/dashboard/revenue", h.Revenue)
	r.GET("/dashboard/health", h.HealthReport)
	r.GET("/workspaces", h.ListWorkspaces)
	r.GET("/workspaces/:name/leads", h.ListWorkspaceLeads)
	return r
}

func seedWorkspaceRow(t *testing.T, db *gorm.DB, name string) {
	t.Helper()
	now := time.Now().UTC()
	ws := &domain.Workspace{
		ID: uuid.NewString(), Name: name, BisonWorkspaceID: 1, BisonInstance: "Maverick",
		IsActive: true, BillingType: domain.BillingRetainer, CreatedAt: now, UpdatedAt: now,
	}
	if err := db.Create(ws).Error; err != nil {
		t.Fatalf("seed workspace: %v", err)
	}
}

func seedLeadRow(t *testing.T, db *gorm.DB, workspace, extID string, replyID int64, received time.Time) {
	t.Helper()
	lead := &domain.Lead{
		ID: uuid.NewString(), ExternalID: extID, WorkspaceName: workspace,
		Email: strings.ToLower(extID) + "@example.com", Interested: true,
		PipelineStage: "new", BisonReplyID: replyID, DateReceived: &received,
	}
	if err := db.Create(lead).Error; err != nil {
		t.Fatalf("seed lead: %v", err)
	}
}

//
// Sync endpoints
//

func TestTriggerSync_RunsAndPersistsIdempotency(t *testing.T) {
	db := newHandlerDB(t)
	sync := &fakeSync{sum: &services.RunSummary{RunID: "run-1", Trigger: "manual", Succeeded: 2}}
	h := New(sync, &fakeHook{}, &fakeDash{}, db, time.Hour)
	r := newTestRouter(t, h, db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sync/leads?workspace=Acme", nil)
	req.Header.Set(middleware.HeaderIdempotencyKey, "sync-acme-1")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var sum services.RunSummary
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatalf("json: %v", err)
	}
	if sum.RunID != "run-1" || sum.Succeeded != 2 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if len(sync.calls) != 1 || sync.calls[0] != "manual/Acme" {
		t.Fatalf("sync calls = %v", sync.calls)
	}

	rec, err := repo.GetIdempotency(context.Background(), db, idemScopeSync, "Acme", "sync-acme-1", time.Now().UTC())
	if err != nil {
		t.Fatalf("idempotency record not persisted: %v", err)
	}
	if rec.Status != http.StatusOK || !strings.Contains(rec.ResultRef, `"run-1"`) {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestTriggerSync_ReplayServesStoredSummary(t *testing.T) {
	db := newHandlerDB(t)
	sync := &fakeSync{sum: &services.RunSummary{RunID: "fresh"}}
	h := New(sync, &fakeHook{}, &fakeDash{}, db, time.Hour)
	r := newTestRouter(t, h, db)

	stored := `{"run_id":"stored","successful":3}`
	if _, err := repo.CreateIdempotency(context.Background(), db, idemScopeSync, "*", "sweep-9", stored, http.StatusOK, time.Hour); err != nil {
		t.Fatalf("seed idempotency: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sync/leads", nil)
	req.Header.Set(middleware.HeaderIdempotencyKey, "sweep-9")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"stored"`) {
		t.Fatalf("expected stored summary, got %s", w.Body.String())
	}
	if len(sync.calls) != 0 {
		t.Fatalf("replay must not start a run: %v", sync.calls)
	}
}

func TestTriggerSync_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown workspace", services.ErrWorkspaceNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"run in progress", services.ErrSyncInProgress, http.StatusConflict, ErrCodeConflict},
		{"platform failure", fmt.Errorf("boom"), http.StatusInternalServerError, ErrCodeSyncFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := newHandlerDB(t)
			h := New(&fakeSync{err: tc.err}, &fakeHook{}, &fakeDash{}, db, time.Hour)
			r := newTestRouter(t, h, db)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/sync/leads", nil)
			r.ServeHTTP(w, req)

			if w.Code != tc.status {
				t.Fatalf("status = %d; want %d", w.Code, tc.status)
			}
			var er ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
				t.Fatalf("json: %v", err)
			}
			if er.Code != tc.code {
				t.Fatalf("code = %q; want %q", er.Code, tc.code)
			}
		})
	}
}

func TestListSyncRuns_NewestFirstWithInlineReport(t *testing.T) {
	db := newHandlerDB(t)
	h := New(&fakeSync{}, &fakeHook{}, &fakeDash{}, db, time.Hour)
	r := newTestRouter(t, h, db)

	base := time.Now().UTC().Add(-time.Hour)
	for i, report := range []string{`{"results":[]}`, `{"results":[{"workspace_name":"Acme"}]}`} {
		run := &domain.SyncRun{
			Trigger: "manual", TotalWorkspaces: i + 1, Succeeded: i + 1,
			Report:     report,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + 30*time.Second),
		}
		if err := repo.CreateSyncRun(context.Background(), db, run); err != nil {
			t.Fatalf("seed run: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sync/runs?limit=10", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ListSyncRunsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Runs) != 2 {
		t.Fatalf("runs = %d; want 2", len(resp.Runs))
	}
	if resp.Runs[0].TotalWorkspaces != 2 {
		t.Fatalf("expected newest run first, got %+v", resp.Runs[0])
	}
	if !strings.Contains(string(resp.Runs[0].Report), "Acme") {
		t.Fatalf("report not inlined: %s", resp.Runs[0].Report)
	}
}

//
// Webhook endpoint
//

func TestReceiveWebhook_SuccessAndErrorMapping(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db := newHandlerDB(t)
		hook := &fakeHook{res: &services.ProcessResult{DeliveryID: "d1", EventType: "email_sent", WorkspaceName: "Acme"}}
		h := New(&fakeSync{}, hook, &fakeDash{}, db, time.Hour)
		r := newTestRouter(t, h, db)

		body := `{"event":{"type":"email_sent","workspace_name":"Acme"}}`
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhooks/bison", strings.NewReader(body))
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if string(hook.got) != body {
			t.Fatalf("payload not forwarded verbatim: %s", hook.got)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		db := newHandlerDB(t)
		h := New(&fakeSync{}, &fakeHook{}, &fakeDash{}, db, time.Hour)
		r := newTestRouter(t, h, db)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhooks/bison", nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d; want 400", w.Code)
		}
	})

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"unknown event", services.ErrUnknownEvent, http.StatusBadRequest},
		{"missing data", services.ErrMissingEventData, http.StatusBadRequest},
		{"storage failure", fmt.Errorf("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := newHandlerDB(t)
			h := New(&fakeSync{}, &fakeHook{err: tc.err}, &fakeDash{}, db, time.Hour)
			r := newTestRouter(t, h, db)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/webhooks/bison", strings.NewReader(`{"event":{}}`))
			r.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("status = %d; want %d", w.Code, tc.status)
			}
		})
	}
}

//
// Dashboard endpoints
//

func TestVolume_DefaultsToTrailingWindow(t *testing.T) {
	db := newHandlerDB(t)
	dash := &fakeDash{vol: &services.VolumeReport{}}
	h := New(&fakeSync{}, &fakeHook{}, dash, db, time.Hour)
	r := newTestRouter(t, h, db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/dashboard/volume", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	start, err := time.Parse("2006-01-02", dash.gotStart)
	if err != nil {
		t.Fatalf("default start not a date: %q", dash.gotStart)
	}
	end, err := time.Parse("2006-01-02", dash.gotEnd)
	if err != nil {
		t.Fatalf("default end not a date: %q", dash.gotEnd)
	}
	if days := int(end.Sub(start).Hours() / 24); days != defaultVolumeWindowDays {
		t.Fatalf("default window = %d days; want %d", days, defaultVolumeWindowDays)
	}
}

func TestVolume_ExplicitRangeAndBadRange(t *testing.T) {
	db := newHandlerDB(t)
	dash := &fakeDash{vol: &services.VolumeReport{}}
	h := New(&fakeSync{}, &fakeHook{}, dash, db, time.Hour)
	r := newTestRouter(t, h, db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/dashboard/volume?start_date=2026-02-01&end_date=2026-02-28", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if dash.gotStart != "2026-02-01" || dash.gotEnd != "2026-02-28" {
		t.Fatalf("range not forwarded: %q..%q", dash.gotStart, dash.gotEnd)
	}

	dash.err = services.ErrInvalidDateRange
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/dashboard/volume?start_date=bogus&end_date=2026-02-28", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", w.Code)
	}
}

func TestRevenueAndHealth_Passthrough(t *testing.T) {
	db := newHandlerDB(t)
	dash := &fakeDash{
		rev:    &services.RevenueReport{Month: "2026-02", Total: 5450},
		health: &services.HealthReport{Healthy: true},
	}
	h := New(&fakeSync{}, &fakeHook{}, dash, db, time.Hour)
	r := newTestRouter(t, h, db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/dashboard/revenue?month=2026-02", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || dash.gotMonth != "2026-02" {
		t.Fatalf("revenue: status=%d month=%q", w.Code, dash.gotMonth)
	}
	var rev services.RevenueReport
	if err := json.Unmarshal(w.Body.Bytes(), &rev); err != nil || rev.Total != 5450 {
		t.Fatalf("revenue body: %v %+v", err, rev)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/dashboard/health?window_days=14", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || dash.gotWindow != 14 {
		t.Fatalf("health: status=%d window=%d", w.Code, dash.gotWindow)
	}
}

//
// Workspace registry endpoints
//

func TestListWorkspaces_ListsAndHonorsETag(t *testing.T) {
	db := newHandlerDB(t)
	seedWorkspaceRow(t, db, "Acme")
	seedWorkspaceRow(t, db, "Globex")
	h := New(&fakeSync{}, &fakeHook{}, &fakeDash{}, db, time.Hour)
	r := newTestRouter(t, h, db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/workspaces", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ListWorkspacesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Workspaces) != 2 {
		t.Fatalf("workspaces = %d; want 2", len(resp.Workspaces))
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag header")
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/workspaces", nil)
	req2.Header.Set("If-None-Match", etag)
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusNotModified {
		t.Fatalf("conditional status = %d; want 304", w2.Code)
	}
}

func TestListWorkspaceLeads_PaginatesAndNotFound(t *testing.T) {
	db := newHandlerDB(t)
	seedWorkspaceRow(t, db, "Acme")
	base := time.Now().UTC().Add(-time.Hour)
	seedLeadRow(t, db, "Acme", "bison_reply_1", 1, base)
	seedLeadRow(t, db, "Acme", "bison_reply_2", 2, base.Add(time.Minute))
	seedLeadRow(t, db, "Acme", "bison_reply_3", 3, base.Add(2*time.Minute))
	h := New(&fakeSync{}, &fakeHook{}, &fakeDash{}, db, time.Hour)
	r := newTestRouter(t, h, db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/workspaces/Acme/leads?page=1&page_size=2", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ListLeadsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Leads) != 2 || resp.Pagination.Total != 3 || !resp.Pagination.HasNext {
		t.Fatalf("unexpected page: %+v", resp.Pagination)
	}
	// Newest reply first.
	if resp.Leads[0].ExternalID != "bison_reply_3" {
		t.Fatalf("order: got %s first", resp.Leads[0].ExternalID)
	}

	// Unknown workspace is a 404, not an empty page.
	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/workspaces/Nowhere/leads", nil)
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusNotFound {
		t.Fatalf("unknown workspace status = %d; want 404", w2.Code)
	}
}

func TestListWorkspaceLeads_ETagRoundTrip(t *testing.T) {
	db := newHandlerDB(t)
	seedWorkspaceRow(t, db, "Acme")
	seedLeadRow(t, db, "Acme", "bison_reply_7", 7, time.Now().UTC())
	h := New(&fakeSync{}, &fakeHook{}, &fakeDash{}, db, time.Hour)
	r := newTestRouter(t, h, db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/workspaces/Acme/leads", nil)
	r.ServeHTTP(w, req)
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || etag == "" {
		t.Fatalf("status=%d etag=%q", w.Code, etag)
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/workspaces/Acme/leads", nil)
	req2.Header.Set("If-None-Match", etag)
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusNotModified {
		t.Fatalf("conditional status = %d; want 304", w2.Code)
	}
}
