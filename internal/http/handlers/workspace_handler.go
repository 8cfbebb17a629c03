// Workspace registry HTTP handlers.
//
// This file exposes read access to the client registry and its leads:
//   - GET /workspaces               (registry listing, ETag support)
//   - GET /workspaces/{name}/leads  (paginated leads, ETag support)
//
// Both endpoints emit weak ETags derived from row counts and the newest
// UpdatedAt so dashboard polling can short-circuit with 304s.
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leadpulse/marketing-ops-backend/internal/domain"
	"github.com/leadpulse/marketing-ops-backend/internal/repo"
)

// ListWorkspacesResponse wraps the workspace registry listing.
type ListWorkspacesResponse struct {
	Workspaces []domain.Workspace `json:"workspaces"`
}

// ListLeadsResponse wraps a page of a workspace's leads.
type ListLeadsResponse struct {
	WorkspaceName string        `json:"workspace_name"`
	Leads         []domain.Lead `json:"leads"`
	Pagination    Pagination    `json:"pagination"`
}

// ListWorkspaces godoc
// @ID          listWorkspaces
// @Summary     List workspaces
// @Description Returns the full client registry, active and inactive. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Workspaces
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
//
// @Success     200  {object}  handlers.ListWorkspacesResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /workspaces [get]
func (h *Handlers) ListWorkspaces(c *gin.Context) {
	ctx := c.Request.Context()

	// ETag pre-check (best effort).
	if count, maxTS, err := repo.WorkspacesStats(ctx, h.db); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"workspaces:%d:%d"`, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := repo.ListWorkspaces(ctx, h.db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListWorkspacesResponse{Workspaces: items})
}

// ListWorkspaceLeads godoc
// @ID          listWorkspaceLeads
// @Summary     List a workspace's leads (paginated)
// @Description Returns a page of the workspace's reconciled leads, newest reply first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Workspaces
// @Produce     json
//
// @Param       name           path    string  true  "Workspace name"               example(Acme Corp)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"   example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListLeadsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Workspace not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /workspaces/{name}/leads [get]
func (h *Handlers) ListWorkspaceLeads(c *gin.Context) {
	ctx := c.Request.Context()
	name := c.Param("name")

	if _, err := repo.GetWorkspaceByName(ctx, h.db, name); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "workspace not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := repo.LeadsStats(ctx, h.db, name); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"leads:%s:%d:%d:%d:%d"`, name, count, ts, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	total, err := repo.CountLeads(ctx, h.db, name)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	items, err := repo.ListLeadsPage(ctx, h.db, name, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	resp := ListLeadsResponse{
		WorkspaceName: name,
		Leads:         items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
	ok(c, http.StatusOK, resp)
}
