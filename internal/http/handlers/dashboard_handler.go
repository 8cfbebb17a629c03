// Dashboard HTTP handlers.
//
// This file exposes the aggregate reporting endpoints:
//   - GET /dashboard/volume   (sending volume and derived rates over a range)
//   - GET /dashboard/revenue  (monthly revenue from the billing model)
//   - GET /dashboard/health   (data-health evaluation against thresholds)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leadpulse/marketing-ops-backend/internal/services"
	"github.com/leadpulse/marketing-ops-backend/internal/utils"
)

// defaultVolumeWindowDays is the trailing range used when the caller does not
// provide explicit start/end dates.
const defaultVolumeWindowDays = 30

// Volume godoc
// @ID          dashboardVolume
// @Summary     Sending volume report
// @Description Sums the daily KPI counters per workspace over an inclusive date range and derives reply and bounce rates. Defaults to the trailing 30 days.
// @Tags        Dashboard
// @Produce     json
//
// @Param       start_date  query  string  false "Range start (YYYY-MM-DD)"  example(2026-02-01)
// @Param       end_date    query  string  false "Range end (YYYY-MM-DD)"    example(2026-02-28)
//
// @Success     200  {object}  services.VolumeReport
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid date range"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /dashboard/volume [get]
func (h *Handlers) Volume(c *gin.Context) {
	start := c.Query("start_date")
	end := c.Query("end_date")
	if start == "" && end == "" {
		now := nowUTC()
		end = now.Format("2006-01-02")
		start = now.AddDate(0, 0, -defaultVolumeWindowDays).Format("2006-01-02")
	}

	report, err := h.dashSvc.Volume(c.Request.Context(), start, end)
	if err != nil {
		if errors.Is(err, services.ErrInvalidDateRange) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "start_date and end_date must be YYYY-MM-DD with start <= end")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, report)
}

// Revenue godoc
// @ID          dashboardRevenue
// @Summary     Monthly revenue report
// @Description Computes revenue per active workspace for one billing month: flat retainers plus per-lead workspaces priced by interested leads created inside the month.
// @Tags        Dashboard
// @Produce     json
//
// @Param       month  query  string  false "Billing month (YYYY-MM), defaults to the current month"  example(2026-02)
//
// @Success     200  {object}  services.RevenueReport
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid month"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /dashboard/revenue [get]
func (h *Handlers) Revenue(c *gin.Context) {
	report, err := h.dashSvc.Revenue(c.Request.Context(), c.Query("month"))
	if err != nil {
		if errors.Is(err, services.ErrInvalidDateRange) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "month must be YYYY-MM")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, report)
}

// HealthReport godoc
// @ID          dashboardHealth
// @Summary     Data-health report
// @Description Evaluates each workspace's trailing-window reply and bounce rates against the configured thresholds and flags webhook anomalies.
// @Tags        Dashboard
// @Produce     json
//
// @Param       window_days  query  int  false "Trailing window in days"  minimum(1) default(7)
//
// @Success     200  {object}  services.HealthReport
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /dashboard/health [get]
func (h *Handlers) HealthReport(c *gin.Context) {
	windowDays := utils.AtoiDefault(c.Query("window_days"), 0)

	report, err := h.dashSvc.Health(c.Request.Context(), windowDays)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, report)
}
