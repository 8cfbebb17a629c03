// Webhook HTTP handler.
//
// This file exposes the ingestion endpoint for Email Bison webhook events:
//   - POST /webhooks/bison
//
// The platform retries failed deliveries, so the handler distinguishes
// caller-side payload problems (400, no retry will ever succeed) from
// server-side failures (500, retry welcome).
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leadpulse/marketing-ops-backend/internal/services"
)

// ReceiveWebhook godoc
// @ID          receiveWebhook
// @Summary     Ingest an Email Bison webhook event
// @Description Accepts one webhook delivery, records it in the audit log, and routes it by event type (KPI counters, reply feed, pipeline stage moves, account bookkeeping).
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Success     200  {object}  services.ProcessResult
// @Failure     400  {object}  handlers.ErrorResponse  "Unroutable or malformed event"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /webhooks/bison [post]
func (h *Handlers) ReceiveWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable request body")
		return
	}
	if len(payload) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "empty request body")
		return
	}

	res, err := h.hookSvc.Process(c.Request.Context(), payload)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownEvent):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown event type")
		case errors.Is(err, services.ErrMissingEventData):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "event payload is missing required data")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeWebhookFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, res)
}
