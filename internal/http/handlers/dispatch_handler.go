// README: Driver dispatch handlers: accept an order, advance a stage, read the active stage.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"courier/internal/http/middleware"
	"courier/internal/modules/dispatch"
	"courier/internal/types"
)

// DispatchService is what the handlers need from *dispatch.Service.
type DispatchService interface {
	AcceptOrder(ctx context.Context, cmd dispatch.AcceptCommand) dispatch.Result
	AdvanceProgress(ctx context.Context, cmd dispatch.AdvanceCommand) dispatch.Result
	GetActiveStage(ctx context.Context, driverID types.ID) dispatch.Result
}

type DispatchHandler struct {
	svc DispatchService
}

func NewDispatchHandler(svc DispatchService) *DispatchHandler {
	return &DispatchHandler{svc: svc}
}

// Accept handles POST /api/drivers/:driver_id/orders/:order_id/accept.
func (h *DispatchHandler) Accept(c *gin.Context) {
	r := h.svc.AcceptOrder(c.Request.Context(), dispatch.AcceptCommand{
		DriverID: types.ID(c.Param("driver_id")),
		OrderID:  types.ID(c.Param("order_id")),
	})
	writeResult(c, r)
}

type advanceRequest struct {
	OrderID *string `json:"order_id"`
}

// Advance handles POST /api/progress-stages/:stage_id/advance. The body is
// optional; order_id targets one bundled order.
func (h *DispatchHandler) Advance(c *gin.Context) {
	var req advanceRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid body")
			return
		}
	}
	cmd := dispatch.AdvanceCommand{StageID: types.ID(c.Param("stage_id"))}
	if req.OrderID != nil {
		id := types.ID(*req.OrderID)
		cmd.OrderID = &id
	}
	if uid := middleware.CallerUID(c); uid != "" {
		caller := types.ID(uid)
		cmd.DriverID = &caller
	}
	writeResult(c, h.svc.AdvanceProgress(c.Request.Context(), cmd))
}

// ActiveStage handles GET /api/drivers/:driver_id/progress-stage.
func (h *DispatchHandler) ActiveStage(c *gin.Context) {
	writeResult(c, h.svc.GetActiveStage(c.Request.Context(), types.ID(c.Param("driver_id"))))
}
