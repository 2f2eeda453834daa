// README: Websocket upgrade for driver live updates.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"courier/internal/notify"
	"courier/internal/types"
)

type WSHandler struct {
	hub      *notify.Hub
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewWSHandler(hub *notify.Hub, log *slog.Logger) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Driver apps are native clients; browsers are not served.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// Serve handles GET /ws/drivers/:driver_id and holds the connection until
// the driver disconnects.
func (h *WSHandler) Serve(c *gin.Context) {
	driverID := types.ID(c.Param("driver_id"))
	if !driverID.Valid() {
		writeError(c, http.StatusBadRequest, "driver_id must be a UUID")
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "driver_id", driverID, "error", err)
		return
	}
	h.log.Info("driver connected", "driver_id", driverID)
	h.hub.Serve(c.Request.Context(), driverID, conn)
	h.log.Info("driver disconnected", "driver_id", driverID)
}
