// README: Base handler utilities (JSON helpers, result-to-status mapping).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"courier/internal/modules/dispatch"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func statusFor(kind dispatch.FailureKind) int {
	switch kind {
	case dispatch.KindValidation:
		return http.StatusBadRequest
	case dispatch.KindNotFound:
		return http.StatusNotFound
	case dispatch.KindConflict:
		return http.StatusConflict
	case dispatch.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeResult answers 200 with the result on success, otherwise the status
// matching its failure kind.
func writeResult(c *gin.Context, r dispatch.Result) {
	if r.Success {
		writeJSON(c, http.StatusOK, r)
		return
	}
	writeJSON(c, statusFor(r.Kind), errorResponse{Error: r.Message, Kind: string(r.Kind)})
}
