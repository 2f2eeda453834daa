// README: API gateway; registers gin routes and delegates to the dispatch service.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"courier/internal/http/handlers"
	"courier/internal/http/middleware"
	"courier/internal/infra"
	"courier/internal/notify"
)

type ServerDeps struct {
	Dispatch handlers.DispatchService
	Hub      *notify.Hub
	Verifier infra.TokenVerifier
	Logger   *slog.Logger
}

type Server struct {
	dispatch *handlers.DispatchHandler
	ws       *handlers.WSHandler
	verifier infra.TokenVerifier
	log      *slog.Logger
}

func NewServer(deps ServerDeps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		dispatch: handlers.NewDispatchHandler(deps.Dispatch),
		ws:       handlers.NewWSHandler(deps.Hub, log),
		verifier: deps.Verifier,
		log:      log,
	}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(s.log), middleware.Logging(s.log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	authed := r.Group("/", middleware.Auth(s.verifier))

	api := authed.Group("/api")
	api.POST("/drivers/:driver_id/orders/:order_id/accept", middleware.RequireDriver("driver_id"), s.dispatch.Accept)
	api.GET("/drivers/:driver_id/progress-stage", middleware.RequireDriver("driver_id"), s.dispatch.ActiveStage)
	api.POST("/progress-stages/:stage_id/advance", middleware.RequireDriver(""), s.dispatch.Advance)

	authed.GET("/ws/drivers/:driver_id", middleware.RequireDriver("driver_id"), s.ws.Serve)
	return r
}
