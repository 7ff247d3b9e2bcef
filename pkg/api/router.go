package api

import (
	"time"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the widget-facing HTTP surface.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RateLimit(60, time.Minute))

	router.GET("/healthz", h.Healthz)

	v1 := router.Group("/v1")
	{
		v1.GET("/rate", h.GetRate)
		v1.POST("/sessions", Idempotency(NewIdempotencyStore(idempotencyMaxKeys)), h.CreateSession)
		v1.GET("/sessions/:id", h.GetSession)
		v1.GET("/sessions/:id/events", h.SessionEvents)
	}
	return router
}
