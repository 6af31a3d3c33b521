package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics http.Handler
	db      Pinger
	ledger  interface{ Available() bool }
}

// NewMetricsHandler constructs a metrics handler. Any argument may be nil.
func NewMetricsHandler(metrics http.Handler, db Pinger, ledger interface{ Available() bool }) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, db: db, ledger: ledger}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready checks the database. The ledger is reported but never fails readiness.
func (h *MetricsHandler) Ready(c *gin.Context) {
	body := gin.H{"status": "ok", "database": "ok"}
	if h.ledger != nil {
		body["ledger_available"] = h.ledger.Available()
	}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			body["status"] = "degraded"
			body["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}
	c.JSON(http.StatusOK, body)
}
