package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db        *sqlx.DB
	analyzers []string
}

// NewHealthHandler creates a new HealthHandler. analyzers is the list of
// configured analyzer backend sources; readiness reports it so operators can
// see at a glance which backends a deployment runs with.
func NewHealthHandler(db *sqlx.DB, analyzers []string) *HealthHandler {
	return &HealthHandler{db: db, analyzers: analyzers}
}

// Liveness handles GET /healthz
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness handles GET /readyz
func (h *HealthHandler) Readiness(c *gin.Context) {
	if len(h.analyzers) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "no analyzer backends configured"})
		return
	}
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database not reachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "analyzers": h.analyzers})
}
