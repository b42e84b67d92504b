package router

import (
	"github.com/gin-gonic/gin"

	"reclaim/internal/config"
	"reclaim/internal/handler"
	"reclaim/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	cfg *config.Config,
	documentH *handler.DocumentHandler,
	analysisH *handler.AnalysisHandler,
	issueH *handler.IssueHandler,
	healthH *handler.HealthHandler,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.CORS))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	v1 := r.Group("/api/v1")

	// Profile-scoped routes - require X-Profile-ID
	scoped := v1.Group("")
	scoped.Use(middleware.ProfileContext())

	// Document routes
	documents := scoped.Group("/documents")
	documents.POST("", documentH.Upload)
	documents.GET("", documentH.List)
	documents.GET("/:id", documentH.GetByID)
	documents.PATCH("/:id", documentH.Enrich)

	// Analysis routes
	analyses := scoped.Group("/analyses")
	analyses.POST("", analysisH.Run)
	analyses.GET("/:id", analysisH.Get)
	analyses.POST("/:id/cancel", analysisH.Cancel)
	analyses.GET("/:id/export", analysisH.ExportCSV)

	// Issue routes
	issues := scoped.Group("/issues")
	issues.PATCH("/:id", issueH.UpdateStatus)

	return r
}
