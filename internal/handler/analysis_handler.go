package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"reclaim/internal/csvexport"
	"reclaim/internal/domain"
	"reclaim/internal/service"
)

// AnalysisHandler handles analysis run and status endpoints.
type AnalysisHandler struct {
	analysisService service.AnalysisService
}

// NewAnalysisHandler creates a new AnalysisHandler.
func NewAnalysisHandler(analysisService service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{analysisService: analysisService}
}

// Run handles POST /api/v1/analyses
// Creates an analysis over the given documents and starts it in the
// background. Returns 202 with the queued analysis row.
func (h *AnalysisHandler) Run(c *gin.Context) {
	pid, ok := profileID(c)
	if !ok {
		return
	}

	var req struct {
		DocumentIDs []uuid.UUID `json:"document_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "document_ids is required")
		return
	}

	a, err := h.analysisService.RunAnalysis(c.Request.Context(), &service.RunAnalysisInput{
		ProfileID:   pid,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondAccepted(c, a)
}

// Get handles GET /api/v1/analyses/:id
// Returns the analysis with per-document progress and any issues found
// so far. Partial results are visible while the run is in flight.
func (h *AnalysisHandler) Get(c *gin.Context) {
	view, ok := h.loadView(c)
	if !ok {
		return
	}
	RespondOK(c, view)
}

// Cancel handles POST /api/v1/analyses/:id/cancel
func (h *AnalysisHandler) Cancel(c *gin.Context) {
	pid, ok := profileID(c)
	if !ok {
		return
	}

	analysisID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid analysis ID")
		return
	}

	view, err := h.analysisService.GetAnalysis(c.Request.Context(), analysisID)
	if err != nil {
		HandleError(c, err)
		return
	}
	if view.Analysis.ProfileID != pid {
		HandleError(c, domain.ErrAnalysisNotFound)
		return
	}

	if err := h.analysisService.CancelAnalysis(c.Request.Context(), analysisID); err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, gin.H{"id": analysisID, "status": domain.AnalysisStatusFailed})
}

// ExportCSV handles GET /api/v1/analyses/:id/export
// Streams the analysis issues as a CSV attachment.
func (h *AnalysisHandler) ExportCSV(c *gin.Context) {
	view, ok := h.loadView(c)
	if !ok {
		return
	}

	filename := csvexport.BuildFilename(fmt.Sprintf("analysis_%s_issues", view.Analysis.ID))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	if _, err := c.Writer.Write(csvexport.BOM); err != nil {
		return
	}
	w := csvexport.NewWriter(c.Writer)
	if err := w.WriteHeader(); err != nil {
		return
	}
	if err := w.WriteIssues(view.Issues); err != nil {
		return
	}
	w.Flush()
}

// loadView parses the path ID, loads the analysis view, and enforces
// profile scoping. False means a response has already been written.
func (h *AnalysisHandler) loadView(c *gin.Context) (*service.AnalysisView, bool) {
	pid, ok := profileID(c)
	if !ok {
		return nil, false
	}

	analysisID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid analysis ID")
		return nil, false
	}

	view, err := h.analysisService.GetAnalysis(c.Request.Context(), analysisID)
	if err != nil {
		HandleError(c, err)
		return nil, false
	}
	if view.Analysis.ProfileID != pid {
		HandleError(c, domain.ErrAnalysisNotFound)
		return nil, false
	}
	return view, true
}
