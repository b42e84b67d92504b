package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"reclaim/internal/domain"
	"reclaim/internal/service"
)

// IssueHandler handles issue review endpoints.
type IssueHandler struct {
	analysisService service.AnalysisService
}

// NewIssueHandler creates a new IssueHandler.
func NewIssueHandler(analysisService service.AnalysisService) *IssueHandler {
	return &IssueHandler{analysisService: analysisService}
}

// UpdateStatus handles PATCH /api/v1/issues/:id
// Moves an issue through its review lifecycle and optionally attaches
// reviewer notes.
func (h *IssueHandler) UpdateStatus(c *gin.Context) {
	if _, ok := profileID(c); !ok {
		return
	}

	issueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid issue ID")
		return
	}

	var req struct {
		Status domain.IssueStatus `json:"status" binding:"required"`
		Notes  string             `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "status is required")
		return
	}

	issue, err := h.analysisService.UpdateIssueStatus(c.Request.Context(), issueID, req.Status, req.Notes)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, issue)
}
