package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"reclaim/internal/domain"
	"reclaim/internal/middleware"
)

// APIResponse is the standard envelope for all API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *PagMeta    `json:"meta,omitempty"`
}

// APIError holds error details in the response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PagMeta holds pagination metadata.
type PagMeta struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// RespondOK sends a 200 success response.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// RespondAccepted sends a 202 success response.
func RespondAccepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, APIResponse{Success: true, Data: data})
}

// RespondCreated sends a 201 success response.
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

// RespondPaginated sends a 200 success response with pagination metadata.
func RespondPaginated(c *gin.Context, data interface{}, meta PagMeta) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: &meta})
}

// RespondError sends an error response with the given status code.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: msg},
	})
}

// MapDomainError translates domain errors to HTTP status codes and error codes.
func MapDomainError(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound, "DOCUMENT_NOT_FOUND", "document not found"
	case errors.Is(err, domain.ErrAnalysisNotFound):
		return http.StatusNotFound, "ANALYSIS_NOT_FOUND", "analysis not found"
	case errors.Is(err, domain.ErrIssueNotFound):
		return http.StatusNotFound, "ISSUE_NOT_FOUND", "issue not found"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, domain.ErrAnalysisTerminal):
		return http.StatusConflict, "ANALYSIS_TERMINAL", "analysis has already finished"
	case errors.Is(err, domain.ErrNoDocuments):
		return http.StatusBadRequest, "NO_DOCUMENTS", "at least one document id is required"
	case errors.Is(err, domain.ErrNoProviderConfigured):
		return http.StatusServiceUnavailable, "NO_PROVIDER", "no analyzer backend is configured"
	case errors.Is(err, domain.ErrUnsupportedContentType):
		return http.StatusBadRequest, "UNSUPPORTED_CONTENT_TYPE", "unsupported content type; allowed: pdf, jpg, png, txt"
	case errors.Is(err, domain.ErrInvalidIssueStatus):
		return http.StatusBadRequest, "INVALID_ISSUE_STATUS", "invalid issue status; allowed: open, follow_up, resolved, ignored"
	case errors.Is(err, domain.ErrInvalidPhaseTransition):
		return http.StatusConflict, "INVALID_PHASE_TRANSITION", "workflow phase transition not allowed"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	}
}

// HandleError maps a domain error and sends the appropriate error response.
func HandleError(c *gin.Context, err error) {
	status, code, msg := MapDomainError(err)
	if status >= 500 {
		requestID, _ := c.Get("request_id")
		log.Printf("[%s] internal error: %v", requestID, err)
	}
	RespondError(c, status, code, msg)
}

// profileID extracts the profile ID injected by the profile middleware.
// Returns false if it is missing (error response already written).
func profileID(c *gin.Context) (uuid.UUID, bool) {
	id, err := middleware.GetProfileID(c)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "MISSING_PROFILE", "X-Profile-ID header is required")
		return uuid.Nil, false
	}
	return id, true
}
