package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"reclaim/internal/domain"
	"reclaim/internal/service"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	maxUploadBytes   = 25 << 20
)

// DocumentHandler handles document upload and metadata endpoints.
type DocumentHandler struct {
	documentService service.DocumentService
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(documentService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// Upload handles POST /api/v1/documents
// Accepts a multipart form with a "file" part and an optional
// "declared_type" field hinting the document type.
func (h *DocumentHandler) Upload(c *gin.Context) {
	pid, ok := profileID(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "multipart 'file' part is required")
		return
	}
	if fileHeader.Size > maxUploadBytes {
		RespondError(c, http.StatusBadRequest, "FILE_TOO_LARGE", "file exceeds the 25MB upload limit")
		return
	}

	declaredType := domain.DocumentType(c.PostForm("declared_type"))
	if declaredType != "" && !domain.ValidDocumentTypes[declaredType] {
		RespondError(c, http.StatusBadRequest, "INVALID_DOCUMENT_TYPE", "unknown declared_type")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "could not read uploaded file")
		return
	}
	defer func() { _ = file.Close() }()

	doc, err := h.documentService.Upload(c.Request.Context(), &service.UploadDocumentInput{
		ProfileID:    pid,
		Name:         fileHeader.Filename,
		ContentType:  fileHeader.Header.Get("Content-Type"),
		DeclaredType: declaredType,
		Body:         file,
		Size:         fileHeader.Size,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondCreated(c, doc)
}

// GetByID handles GET /api/v1/documents/:id
func (h *DocumentHandler) GetByID(c *gin.Context) {
	pid, ok := profileID(c)
	if !ok {
		return
	}

	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid document ID")
		return
	}

	doc, err := h.documentService.GetByID(c.Request.Context(), pid, docID)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, doc)
}

// List handles GET /api/v1/documents
func (h *DocumentHandler) List(c *gin.Context) {
	pid, ok := profileID(c)
	if !ok {
		return
	}

	offset, limit := pagination(c)
	docs, total, err := h.documentService.ListByProfile(c.Request.Context(), pid, offset, limit)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondPaginated(c, docs, PagMeta{Total: total, Offset: offset, Limit: limit})
}

// Enrich handles PATCH /api/v1/documents/:id
// Updates optional enrichment metadata. Absent fields are left unchanged.
func (h *DocumentHandler) Enrich(c *gin.Context) {
	pid, ok := profileID(c)
	if !ok {
		return
	}

	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid document ID")
		return
	}

	var req struct {
		ServiceDate *string  `json:"service_date"`
		PatientOwed *float64 `json:"patient_owed"`
		Action      *string  `json:"action"`
		Notes       *string  `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	input := &service.EnrichDocumentInput{
		ProfileID:   pid,
		DocumentID:  docID,
		PatientOwed: req.PatientOwed,
		Action:      req.Action,
		Notes:       req.Notes,
	}
	if req.ServiceDate != nil {
		parsed, err := time.Parse("2006-01-02", *req.ServiceDate)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "service_date must be YYYY-MM-DD")
			return
		}
		input.ServiceDate = &parsed
	}

	doc, err := h.documentService.Enrich(c.Request.Context(), input)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, doc)
}

func pagination(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageLimit)))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return offset, limit
}
