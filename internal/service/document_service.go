package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"reclaim/internal/config"
	"reclaim/internal/domain"
	"reclaim/internal/port"
)

// UploadDocumentInput is the DTO for document upload requests.
type UploadDocumentInput struct {
	ProfileID    uuid.UUID
	Name         string
	ContentType  string
	DeclaredType domain.DocumentType
	Body         io.ReadSeeker
	Size         int64
}

// EnrichDocumentInput is the DTO for updating a document's enrichment
// metadata. Nil fields are left unchanged.
type EnrichDocumentInput struct {
	ProfileID   uuid.UUID
	DocumentID  uuid.UUID
	ServiceDate *time.Time
	PatientOwed *float64
	Action      *string
	Notes       *string
}

// DocumentService defines the document management contract.
type DocumentService interface {
	Upload(ctx context.Context, input *UploadDocumentInput) (*domain.Document, error)
	GetByID(ctx context.Context, profileID, docID uuid.UUID) (*domain.Document, error)
	ListByProfile(ctx context.Context, profileID uuid.UUID, offset, limit int) ([]domain.Document, int, error)
	Enrich(ctx context.Context, input *EnrichDocumentInput) (*domain.Document, error)
}

type documentService struct {
	docRepo port.DocumentRepository
	storage port.ObjectStorage
	cfg     *config.S3Config
}

// NewDocumentService creates a new DocumentService implementation.
func NewDocumentService(docRepo port.DocumentRepository, storage port.ObjectStorage, cfg *config.S3Config) DocumentService {
	return &documentService{docRepo: docRepo, storage: storage, cfg: cfg}
}

func (s *documentService) Upload(ctx context.Context, input *UploadDocumentInput) (*domain.Document, error) {
	// Magic-byte detection; the declared content type is advisory.
	buf := make([]byte, 512)
	n, err := input.Body.Read(buf)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading document header: %w", err)
	}
	detected := http.DetectContentType(buf[:n])
	contentType := input.ContentType
	if _, ok := domain.AllowedContentTypes[contentType]; !ok {
		contentType = detected
	}
	if _, ok := domain.AllowedContentTypes[contentType]; !ok {
		return nil, domain.ErrUnsupportedContentType
	}
	if _, err := input.Body.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking document body: %w", err)
	}

	docID := uuid.New()
	key := fmt.Sprintf("profiles/%s/documents/%s/%s", input.ProfileID, docID, input.Name)

	doc := &domain.Document{
		ID:            docID,
		ProfileID:     input.ProfileID,
		Name:          input.Name,
		ContentType:   contentType,
		DeclaredType:  input.DeclaredType,
		DocumentType:  input.DeclaredType,
		Status:        domain.DocumentStatusUploaded,
		StorageBucket: s.cfg.Bucket,
		StorageKey:    key,
	}

	log.Printf("documentService.Upload: uploading document %s (%s, %d bytes) for profile %s",
		input.Name, contentType, input.Size, input.ProfileID)

	if err := s.docRepo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}

	if _, err := s.storage.Upload(ctx, port.UploadInput{
		Bucket:      s.cfg.Bucket,
		Key:         key,
		Body:        input.Body,
		ContentType: contentType,
		Size:        input.Size,
	}); err != nil {
		log.Printf("documentService.Upload: storage upload failed for document %s: %v", docID, err)
		_ = s.docRepo.UpdateStatus(ctx, docID, domain.DocumentStatusFailed)
		return nil, fmt.Errorf("uploading document: %w", err)
	}

	return doc, nil
}

func (s *documentService) GetByID(ctx context.Context, profileID, docID uuid.UUID) (*domain.Document, error) {
	doc, err := s.docRepo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.ProfileID != profileID {
		return nil, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func (s *documentService) ListByProfile(ctx context.Context, profileID uuid.UUID, offset, limit int) ([]domain.Document, int, error) {
	return s.docRepo.ListByProfile(ctx, profileID, offset, limit)
}

func (s *documentService) Enrich(ctx context.Context, input *EnrichDocumentInput) (*domain.Document, error) {
	doc, err := s.GetByID(ctx, input.ProfileID, input.DocumentID)
	if err != nil {
		return nil, err
	}
	if input.ServiceDate != nil {
		doc.ServiceDate = input.ServiceDate
	}
	if input.PatientOwed != nil {
		doc.PatientOwed = input.PatientOwed
	}
	if input.Action != nil {
		doc.Action = *input.Action
	}
	if input.Notes != nil {
		doc.Notes = *input.Notes
	}
	if err := s.docRepo.UpdateEnrichment(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving enrichment: %w", err)
	}
	return doc, nil
}
