package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"reclaim/internal/domain"
)

// DocumentRepository defines the contract for document persistence.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, docID uuid.UUID) (*domain.Document, error)
	ListByIDs(ctx context.Context, docIDs []uuid.UUID) ([]domain.Document, error)
	ListByProfile(ctx context.Context, profileID uuid.UUID, offset, limit int) ([]domain.Document, int, error)
	UpdateStatus(ctx context.Context, docID uuid.UUID, status domain.DocumentStatus) error
	UpdateEnrichment(ctx context.Context, doc *domain.Document) error
}

// AnalysisRepository defines the contract for analysis persistence.
type AnalysisRepository interface {
	Create(ctx context.Context, a *domain.Analysis, docIDs []uuid.UUID) error
	GetByID(ctx context.Context, analysisID uuid.UUID) (*domain.Analysis, error)
	DocumentIDs(ctx context.Context, analysisID uuid.UUID) ([]uuid.UUID, error)
	Update(ctx context.Context, a *domain.Analysis) error
	// ClaimQueued atomically claims up to limit analyses that are queued and
	// past their retry_after, marking them processing and incrementing
	// their attempt count.
	ClaimQueued(ctx context.Context, limit int, now time.Time) ([]domain.Analysis, error)
}

// IssueRepository defines the contract for issue persistence.
type IssueRepository interface {
	CreateBatch(ctx context.Context, issues []domain.Issue) error
	GetByID(ctx context.Context, issueID uuid.UUID) (*domain.Issue, error)
	ListByAnalysis(ctx context.Context, analysisID uuid.UUID) ([]domain.Issue, error)
	UpdateStatus(ctx context.Context, issueID uuid.UUID, status domain.IssueStatus, notes string) (*domain.Issue, error)
}

// ProgressRepository persists per-document workflow progress. Records are
// replaced whole on write; the single task owning a document is the only
// writer for its record.
type ProgressRepository interface {
	Replace(ctx context.Context, p *domain.WorkflowProgress) error
	Get(ctx context.Context, analysisID, documentID uuid.UUID) (*domain.WorkflowProgress, error)
	ListByAnalysis(ctx context.Context, analysisID uuid.UUID) ([]domain.WorkflowProgress, error)
}
