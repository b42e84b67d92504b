package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"reclaim/internal/domain"
	"reclaim/internal/port"
)

type documentRepo struct {
	db *sqlx.DB
}

// NewDocumentRepo creates a new PostgreSQL-backed DocumentRepository.
func NewDocumentRepo(db *sqlx.DB) port.DocumentRepository {
	return &documentRepo{db: db}
}

func (r *documentRepo) Create(ctx context.Context, doc *domain.Document) error {
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	query := `INSERT INTO documents (
		id, profile_id, name, content_type, declared_type, document_type,
		status, storage_bucket, storage_key,
		service_date, patient_owed, action, notes,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9,
		$10, $11, $12, $13,
		$14, $15
	)`

	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.ProfileID, doc.Name, doc.ContentType, doc.DeclaredType, doc.DocumentType,
		doc.Status, doc.StorageBucket, doc.StorageKey,
		doc.ServiceDate, doc.PatientOwed, doc.Action, doc.Notes,
		doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("documentRepo.Create: %w", err)
	}
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, docID uuid.UUID) (*domain.Document, error) {
	var doc domain.Document
	err := r.db.GetContext(ctx, &doc, "SELECT * FROM documents WHERE id = $1", docID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("documentRepo.GetByID: %w", err)
	}
	return &doc, nil
}

func (r *documentRepo) ListByIDs(ctx context.Context, docIDs []uuid.UUID) ([]domain.Document, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In("SELECT * FROM documents WHERE id IN (?) ORDER BY created_at", docIDs)
	if err != nil {
		return nil, fmt.Errorf("documentRepo.ListByIDs: %w", err)
	}
	query = r.db.Rebind(query)

	var docs []domain.Document
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("documentRepo.ListByIDs: %w", err)
	}
	return docs, nil
}

func (r *documentRepo) ListByProfile(ctx context.Context, profileID uuid.UUID, offset, limit int) ([]domain.Document, int, error) {
	var total int
	err := r.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM documents WHERE profile_id = $1", profileID)
	if err != nil {
		return nil, 0, fmt.Errorf("documentRepo.ListByProfile count: %w", err)
	}

	var docs []domain.Document
	err = r.db.SelectContext(ctx, &docs,
		`SELECT * FROM documents WHERE profile_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		profileID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("documentRepo.ListByProfile: %w", err)
	}
	return docs, total, nil
}

func (r *documentRepo) UpdateStatus(ctx context.Context, docID uuid.UUID, status domain.DocumentStatus) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE documents SET status = $1, updated_at = $2 WHERE id = $3",
		status, time.Now().UTC(), docID)
	if err != nil {
		return fmt.Errorf("documentRepo.UpdateStatus: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *documentRepo) UpdateEnrichment(ctx context.Context, doc *domain.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET
			document_type = $1, service_date = $2, patient_owed = $3,
			action = $4, notes = $5, updated_at = $6
		 WHERE id = $7`,
		doc.DocumentType, doc.ServiceDate, doc.PatientOwed,
		doc.Action, doc.Notes, doc.UpdatedAt, doc.ID)
	if err != nil {
		return fmt.Errorf("documentRepo.UpdateEnrichment: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}
