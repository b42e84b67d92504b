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

type analysisRepo struct {
	db *sqlx.DB
}

// NewAnalysisRepo creates a new PostgreSQL-backed AnalysisRepository.
func NewAnalysisRepo(db *sqlx.DB) port.AnalysisRepository {
	return &analysisRepo{db: db}
}

func (r *analysisRepo) Create(ctx context.Context, a *domain.Analysis, docIDs []uuid.UUID) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("analysisRepo.Create begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO analyses (
			id, profile_id, status, provider, coverage_matrix, total_savings,
			error, attempts, retry_after, created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.ProfileID, a.Status, a.Provider, a.CoverageMatrix, a.TotalSavings,
		a.Error, a.Attempts, a.RetryAfter, a.CreatedAt, a.UpdatedAt, a.CompletedAt)
	if err != nil {
		return fmt.Errorf("analysisRepo.Create: %w", err)
	}

	for _, docID := range docIDs {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO analysis_documents (analysis_id, document_id) VALUES ($1, $2)",
			a.ID, docID)
		if err != nil {
			return fmt.Errorf("analysisRepo.Create link: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("analysisRepo.Create commit: %w", err)
	}
	return nil
}

func (r *analysisRepo) GetByID(ctx context.Context, analysisID uuid.UUID) (*domain.Analysis, error) {
	var a domain.Analysis
	err := r.db.GetContext(ctx, &a, "SELECT * FROM analyses WHERE id = $1", analysisID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("analysisRepo.GetByID: %w", err)
	}
	return &a, nil
}

func (r *analysisRepo) DocumentIDs(ctx context.Context, analysisID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids,
		"SELECT document_id FROM analysis_documents WHERE analysis_id = $1", analysisID)
	if err != nil {
		return nil, fmt.Errorf("analysisRepo.DocumentIDs: %w", err)
	}
	return ids, nil
}

func (r *analysisRepo) Update(ctx context.Context, a *domain.Analysis) error {
	a.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE analyses SET
			status = $1, coverage_matrix = $2, total_savings = $3,
			error = $4, attempts = $5, retry_after = $6,
			updated_at = $7, completed_at = $8
		 WHERE id = $9`,
		a.Status, a.CoverageMatrix, a.TotalSavings,
		a.Error, a.Attempts, a.RetryAfter,
		a.UpdatedAt, a.CompletedAt, a.ID)
	if err != nil {
		return fmt.Errorf("analysisRepo.Update: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrAnalysisNotFound
	}
	return nil
}

func (r *analysisRepo) ClaimQueued(ctx context.Context, limit int, now time.Time) ([]domain.Analysis, error) {
	// SKIP LOCKED keeps multiple workers from claiming the same run.
	var claimed []domain.Analysis
	err := r.db.SelectContext(ctx, &claimed,
		`UPDATE analyses SET status = $1, attempts = attempts + 1, updated_at = $2
		 WHERE id IN (
			SELECT id FROM analyses
			WHERE status = $3 AND (retry_after IS NULL OR retry_after <= $2)
			ORDER BY created_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING *`,
		domain.AnalysisStatusProcessing, now, domain.AnalysisStatusQueued, limit)
	if err != nil {
		return nil, fmt.Errorf("analysisRepo.ClaimQueued: %w", err)
	}
	return claimed, nil
}
