package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"reclaim/internal/domain"
	"reclaim/internal/port"
)

type progressRepo struct {
	db *sqlx.DB
}

// NewProgressRepo creates a new PostgreSQL-backed ProgressRepository.
func NewProgressRepo(db *sqlx.DB) port.ProgressRepository {
	return &progressRepo{db: db}
}

// Replace upserts the whole record keyed by (analysis_id, document_id).
// The single pipeline task owning the document is the only writer, so
// last-write-wins is safe here.
func (r *progressRepo) Replace(ctx context.Context, p *domain.WorkflowProgress) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO workflow_progress (
			id, analysis_id, document_id, phase, furthest_phase,
			error_message, workflow_log, facts,
			started_at, updated_at, completed_at, failed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (analysis_id, document_id) DO UPDATE SET
			phase = EXCLUDED.phase,
			furthest_phase = EXCLUDED.furthest_phase,
			error_message = EXCLUDED.error_message,
			workflow_log = EXCLUDED.workflow_log,
			facts = EXCLUDED.facts,
			started_at = EXCLUDED.started_at,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at,
			failed_at = EXCLUDED.failed_at`,
		p.ID, p.AnalysisID, p.DocumentID, p.Phase, p.FurthestPhase,
		p.ErrorMessage, p.WorkflowLog, p.Facts,
		p.StartedAt, p.UpdatedAt, p.CompletedAt, p.FailedAt)
	if err != nil {
		return fmt.Errorf("progressRepo.Replace: %w", err)
	}
	return nil
}

func (r *progressRepo) Get(ctx context.Context, analysisID, documentID uuid.UUID) (*domain.WorkflowProgress, error) {
	var p domain.WorkflowProgress
	err := r.db.GetContext(ctx, &p,
		"SELECT * FROM workflow_progress WHERE analysis_id = $1 AND document_id = $2",
		analysisID, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("progressRepo.Get: %w", err)
	}
	return &p, nil
}

func (r *progressRepo) ListByAnalysis(ctx context.Context, analysisID uuid.UUID) ([]domain.WorkflowProgress, error) {
	var list []domain.WorkflowProgress
	err := r.db.SelectContext(ctx, &list,
		"SELECT * FROM workflow_progress WHERE analysis_id = $1 ORDER BY started_at",
		analysisID)
	if err != nil {
		return nil, fmt.Errorf("progressRepo.ListByAnalysis: %w", err)
	}
	return list, nil
}
