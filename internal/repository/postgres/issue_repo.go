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

type issueRepo struct {
	db *sqlx.DB
}

// NewIssueRepo creates a new PostgreSQL-backed IssueRepository.
func NewIssueRepo(db *sqlx.DB) port.IssueRepository {
	return &issueRepo{db: db}
}

func (r *issueRepo) CreateBatch(ctx context.Context, issues []domain.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("issueRepo.CreateBatch begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range issues {
		issue := &issues[i]
		if issue.ID == (uuid.UUID{}) {
			issue.ID = uuid.New()
		}
		issue.CreatedAt = now
		issue.UpdatedAt = now
		_, err = tx.ExecContext(ctx,
			`INSERT INTO issues (
				id, analysis_id, document_id, issue_type, summary, evidence,
				max_savings, confidence, source, status, notes, dedup_key,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			issue.ID, issue.AnalysisID, issue.DocumentID, issue.Type, issue.Summary, issue.Evidence,
			issue.MaxSavings, issue.Confidence, issue.Source, issue.Status, issue.Notes, issue.DedupKey,
			issue.CreatedAt, issue.UpdatedAt)
		if err != nil {
			return fmt.Errorf("issueRepo.CreateBatch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("issueRepo.CreateBatch commit: %w", err)
	}
	return nil
}

func (r *issueRepo) GetByID(ctx context.Context, issueID uuid.UUID) (*domain.Issue, error) {
	var issue domain.Issue
	err := r.db.GetContext(ctx, &issue, "SELECT * FROM issues WHERE id = $1", issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrIssueNotFound
		}
		return nil, fmt.Errorf("issueRepo.GetByID: %w", err)
	}
	return &issue, nil
}

func (r *issueRepo) ListByAnalysis(ctx context.Context, analysisID uuid.UUID) ([]domain.Issue, error) {
	var issues []domain.Issue
	err := r.db.SelectContext(ctx, &issues,
		`SELECT * FROM issues WHERE analysis_id = $1
		 ORDER BY max_savings DESC, created_at`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("issueRepo.ListByAnalysis: %w", err)
	}
	return issues, nil
}

func (r *issueRepo) UpdateStatus(ctx context.Context, issueID uuid.UUID, status domain.IssueStatus, notes string) (*domain.Issue, error) {
	var issue domain.Issue
	err := r.db.GetContext(ctx, &issue,
		`UPDATE issues SET status = $1, notes = $2, updated_at = $3
		 WHERE id = $4
		 RETURNING *`,
		status, notes, time.Now().UTC(), issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrIssueNotFound
		}
		return nil, fmt.Errorf("issueRepo.UpdateStatus: %w", err)
	}
	return &issue, nil
}
