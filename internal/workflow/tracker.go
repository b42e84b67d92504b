package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"reclaim/internal/domain"
	"reclaim/internal/port"
)

// Tracker owns one document's progress record for the duration of a run and
// persists every phase change. The record is replaced whole on each write;
// only the single pipeline task owning the document mutates it.
type Tracker struct {
	repo     port.ProgressRepository
	progress *domain.WorkflowProgress
	wlog     domain.WorkflowLog
}

// NewTracker starts tracking a fresh progress record and persists its
// initial phase.
func NewTracker(ctx context.Context, repo port.ProgressRepository, p *domain.WorkflowProgress) (*Tracker, error) {
	t := &Tracker{repo: repo, progress: p}
	if err := t.save(ctx); err != nil {
		return nil, fmt.Errorf("persisting initial progress: %w", err)
	}
	return t, nil
}

// Progress returns the tracked record.
func (t *Tracker) Progress() *domain.WorkflowProgress {
	return t.progress
}

// Log returns the run's workflow log for in-place updates.
func (t *Tracker) Log() *domain.WorkflowLog {
	return &t.wlog
}

// Advance moves to the next phase and persists.
func (t *Tracker) Advance(ctx context.Context, to domain.WorkflowPhase) error {
	if err := Advance(t.progress, to); err != nil {
		return err
	}
	return t.save(ctx)
}

// Fail marks the run failed and persists. Persistence errors are logged but
// not returned; the pipeline error that caused the failure takes precedence.
func (t *Tracker) Fail(ctx context.Context, msg string) {
	if err := Fail(t.progress, msg); err != nil {
		log.Printf("workflow.Tracker: cannot fail progress for document %s: %v", t.progress.DocumentID, err)
		return
	}
	if err := t.save(ctx); err != nil {
		log.Printf("workflow.Tracker: persisting failed progress for document %s: %v", t.progress.DocumentID, err)
	}
}

// SetFacts attaches the extracted fact model snapshot to the record.
func (t *Tracker) SetFacts(factsJSON json.RawMessage) {
	t.progress.Facts = factsJSON
}

func (t *Tracker) save(ctx context.Context) error {
	if wlogJSON, err := json.Marshal(&t.wlog); err == nil {
		t.progress.WorkflowLog = wlogJSON
	}
	return t.repo.Replace(ctx, t.progress)
}
