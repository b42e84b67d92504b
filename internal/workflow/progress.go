// Package workflow implements the per-document progress state machine. A
// document's run moves through a fixed sequence of phases; failure is
// reachable from any non-terminal phase, and terminal phases accept no
// further transitions.
package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"reclaim/internal/domain"
)

// phaseOrder gives each phase its position in the forward sequence.
// Terminal phases are excluded; they are handled explicitly.
var phaseOrder = map[domain.WorkflowPhase]int{
	domain.PhasePreExtraction: 0,
	domain.PhaseExtraction:    1,
	domain.PhaseLineItems:     2,
	domain.PhaseAnalysis:      3,
	domain.PhaseComplete:      4,
}

// CanTransition reports whether from -> to is a legal phase transition:
// one step forward in the sequence, or failed from any non-terminal phase.
func CanTransition(from, to domain.WorkflowPhase) bool {
	if from.Terminal() {
		return false
	}
	if to == domain.PhaseFailed {
		return true
	}
	fromPos, okFrom := phaseOrder[from]
	toPos, okTo := phaseOrder[to]
	return okFrom && okTo && toPos == fromPos+1
}

// NewProgress creates a fresh progress record at the first phase.
func NewProgress(analysisID, documentID uuid.UUID) *domain.WorkflowProgress {
	now := time.Now().UTC()
	return &domain.WorkflowProgress{
		ID:            uuid.New(),
		AnalysisID:    analysisID,
		DocumentID:    documentID,
		Phase:         domain.PhasePreExtraction,
		FurthestPhase: domain.PhasePreExtraction,
		StartedAt:     now,
		UpdatedAt:     now,
	}
}

// Advance moves the progress one phase forward, updating the furthest phase
// reached. Returns domain.ErrInvalidPhaseTransition on anything but the
// next phase in sequence.
func Advance(p *domain.WorkflowProgress, to domain.WorkflowPhase) error {
	if !CanTransition(p.Phase, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidPhaseTransition, p.Phase, to)
	}
	now := time.Now().UTC()
	p.Phase = to
	p.UpdatedAt = now
	if phaseOrder[to] > phaseOrder[p.FurthestPhase] {
		p.FurthestPhase = to
	}
	if to == domain.PhaseComplete {
		p.CompletedAt = &now
	}
	return nil
}

// Fail moves the progress to the failed phase, recording the message. The
// furthest phase reached is retained for diagnostics. Failing an already
// terminal progress is rejected.
func Fail(p *domain.WorkflowProgress, msg string) error {
	if !CanTransition(p.Phase, domain.PhaseFailed) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidPhaseTransition, p.Phase, domain.PhaseFailed)
	}
	now := time.Now().UTC()
	p.Phase = domain.PhaseFailed
	p.ErrorMessage = msg
	p.UpdatedAt = now
	p.FailedAt = &now
	return nil
}
