package port

import (
	"context"

	"reclaim/internal/domain"
	"reclaim/internal/facts"
)

// AnalyzeInput carries the facts an analyzer operates over. SiblingFacts are
// the other documents in the same batch, for analyzers that can use
// cross-document context.
type AnalyzeInput struct {
	Facts        *facts.FactModel
	SiblingFacts []*facts.FactModel
	DocumentType domain.DocumentType
	RawText      string
}

// Analyzer is an analyzer backend producing candidate issues from facts.
// Implementations must be safe for concurrent use; remote implementations
// must honor ctx deadlines and return typed transient/permanent errors.
type Analyzer interface {
	Analyze(ctx context.Context, input AnalyzeInput) ([]domain.CandidateIssue, error)
	Source() string
}
