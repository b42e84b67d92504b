// Package extractor turns raw document text into a facts.FactModel using a
// strategy specialized per document type. Strategies tolerate partial or
// garbled input and return whatever fields they can confidently parse;
// extracting zero line items is not an error.
package extractor

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"reclaim/internal/domain"
	"reclaim/internal/facts"
)

// Input carries the raw material for one extraction run.
type Input struct {
	DocumentID   uuid.UUID
	DocumentType domain.DocumentType
	Text         string
}

// Strategy extracts structured facts for one document type.
type Strategy interface {
	Extract(ctx context.Context, input Input) (*facts.FactModel, error)
	Name() string
}

// ExtractionError wraps a strategy failure. It is recorded on the workflow
// log; the pipeline proceeds with whatever partial facts exist.
type ExtractionError struct {
	Strategy string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extractor %s: %v", e.Strategy, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewExtractionError creates an ExtractionError for the given strategy.
func NewExtractionError(strategy string, err error) *ExtractionError {
	return &ExtractionError{Strategy: strategy, Err: err}
}
