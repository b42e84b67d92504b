package port

import (
	"context"

	"reclaim/internal/domain"
)

// ClassifyInput is the raw material for document classification.
type ClassifyInput struct {
	Text         string
	ContentType  string
	DeclaredType domain.DocumentType // caller-supplied hint, may be empty
}

// Classification is the classifier's verdict for one document.
type Classification struct {
	DocumentType domain.DocumentType
	Confidence   float64
	Rationale    string
}

// Classifier determines a document's type from raw input. Unrecognized input
// classifies as other; classification never fails the pipeline.
type Classifier interface {
	Classify(ctx context.Context, input ClassifyInput) (*Classification, error)
	Name() string
}
