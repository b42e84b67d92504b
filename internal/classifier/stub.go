package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"reclaim/internal/domain"
	"reclaim/internal/port"
)

// StubClassifier returns canned classifications keyed by the SHA-256 hash of
// the input text. Unkeyed input classifies as other. Used for reproducible
// pipeline tests.
type StubClassifier struct {
	byHash map[string]port.Classification
}

// NewStubClassifier creates an empty stub.
func NewStubClassifier() *StubClassifier {
	return &StubClassifier{byHash: make(map[string]port.Classification)}
}

// Key registers a classification for the given raw text.
func (s *StubClassifier) Key(text string, c port.Classification) {
	s.byHash[hashText(text)] = c
}

func (s *StubClassifier) Name() string { return "stub" }

func (s *StubClassifier) Classify(_ context.Context, input port.ClassifyInput) (*port.Classification, error) {
	if c, ok := s.byHash[hashText(input.Text)]; ok {
		out := c
		return &out, nil
	}
	return &port.Classification{
		DocumentType: domain.DocTypeOther,
		Confidence:   0.0,
		Rationale:    "stub: input hash not keyed",
	}, nil
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
