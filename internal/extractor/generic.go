package extractor

import (
	"context"
	"fmt"
	"time"

	"reclaim/internal/facts"
)

// GenericExtractor is the fallback for "other" and unrecognized document
// types. It salvages totals and identifiers without attempting line items.
type GenericExtractor struct{}

// NewGenericExtractor creates the fallback strategy.
func NewGenericExtractor() *GenericExtractor {
	return &GenericExtractor{}
}

func (e *GenericExtractor) Name() string { return "generic" }

func (e *GenericExtractor) Extract(_ context.Context, input Input) (*facts.FactModel, error) {
	if !validText(input.Text) {
		return nil, NewExtractionError(e.Name(), fmt.Errorf("input is not valid UTF-8 text"))
	}

	lines := splitLines(input.Text)
	model := &facts.FactModel{
		DocumentID:   input.DocumentID,
		DocumentType: input.DocumentType,
		Currency:     "USD",
		ProviderName: providerName(lines),
		ClaimID:      firstSubmatch(claimRe, input.Text),
		AccountID:    firstSubmatch(accountRe, input.Text),
		ExtractedAt:  time.Now().UTC(),
	}

	if total, ok := labeledAmount(input.Text, "total", "amount due", "balance"); ok {
		model.Totals.Billed = total
	}
	if owed, ok := labeledAmount(input.Text, "patient responsibility", "amount due"); ok {
		model.Totals.PatientOwed = owed
	}

	return model, nil
}
