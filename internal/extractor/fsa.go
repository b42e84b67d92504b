package extractor

import (
	"context"
	"fmt"
	"time"

	"reclaim/internal/domain"
	"reclaim/internal/facts"
)

// FSAClaimExtractor parses flexible-spending claim forms. Claim rows often
// have no procedure code, only a dated expense with an amount; such rows are
// kept with an empty code so reconciliation can still match on date+amount.
type FSAClaimExtractor struct{}

// NewFSAClaimExtractor creates the FSA claim strategy.
func NewFSAClaimExtractor() *FSAClaimExtractor {
	return &FSAClaimExtractor{}
}

func (e *FSAClaimExtractor) Name() string { return "fsa_claim" }

func (e *FSAClaimExtractor) Extract(_ context.Context, input Input) (*facts.FactModel, error) {
	if !validText(input.Text) {
		return nil, NewExtractionError(e.Name(), fmt.Errorf("input is not valid UTF-8 text"))
	}

	lines := splitLines(input.Text)
	model := &facts.FactModel{
		DocumentID:   input.DocumentID,
		DocumentType: domain.DocTypeFSAClaim,
		Currency:     "USD",
		ClaimID:      firstSubmatch(claimRe, input.Text),
		AccountID:    firstSubmatch(accountRe, input.Text),
		ExtractedAt:  time.Now().UTC(),
	}

	for _, line := range lines {
		date := findDate(line)
		amounts := findAmounts(line)
		if date == "" || len(amounts) == 0 {
			continue
		}
		code := cptRe.FindString(line)
		if code == "" {
			code = cdtRe.FindString(line)
		}
		model.LineItems = append(model.LineItems, facts.LineItem{
			Code:        code,
			Description: stripMatches(line, cptRe, cdtRe, dateRe, amountRe),
			Billed:      amounts[len(amounts)-1],
			PatientOwed: amounts[len(amounts)-1],
			ServiceDate: date,
		})
	}

	if total, ok := labeledAmount(input.Text, "total requested", "reimbursement amount", "total"); ok {
		model.Totals.Billed = total
		model.Totals.PatientOwed = total
	} else {
		model.Totals.Billed = model.LineItemSum()
		model.Totals.PatientOwed = model.Totals.Billed
	}

	return model, nil
}
