package extractor

import (
	"context"
	"fmt"
	"time"

	"reclaim/internal/domain"
	"reclaim/internal/facts"
)

// EOBExtractor parses explanation-of-benefits statements. EOB charge rows
// carry a procedure code and a billed/allowed/member-owes amount triple;
// rows with fewer amounts are mapped conservatively.
type EOBExtractor struct{}

// NewEOBExtractor creates the EOB strategy.
func NewEOBExtractor() *EOBExtractor {
	return &EOBExtractor{}
}

func (e *EOBExtractor) Name() string { return "eob" }

func (e *EOBExtractor) Extract(_ context.Context, input Input) (*facts.FactModel, error) {
	if !validText(input.Text) {
		return nil, NewExtractionError(e.Name(), fmt.Errorf("input is not valid UTF-8 text"))
	}

	lines := splitLines(input.Text)
	model := &facts.FactModel{
		DocumentID:   input.DocumentID,
		DocumentType: domain.DocTypeEOB,
		Currency:     "USD",
		ProviderName: providerName(lines),
		ClaimID:      firstSubmatch(claimRe, input.Text),
		ExtractedAt:  time.Now().UTC(),
	}

	for _, line := range lines {
		code := cdtRe.FindString(line)
		if code == "" {
			code = cptRe.FindString(line)
		}
		if code == "" {
			continue
		}
		amounts := findAmounts(line)
		if len(amounts) == 0 {
			continue
		}
		item := facts.LineItem{
			Code:        code,
			Description: stripMatches(line, cptRe, cdtRe, dateRe, amountRe),
			ServiceDate: findDate(line),
		}
		switch {
		case len(amounts) >= 3:
			// billed, allowed, member owes (plan-paid columns, when present,
			// sit between allowed and member owes and are not modeled)
			item.Billed = amounts[0]
			item.Allowed = amounts[1]
			item.PatientOwed = amounts[len(amounts)-1]
		case len(amounts) == 2:
			item.Billed = amounts[0]
			item.Allowed = amounts[1]
		default:
			item.Billed = amounts[0]
		}
		model.LineItems = append(model.LineItems, item)
	}

	if billed, ok := labeledAmount(input.Text, "total billed", "amount billed"); ok {
		model.Totals.Billed = billed
	} else {
		model.Totals.Billed = model.LineItemSum()
	}
	if allowed, ok := labeledAmount(input.Text, "total allowed", "allowed amount"); ok {
		model.Totals.Allowed = allowed
	}
	if owed, ok := labeledAmount(input.Text, "member responsibility", "patient responsibility", "you owe", "you may owe"); ok {
		model.Totals.PatientOwed = owed
	}

	return model, nil
}
