package extractor

import (
	"context"
	"fmt"
	"time"

	"reclaim/internal/domain"
	"reclaim/internal/facts"
)

// DentalBillExtractor parses dental statements. Charge rows carry CDT
// procedure codes (D followed by four digits).
type DentalBillExtractor struct{}

// NewDentalBillExtractor creates the dental bill strategy.
func NewDentalBillExtractor() *DentalBillExtractor {
	return &DentalBillExtractor{}
}

func (e *DentalBillExtractor) Name() string { return "dental_bill" }

func (e *DentalBillExtractor) Extract(_ context.Context, input Input) (*facts.FactModel, error) {
	if !validText(input.Text) {
		return nil, NewExtractionError(e.Name(), fmt.Errorf("input is not valid UTF-8 text"))
	}

	lines := splitLines(input.Text)
	model := &facts.FactModel{
		DocumentID:   input.DocumentID,
		DocumentType: domain.DocTypeDentalBill,
		Currency:     "USD",
		ProviderName: providerName(lines),
		AccountID:    firstSubmatch(accountRe, input.Text),
		ExtractedAt:  time.Now().UTC(),
	}

	for _, line := range lines {
		code := cdtRe.FindString(line)
		if code == "" {
			continue
		}
		amounts := findAmounts(line)
		if len(amounts) == 0 {
			continue
		}
		item := facts.LineItem{
			Code:        code,
			Description: stripMatches(line, cdtRe, dateRe, amountRe),
			Billed:      amounts[0],
			ServiceDate: findDate(line),
		}
		if len(amounts) >= 2 {
			item.PatientOwed = amounts[len(amounts)-1]
		}
		model.LineItems = append(model.LineItems, item)
	}

	if total, ok := labeledAmount(input.Text, "total charges", "total:"); ok {
		model.Totals.Billed = total
	} else {
		model.Totals.Billed = model.LineItemSum()
	}
	if due, ok := labeledAmount(input.Text, "patient portion", "amount due", "balance due"); ok {
		model.Totals.PatientOwed = due
	}

	return model, nil
}
