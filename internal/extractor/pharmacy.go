package extractor

import (
	"context"
	"fmt"
	"time"

	"reclaim/internal/domain"
	"reclaim/internal/facts"
)

// PharmacyReceiptExtractor parses pharmacy receipts. Fill rows carry an NDC
// code or Rx number and a price; the Rx number substitutes as the code when
// no NDC is printed.
type PharmacyReceiptExtractor struct{}

// NewPharmacyReceiptExtractor creates the pharmacy receipt strategy.
func NewPharmacyReceiptExtractor() *PharmacyReceiptExtractor {
	return &PharmacyReceiptExtractor{}
}

func (e *PharmacyReceiptExtractor) Name() string { return "pharmacy_receipt" }

func (e *PharmacyReceiptExtractor) Extract(_ context.Context, input Input) (*facts.FactModel, error) {
	if !validText(input.Text) {
		return nil, NewExtractionError(e.Name(), fmt.Errorf("input is not valid UTF-8 text"))
	}

	lines := splitLines(input.Text)
	model := &facts.FactModel{
		DocumentID:   input.DocumentID,
		DocumentType: domain.DocTypePharmacyReceipt,
		Currency:     "USD",
		ProviderName: providerName(lines),
		ExtractedAt:  time.Now().UTC(),
	}

	var receiptDate string
	for _, line := range lines {
		if d := findDate(line); d != "" && receiptDate == "" {
			receiptDate = d
		}
		code := ndcRe.FindString(line)
		if code == "" {
			code = firstSubmatch(rxRe, line)
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
			Description: stripMatches(line, ndcRe, rxRe, dateRe, amountRe),
			Billed:      amounts[len(amounts)-1],
			PatientOwed: amounts[len(amounts)-1],
			ServiceDate: findDate(line),
		}
		if item.ServiceDate == "" {
			item.ServiceDate = receiptDate
		}
		model.LineItems = append(model.LineItems, item)
	}

	if total, ok := labeledAmount(input.Text, "total", "amount paid"); ok {
		model.Totals.Billed = total
		model.Totals.PatientOwed = total
	} else {
		model.Totals.Billed = model.LineItemSum()
		model.Totals.PatientOwed = model.Totals.Billed
	}

	return model, nil
}
