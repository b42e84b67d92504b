package extractor

import (
	"context"
	"fmt"
	"time"

	"reclaim/internal/domain"
	"reclaim/internal/facts"
)

// MedicalBillExtractor parses itemized medical statements. A charge row is
// any line carrying a five-digit CPT/HCPCS code and at least one amount.
type MedicalBillExtractor struct{}

// NewMedicalBillExtractor creates the medical bill strategy.
func NewMedicalBillExtractor() *MedicalBillExtractor {
	return &MedicalBillExtractor{}
}

func (e *MedicalBillExtractor) Name() string { return "medical_bill" }

func (e *MedicalBillExtractor) Extract(_ context.Context, input Input) (*facts.FactModel, error) {
	if !validText(input.Text) {
		return nil, NewExtractionError(e.Name(), fmt.Errorf("input is not valid UTF-8 text"))
	}

	lines := splitLines(input.Text)
	model := &facts.FactModel{
		DocumentID:   input.DocumentID,
		DocumentType: domain.DocTypeMedicalBill,
		Currency:     "USD",
		ProviderName: providerName(lines),
		ClaimID:      firstSubmatch(claimRe, input.Text),
		AccountID:    firstSubmatch(accountRe, input.Text),
		ExtractedAt:  time.Now().UTC(),
	}

	var lastDate string
	for _, line := range lines {
		if d := findDate(line); d != "" {
			lastDate = d
		}
		code := cptRe.FindString(line)
		if code == "" {
			continue
		}
		amounts := findAmounts(line)
		if len(amounts) == 0 {
			continue
		}
		item := facts.LineItem{
			Code:        code,
			Description: stripMatches(line, cptRe, dateRe, amountRe),
			Billed:      amounts[0],
			ServiceDate: findDate(line),
		}
		if item.ServiceDate == "" {
			item.ServiceDate = lastDate
		}
		if len(amounts) >= 2 {
			item.PatientOwed = amounts[len(amounts)-1]
		}
		if len(amounts) >= 3 {
			item.Allowed = amounts[1]
		}
		model.LineItems = append(model.LineItems, item)
	}

	if total, ok := labeledAmount(input.Text, "total charges", "total billed", "total:"); ok {
		model.Totals.Billed = total
	} else {
		model.Totals.Billed = model.LineItemSum()
	}
	if due, ok := labeledAmount(input.Text, "patient responsibility", "amount due", "balance due", "pay this amount"); ok {
		model.Totals.PatientOwed = due
	}

	return model, nil
}
