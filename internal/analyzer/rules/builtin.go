package rules

import (
	"fmt"
	"math"
	"regexp"

	"reclaim/internal/domain"
	"reclaim/internal/facts"
)

var (
	cptShape = regexp.MustCompile(`^\d{5}$`)
	cdtShape = regexp.MustCompile(`^D\d{4}$`)
	ndcShape = regexp.MustCompile(`^\d{8,11}$`)
	rxShape  = regexp.MustCompile(`^RX\d{5,}$`)
)

// MathTotalRule checks that the reported billed total matches the sum of
// line item charges.
func MathTotalRule() Rule {
	return &funcRule{
		key: "math.total_billed",
		check: func(f *facts.FactModel) []domain.CandidateIssue {
			if len(f.LineItems) == 0 || f.Totals.Billed <= 0 {
				return nil
			}
			sum := f.LineItemSum()
			diff := facts.RoundCents(f.Totals.Billed - sum)
			if math.Abs(diff) <= amountTolerance {
				return nil
			}
			confidence := domain.ConfidenceMedium
			savings := 0.0
			if diff > 0 {
				// Total exceeds the itemized charges; the gap is recoverable.
				confidence = domain.ConfidenceHigh
				savings = diff
			}
			docID := f.DocumentID
			return []domain.CandidateIssue{{
				DocumentID:  &docID,
				Type:        domain.IssueMathError,
				ServiceDate: firstServiceDate(f),
				Amount:      f.Totals.Billed,
				Summary: fmt.Sprintf("Billed total $%.2f does not match the sum of line items $%.2f (difference $%.2f)",
					f.Totals.Billed, sum, math.Abs(diff)),
				MaxSavings: savings,
				Confidence: confidence,
				Source:     "rules",
				Evidence: []domain.Evidence{{
					DocumentID: f.DocumentID,
					FactRef:    "totals",
					Note:       fmt.Sprintf("reported billed $%.2f, itemized sum $%.2f", f.Totals.Billed, sum),
					Rank:       1,
				}},
			}}
		},
	}
}

// DuplicateLineRule flags the same code, date, and amount charged more than
// once within a single document.
func DuplicateLineRule() Rule {
	return &funcRule{
		key: "duplicate.line_item",
		check: func(f *facts.FactModel) []domain.CandidateIssue {
			type chargeKey struct {
				code   string
				date   string
				amount float64
			}
			groups := make(map[chargeKey][]int)
			for i := range f.LineItems {
				item := &f.LineItems[i]
				if item.Code == "" || item.Billed <= 0 {
					continue
				}
				k := chargeKey{
					code:   facts.NormalizeCode(item.Code),
					date:   item.ServiceDate,
					amount: facts.RoundCents(item.Billed),
				}
				groups[k] = append(groups[k], i)
			}

			var out []domain.CandidateIssue
			for k, idxs := range groups {
				if len(idxs) < 2 {
					continue
				}
				evidence := make([]domain.Evidence, 0, len(idxs))
				for rank, i := range idxs {
					evidence = append(evidence, domain.Evidence{
						DocumentID: f.DocumentID,
						FactRef:    facts.FactRef(i),
						Note:       f.LineItems[i].Description,
						Rank:       rank + 1,
					})
				}
				docID := f.DocumentID
				out = append(out, domain.CandidateIssue{
					DocumentID:  &docID,
					Type:        domain.IssueDuplicateCharge,
					Code:        k.code,
					ServiceDate: k.date,
					Amount:      k.amount,
					Summary: fmt.Sprintf("Code %s charged %d times for $%.2f on the same statement",
						k.code, len(idxs), k.amount),
					MaxSavings: facts.RoundCents(k.amount * float64(len(idxs)-1)),
					Confidence: domain.ConfidenceHigh,
					Source:     "rules",
					Evidence:   evidence,
				})
			}
			return out
		},
	}
}

// OverchargeRule flags line items where the patient is asked to pay more
// than the allowed or billed amount.
func OverchargeRule() Rule {
	return &funcRule{
		key: "overcharge.patient_owed",
		check: func(f *facts.FactModel) []domain.CandidateIssue {
			var out []domain.CandidateIssue
			for i := range f.LineItems {
				item := &f.LineItems[i]
				var gap float64
				var against string
				var confidence domain.Confidence
				switch {
				case item.Allowed > 0 && item.PatientOwed > item.Allowed+amountTolerance:
					gap = item.PatientOwed - item.Allowed
					against = fmt.Sprintf("allowed amount $%.2f", item.Allowed)
					confidence = domain.ConfidenceHigh
				case item.Billed > 0 && item.PatientOwed > item.Billed+amountTolerance:
					gap = item.PatientOwed - item.Billed
					against = fmt.Sprintf("billed charge $%.2f", item.Billed)
					confidence = domain.ConfidenceMedium
				default:
					continue
				}
				docID := f.DocumentID
				out = append(out, domain.CandidateIssue{
					DocumentID:  &docID,
					Type:        domain.IssueOvercharge,
					Code:        facts.NormalizeCode(item.Code),
					ServiceDate: item.ServiceDate,
					Amount:      facts.RoundCents(item.PatientOwed),
					Summary: fmt.Sprintf("Patient responsibility $%.2f exceeds the %s for code %s",
						item.PatientOwed, against, displayCode(item.Code)),
					MaxSavings: facts.RoundCents(gap),
					Confidence: confidence,
					Source:     "rules",
					Evidence: []domain.Evidence{{
						DocumentID: f.DocumentID,
						FactRef:    facts.FactRef(i),
						Note:       item.Description,
						Rank:       1,
					}},
				})
			}
			return out
		},
	}
}

// CodeFormatRule flags billing codes that match none of the known shapes
// (CPT, CDT, NDC, pharmacy Rx). Malformed codes carry no savings estimate
// but often accompany data-entry errors worth review.
func CodeFormatRule() Rule {
	return &funcRule{
		key: "format.billing_code",
		check: func(f *facts.FactModel) []domain.CandidateIssue {
			var out []domain.CandidateIssue
			for i := range f.LineItems {
				item := &f.LineItems[i]
				code := facts.NormalizeCode(item.Code)
				if code == "" || validCodeShape(code) {
					continue
				}
				docID := f.DocumentID
				out = append(out, domain.CandidateIssue{
					DocumentID:  &docID,
					Type:        domain.IssueCodeMismatch,
					Code:        code,
					ServiceDate: item.ServiceDate,
					Amount:      facts.RoundCents(item.Billed),
					Summary:     fmt.Sprintf("Billing code %q does not match any recognized code format", item.Code),
					Confidence:  domain.ConfidenceLow,
					Source:      "rules",
					Evidence: []domain.Evidence{{
						DocumentID: f.DocumentID,
						FactRef:    facts.FactRef(i),
						Note:       item.Description,
						Rank:       1,
					}},
				})
			}
			return out
		},
	}
}

func validCodeShape(code string) bool {
	return cptShape.MatchString(code) ||
		cdtShape.MatchString(code) ||
		ndcShape.MatchString(code) ||
		rxShape.MatchString(code)
}

func displayCode(code string) string {
	if code == "" {
		return "(none)"
	}
	return code
}

func firstServiceDate(f *facts.FactModel) string {
	for i := range f.LineItems {
		if f.LineItems[i].ServiceDate != "" {
			return f.LineItems[i].ServiceDate
		}
	}
	return ""
}
