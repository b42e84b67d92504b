// Package heuristic implements the local statistical analyzer. It scores
// line item charges against the document's own distribution and flags
// outliers as overcharge candidates. Like the rule engine it never makes an
// external call, so it is always available.
package heuristic

import (
	"context"
	"fmt"
	"math"

	"reclaim/internal/domain"
	"reclaim/internal/facts"
	"reclaim/internal/port"
)

const (
	// minSamples is the fewest line items a document needs before the
	// distribution is meaningful.
	minSamples = 4
	// outlierZ is the z-score above which a charge is flagged.
	outlierZ = 2.5
	// strongZ upgrades the flag from low to medium confidence.
	strongZ = 3.5
)

// Scorer is the statistical outlier analyzer.
type Scorer struct{}

func NewScorer() *Scorer { return &Scorer{} }

func (s *Scorer) Source() string { return "heuristic" }

func (s *Scorer) Analyze(_ context.Context, input port.AnalyzeInput) ([]domain.CandidateIssue, error) {
	f := input.Facts
	if f == nil || len(f.LineItems) < minSamples {
		return nil, nil
	}

	amounts := make([]float64, 0, len(f.LineItems))
	for i := range f.LineItems {
		if f.LineItems[i].Billed > 0 {
			amounts = append(amounts, f.LineItems[i].Billed)
		}
	}
	if len(amounts) < minSamples {
		return nil, nil
	}

	mean, stddev := meanStddev(amounts)
	if stddev == 0 {
		return nil, nil
	}

	var out []domain.CandidateIssue
	for i := range f.LineItems {
		item := &f.LineItems[i]
		if item.Billed <= 0 {
			continue
		}
		z := (item.Billed - mean) / stddev
		if z < outlierZ {
			continue
		}
		confidence := domain.ConfidenceLow
		if z >= strongZ {
			confidence = domain.ConfidenceMedium
		}
		docID := f.DocumentID
		out = append(out, domain.CandidateIssue{
			DocumentID:  &docID,
			Type:        domain.IssueOvercharge,
			Code:        facts.NormalizeCode(item.Code),
			ServiceDate: item.ServiceDate,
			Amount:      facts.RoundCents(item.Billed),
			Summary: fmt.Sprintf("Charge $%.2f for code %s is %.1f standard deviations above this statement's typical charge ($%.2f)",
				item.Billed, codeOrNone(item.Code), z, mean),
			MaxSavings: facts.RoundCents(item.Billed - mean),
			Confidence: confidence,
			Source:     "heuristic",
			Evidence: []domain.Evidence{{
				DocumentID: f.DocumentID,
				FactRef:    facts.FactRef(i),
				Note:       item.Description,
				Rank:       1,
			}},
		})
	}
	return out, nil
}

func meanStddev(vals []float64) (float64, float64) {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(vals)))
}

func codeOrNone(code string) string {
	if code == "" {
		return "(none)"
	}
	return facts.NormalizeCode(code)
}
