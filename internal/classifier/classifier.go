// Package classifier determines a document's type from its raw text. The
// keyword classifier is deterministic given identical input, degrades to
// "other" on unrecognized input, and has no side effects.
package classifier

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"reclaim/internal/domain"
	"reclaim/internal/port"
)

// typeSignals maps each document type to the phrases that indicate it.
// Matching is case-insensitive; each hit contributes one point.
var typeSignals = map[domain.DocumentType][]string{
	domain.DocTypeEOB: {
		"explanation of benefits", "this is not a bill", "allowed amount",
		"plan paid", "claim number", "member responsibility", "amount covered",
	},
	domain.DocTypeMedicalBill: {
		"patient responsibility", "amount due", "statement", "cpt",
		"office visit", "hospital", "clinic", "balance due", "pay this amount",
	},
	domain.DocTypeDentalBill: {
		"dental", "dds", "tooth", "prophylaxis", "periodontal", "d0120", "d1110",
	},
	domain.DocTypePharmacyReceipt: {
		"pharmacy", "rx number", "rx#", "ndc", "prescription", "refill",
		"copay", "days supply",
	},
	domain.DocTypeFSAClaim: {
		"flexible spending", "fsa", "reimbursement request", "claim form",
		"eligible expense",
	},
}

// KeywordClassifier scores raw text against known phrase lists.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the default deterministic classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (c *KeywordClassifier) Name() string { return "keyword" }

func (c *KeywordClassifier) Classify(_ context.Context, input port.ClassifyInput) (*port.Classification, error) {
	// Non-text content with no extractable text can only be a clinical image
	// or unknown; the declared hint wins if present.
	text := strings.ToLower(input.Text)
	if strings.TrimSpace(text) == "" {
		if input.ContentType == "image/jpeg" || input.ContentType == "image/png" {
			return &port.Classification{
				DocumentType: domain.DocTypeClinicalImage,
				Confidence:   0.5,
				Rationale:    "no extractable text; image content type",
			}, nil
		}
		return &port.Classification{
			DocumentType: domain.DocTypeOther,
			Confidence:   0.0,
			Rationale:    "no extractable text",
		}, nil
	}

	scores := make(map[domain.DocumentType]int)
	hits := make(map[domain.DocumentType][]string)
	for docType, signals := range typeSignals {
		for _, phrase := range signals {
			if strings.Contains(text, phrase) {
				scores[docType]++
				hits[docType] = append(hits[docType], phrase)
			}
		}
	}

	// EOB phrasing also appears on bills that reference a claim; an explicit
	// "this is not a bill" marker settles it.
	if strings.Contains(text, "this is not a bill") {
		scores[domain.DocTypeEOB] += 3
	}

	best := domain.DocTypeOther
	bestScore := 0
	// Deterministic iteration: sort candidate types before picking.
	types := make([]domain.DocumentType, 0, len(scores))
	for t := range scores {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		if scores[t] > bestScore {
			best = t
			bestScore = scores[t]
		}
	}

	if bestScore == 0 {
		rationale := "no known billing phrases matched"
		if input.DeclaredType != "" {
			return &port.Classification{
				DocumentType: input.DeclaredType,
				Confidence:   0.3,
				Rationale:    rationale + "; using declared type hint",
			}, nil
		}
		return &port.Classification{
			DocumentType: domain.DocTypeOther,
			Confidence:   0.1,
			Rationale:    rationale,
		}, nil
	}

	confidence := float64(bestScore) / float64(bestScore+2)
	if input.DeclaredType == best {
		confidence = confidence + (1.0-confidence)*0.3
	}
	matched := hits[best]
	sort.Strings(matched)
	if len(matched) > 4 {
		matched = matched[:4]
	}
	return &port.Classification{
		DocumentType: best,
		Confidence:   confidence,
		Rationale:    fmt.Sprintf("matched phrases: %s", strings.Join(matched, ", ")),
	}, nil
}
