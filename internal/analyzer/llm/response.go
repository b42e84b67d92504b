package llm

import (
	"encoding/json"
	"fmt"

	"reclaim/internal/domain"
	"reclaim/internal/facts"
	"reclaim/internal/port"
)

// wireIssue is an issue as returned by a provider, before validation.
type wireIssue struct {
	IssueType   string  `json:"issue_type"`
	Summary     string  `json:"summary"`
	Code        string  `json:"code"`
	ServiceDate string  `json:"service_date"`
	Amount      float64 `json:"amount"`
	MaxSavings  float64 `json:"max_savings"`
	Confidence  string  `json:"confidence"`
	Evidence    []struct {
		LineItemIndex int    `json:"line_item_index"`
		Note          string `json:"note"`
	} `json:"evidence"`
}

var validIssueTypes = map[domain.IssueType]bool{
	domain.IssueOvercharge:      true,
	domain.IssueDuplicateCharge: true,
	domain.IssueCoverageGap:     true,
	domain.IssueCodeMismatch:    true,
	domain.IssueMathError:       true,
	domain.IssueOther:           true,
}

// decodeIssues parses a provider's JSON text into candidate issues. Unknown
// issue types fall back to other, unknown confidence bands to low, and
// negative savings clamp to zero. Evidence indexes outside the fact model's
// line items are dropped.
func decodeIssues(text, source string, input port.AnalyzeInput) ([]domain.CandidateIssue, error) {
	var parsed struct {
		Issues []wireIssue `json:"issues"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("parsing provider JSON output: %w (raw: %s)", err, truncate(text, 500))
	}

	out := make([]domain.CandidateIssue, 0, len(parsed.Issues))
	for _, wi := range parsed.Issues {
		issueType := domain.IssueType(wi.IssueType)
		if !validIssueTypes[issueType] {
			issueType = domain.IssueOther
		}
		confidence := domain.Confidence(wi.Confidence)
		switch confidence {
		case domain.ConfidenceHigh, domain.ConfidenceMedium, domain.ConfidenceLow:
		default:
			confidence = domain.ConfidenceLow
		}
		maxSavings := wi.MaxSavings
		if maxSavings < 0 {
			maxSavings = 0
		}

		c := domain.CandidateIssue{
			Type:        issueType,
			Code:        facts.NormalizeCode(wi.Code),
			ServiceDate: facts.NormalizeDate(wi.ServiceDate),
			Amount:      facts.RoundCents(wi.Amount),
			Summary:     wi.Summary,
			MaxSavings:  facts.RoundCents(maxSavings),
			Confidence:  confidence,
			Source:      source,
		}
		if input.Facts != nil {
			docID := input.Facts.DocumentID
			c.DocumentID = &docID
			for rank, ev := range wi.Evidence {
				if ev.LineItemIndex < 0 || ev.LineItemIndex >= len(input.Facts.LineItems) {
					continue
				}
				c.Evidence = append(c.Evidence, domain.Evidence{
					DocumentID: docID,
					FactRef:    facts.FactRef(ev.LineItemIndex),
					Note:       ev.Note,
					Rank:       rank + 1,
				})
			}
		}
		out = append(out, c)
	}
	return out, nil
}
