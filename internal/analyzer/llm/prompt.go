package llm

import (
	"encoding/json"
	"fmt"

	"reclaim/internal/facts"
	"reclaim/internal/port"
)

// maxRawTextLen bounds how much raw document text is sent to a provider.
const maxRawTextLen = 20000

// BuildIssuePrompt returns the issue-detection prompt for a document type.
func BuildIssuePrompt(documentType string) string {
	return `You are a medical billing auditor. Analyze the structured facts (and raw text, if provided) extracted from a ` + documentType + ` and identify likely billing errors.

Look for: charges billed more than once, patient responsibility exceeding the allowed amount, arithmetic that does not add up, billing codes that look wrong for the service described, and services billed but not reflected in coverage.

IMPORTANT INSTRUCTIONS:
- Only report issues supported by the provided facts. Reference supporting line items by their zero-based index.
- Normalize all dates to YYYY-MM-DD format.
- max_savings is the most the patient could recover for the issue, as a number of dollars. Use 0 if no amount is recoverable.
- confidence must be exactly one of "high", "medium", "low".
- issue_type must be exactly one of "overcharge", "duplicate_charge", "coverage_gap", "code_mismatch", "math_error", "other".

Return ONLY valid JSON with no markdown formatting, no code fences, no explanation.

The response must follow this schema:
{
  "issues": [
    {
      "issue_type": "",
      "summary": "",
      "code": "",
      "service_date": "",
      "amount": 0,
      "max_savings": 0,
      "confidence": "",
      "evidence": [
        {"line_item_index": 0, "note": ""}
      ]
    }
  ]
}

If no issues are found, return {"issues": []}.`
}

// buildUserPayload serializes the analyze input into the JSON document sent
// alongside the prompt.
func buildUserPayload(input port.AnalyzeInput) (string, error) {
	payload := struct {
		DocumentType string             `json:"document_type"`
		Facts        *facts.FactModel   `json:"facts"`
		SiblingFacts []*facts.FactModel `json:"sibling_facts,omitempty"`
		RawText      string             `json:"raw_text,omitempty"`
	}{
		DocumentType: string(input.DocumentType),
		Facts:        input.Facts,
		SiblingFacts: input.SiblingFacts,
		RawText:      truncate(input.RawText, maxRawTextLen),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling analyze payload: %w", err)
	}
	return string(b), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
