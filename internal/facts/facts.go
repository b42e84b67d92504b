// Package facts defines the typed representation of billing data extracted
// from a document. A FactModel is produced once per extraction run and never
// mutated; re-running extraction yields a new instance.
package facts

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"reclaim/internal/domain"
)

// LineItem is one billed charge extracted from a document. All amounts are
// non-negative decimals in the model's currency.
type LineItem struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Billed      float64 `json:"billed"`
	Allowed     float64 `json:"allowed"`
	PatientOwed float64 `json:"patient_owed"`
	ServiceDate string  `json:"service_date"` // YYYY-MM-DD, empty if unknown
}

// Totals holds document-level reported totals. These need not equal the sum
// of line items; a mismatch is a signal the rule engine looks for.
type Totals struct {
	Billed      float64 `json:"billed"`
	Allowed     float64 `json:"allowed"`
	PatientOwed float64 `json:"patient_owed"`
}

// FactModel is the structured bag of values extracted from one document.
type FactModel struct {
	DocumentID   uuid.UUID           `json:"document_id"`
	DocumentType domain.DocumentType `json:"document_type"`
	Currency     string              `json:"currency"`
	ProviderName string              `json:"provider_name"`
	PatientRef   string              `json:"patient_ref"` // opaque matching token, never logged
	ClaimID      string              `json:"claim_id"`
	AccountID    string              `json:"account_id"`
	LineItems    []LineItem          `json:"line_items"`
	Totals       Totals              `json:"totals"`
	ExtractedAt  time.Time           `json:"extracted_at"`
}

// ItemCount returns the number of extracted line items.
func (f *FactModel) ItemCount() int {
	if f == nil {
		return 0
	}
	return len(f.LineItems)
}

// LineItemSum returns the sum of billed amounts across line items.
func (f *FactModel) LineItemSum() float64 {
	var sum float64
	for i := range f.LineItems {
		sum += f.LineItems[i].Billed
	}
	return RoundCents(sum)
}

// FactRef returns the evidence reference string for line item i.
func FactRef(i int) string {
	return fmt.Sprintf("line_items[%d]", i)
}

// NormalizeCode uppercases a billing code and strips separators so that
// "d-1110" and "D1110" dedupe together.
func NormalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, ".", "")
	return code
}

// RoundCents rounds an amount to the nearest cent.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// dateLayouts are the service-date formats extraction tolerates.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// NormalizeDate parses a date string in any tolerated layout and returns it
// as YYYY-MM-DD. Unparseable input returns the empty string.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

// ParseAmount parses a currency amount such as "$1,234.56" or "1234.56".
// Parenthesized amounts are treated as negative and rejected by callers that
// require non-negative values.
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return RoundCents(v), true
}
