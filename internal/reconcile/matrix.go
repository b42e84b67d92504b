package reconcile

import (
	"github.com/google/uuid"
)

// Charge categories a document contributes to the coverage matrix.
const (
	CategoryBill    = "bill"
	CategoryEOB     = "eob"
	CategoryReceipt = "receipt"
)

// Occurrence is one line item folded into a matrix row.
type Occurrence struct {
	Category    string    `json:"category"`
	DocumentID  uuid.UUID `json:"document_id"`
	LineIndex   int       `json:"line_index"`
	Billed      float64   `json:"billed"`
	Allowed     float64   `json:"allowed"`
	PatientOwed float64   `json:"patient_owed"`
}

// Row is one charge, keyed by code, date, and approximate amount, with its
// presence across document categories.
type Row struct {
	Code        string          `json:"code"`
	ServiceDate string          `json:"service_date"`
	Amount      float64         `json:"amount"`
	Presence    map[string]bool `json:"presence"`
	Occurrences []Occurrence    `json:"occurrences"`
}

// Matrix is the coverage matrix for one batch: every distinct charge and
// which document categories it appears in.
type Matrix struct {
	Rows []Row `json:"rows"`
	// HasEOB records whether the batch contained any EOB at all; absence
	// rows are only meaningful when it did.
	HasEOB bool `json:"has_eob"`
}

// eobAllowed sums the allowed amounts this row's EOB occurrences report.
func (r *Row) eobAllowed() (float64, bool) {
	var sum float64
	found := false
	for i := range r.Occurrences {
		if r.Occurrences[i].Category == CategoryEOB {
			found = true
			sum += r.Occurrences[i].Allowed
		}
	}
	return sum, found
}

// billedTotal sums the billed amounts across this row's bill occurrences.
func (r *Row) billedTotal() float64 {
	var sum float64
	for i := range r.Occurrences {
		if r.Occurrences[i].Category == CategoryBill {
			sum += r.Occurrences[i].Billed
		}
	}
	return sum
}
