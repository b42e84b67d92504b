// Package reconcile cross-references fact models from the same batch: a
// bill against its EOB against a receipt. It produces a coverage matrix of
// every distinct charge and emits candidate issues for charges the coverage
// contradicts.
package reconcile

import (
	"fmt"
	"log"
	"math"
	"time"

	"reclaim/internal/config"
	"reclaim/internal/domain"
	"reclaim/internal/facts"
)

// Engine matches charges across documents using configurable tolerances.
type Engine struct {
	cfg config.ReconcileConfig
}

// Result is one reconciliation pass: the matrix plus reconciliation-derived
// candidate issues.
type Result struct {
	Matrix     Matrix
	Candidates []domain.CandidateIssue
}

func NewEngine(cfg config.ReconcileConfig) *Engine {
	if cfg.AmountEpsilon <= 0 {
		cfg.AmountEpsilon = 0.01
	}
	return &Engine{cfg: cfg}
}

// Reconcile builds the coverage matrix for a batch and derives candidate
// issues from it. Fewer than two eligible documents means there is nothing
// to cross-reference; the pass is skipped with an empty matrix and no error.
func (e *Engine) Reconcile(models []*facts.FactModel) *Result {
	eligible := make([]*facts.FactModel, 0, len(models))
	for _, f := range models {
		if f != nil && category(f.DocumentType) != "" {
			eligible = append(eligible, f)
		}
	}
	if len(eligible) < 2 {
		log.Printf("reconcile.Engine: %d eligible documents, skipping cross-reference", len(eligible))
		return &Result{Matrix: Matrix{Rows: []Row{}}}
	}

	matrix := e.buildMatrix(eligible)
	candidates := e.deriveCandidates(&matrix)
	log.Printf("reconcile.Engine: %d documents cross-referenced into %d charges, %d candidates",
		len(eligible), len(matrix.Rows), len(candidates))
	return &Result{Matrix: matrix, Candidates: candidates}
}

func (e *Engine) buildMatrix(models []*facts.FactModel) Matrix {
	matrix := Matrix{Rows: []Row{}}
	for _, f := range models {
		cat := category(f.DocumentType)
		if cat == CategoryEOB {
			matrix.HasEOB = true
		}
		for i := range f.LineItems {
			item := &f.LineItems[i]
			if item.Billed <= 0 && item.Allowed <= 0 && item.PatientOwed <= 0 {
				continue
			}
			amount := rowAmount(item)
			code := facts.NormalizeCode(item.Code)
			row := e.findRow(&matrix, code, item.ServiceDate, amount)
			if row == nil {
				matrix.Rows = append(matrix.Rows, Row{
					Code:        code,
					ServiceDate: item.ServiceDate,
					Amount:      facts.RoundCents(amount),
					Presence:    map[string]bool{},
				})
				row = &matrix.Rows[len(matrix.Rows)-1]
			}
			row.Presence[cat] = true
			row.Occurrences = append(row.Occurrences, Occurrence{
				Category:    cat,
				DocumentID:  f.DocumentID,
				LineIndex:   i,
				Billed:      item.Billed,
				Allowed:     item.Allowed,
				PatientOwed: item.PatientOwed,
			})
		}
	}
	return matrix
}

// findRow returns the existing row this charge matches, or nil. Codes must
// match exactly (after normalization); amounts match within the epsilon and
// dates within the window.
func (e *Engine) findRow(matrix *Matrix, code, date string, amount float64) *Row {
	for i := range matrix.Rows {
		row := &matrix.Rows[i]
		if row.Code != code {
			continue
		}
		if !e.amountsMatch(row.Amount, amount) {
			continue
		}
		if !e.datesMatch(row.ServiceDate, date) {
			continue
		}
		return row
	}
	return nil
}

// amountsMatch compares charges in whole cents. Comparing raw float64
// differences against the epsilon would push amounts exactly one cent apart
// over a 0.01 epsilon through representation noise.
func (e *Engine) amountsMatch(a, b float64) bool {
	diff := math.Abs(math.Round(a*100) - math.Round(b*100))
	return diff <= math.Round(e.cfg.AmountEpsilon*100)
}

func (e *Engine) datesMatch(a, b string) bool {
	if a == b {
		return true
	}
	if a == "" || b == "" || e.cfg.DateWindowDays == 0 {
		return false
	}
	ta, errA := time.Parse("2006-01-02", a)
	tb, errB := time.Parse("2006-01-02", b)
	if errA != nil || errB != nil {
		return false
	}
	days := int(math.Abs(ta.Sub(tb).Hours()) / 24)
	return days <= e.cfg.DateWindowDays
}

// deriveCandidates emits issues the matrix directly supports: coverage gaps
// where an EOB allows nothing for a billed charge, and the same charge
// appearing on more than one bill. Mere absence rows are left to the merger
// to promote or not.
func (e *Engine) deriveCandidates(matrix *Matrix) []domain.CandidateIssue {
	var out []domain.CandidateIssue
	for i := range matrix.Rows {
		row := &matrix.Rows[i]
		if c := e.coverageGap(row); c != nil {
			out = append(out, *c)
		}
		if c := e.crossBillDuplicate(row); c != nil {
			out = append(out, *c)
		}
	}
	return out
}

// coverageGap fires when a billed charge is matched by an EOB that allows
// $0.00 for it.
func (e *Engine) coverageGap(row *Row) *domain.CandidateIssue {
	if !row.Presence[CategoryBill] || !row.Presence[CategoryEOB] {
		return nil
	}
	allowed, found := row.eobAllowed()
	if !found || allowed > e.cfg.AmountEpsilon {
		return nil
	}
	billed := row.billedTotal()
	if billed <= 0 {
		return nil
	}
	return &domain.CandidateIssue{
		Type:        domain.IssueCoverageGap,
		Code:        row.Code,
		ServiceDate: row.ServiceDate,
		Amount:      facts.RoundCents(row.Amount),
		Summary: fmt.Sprintf("Charge %s for $%.2f was billed but the EOB shows $0.00 allowed",
			codeLabel(row.Code), billed),
		MaxSavings: facts.RoundCents(billed),
		Confidence: domain.ConfidenceHigh,
		Source:     "reconcile",
		Evidence:   rowEvidence(row, CategoryBill, CategoryEOB),
	}
}

// crossBillDuplicate fires when the same charge appears on two or more
// distinct bill documents. Duplicates within one document are the rule
// engine's job.
func (e *Engine) crossBillDuplicate(row *Row) *domain.CandidateIssue {
	docs := make(map[string]bool)
	count := 0
	for i := range row.Occurrences {
		if row.Occurrences[i].Category == CategoryBill {
			docs[row.Occurrences[i].DocumentID.String()] = true
			count++
		}
	}
	if len(docs) < 2 {
		return nil
	}
	return &domain.CandidateIssue{
		Type:        domain.IssueDuplicateCharge,
		Code:        row.Code,
		ServiceDate: row.ServiceDate,
		Amount:      facts.RoundCents(row.Amount),
		Summary: fmt.Sprintf("Charge %s for $%.2f appears on %d separate bills",
			codeLabel(row.Code), row.Amount, len(docs)),
		MaxSavings: facts.RoundCents(row.Amount * float64(count-1)),
		Confidence: domain.ConfidenceHigh,
		Source:     "reconcile",
		Evidence:   rowEvidence(row, CategoryBill),
	}
}

func rowEvidence(row *Row, categories ...string) []domain.Evidence {
	want := make(map[string]bool, len(categories))
	for _, c := range categories {
		want[c] = true
	}
	var out []domain.Evidence
	for i := range row.Occurrences {
		occ := &row.Occurrences[i]
		if !want[occ.Category] {
			continue
		}
		out = append(out, domain.Evidence{
			DocumentID: occ.DocumentID,
			FactRef:    facts.FactRef(occ.LineIndex),
			Note:       fmt.Sprintf("%s: billed $%.2f, allowed $%.2f", occ.Category, occ.Billed, occ.Allowed),
			Rank:       len(out) + 1,
		})
	}
	return out
}

// rowAmount picks the amount a line item is keyed by: the billed charge
// when present, else whatever the document reports.
func rowAmount(item *facts.LineItem) float64 {
	if item.Billed > 0 {
		return item.Billed
	}
	if item.Allowed > 0 {
		return item.Allowed
	}
	return item.PatientOwed
}

// category maps a document type to its matrix column. Types with no column
// do not participate in reconciliation.
func category(dt domain.DocumentType) string {
	switch dt {
	case domain.DocTypeMedicalBill, domain.DocTypeDentalBill:
		return CategoryBill
	case domain.DocTypeEOB:
		return CategoryEOB
	case domain.DocTypePharmacyReceipt, domain.DocTypeFSAClaim:
		return CategoryReceipt
	default:
		return ""
	}
}

func codeLabel(code string) string {
	if code == "" {
		return "(uncoded)"
	}
	return code
}
