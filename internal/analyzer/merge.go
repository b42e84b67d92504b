package analyzer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"reclaim/internal/config"
	"reclaim/internal/domain"
	"reclaim/internal/facts"
	"reclaim/internal/reconcile"
)

// Merger collapses candidate issues from every source (rule engine,
// heuristic scorer, remote providers, reconciliation) into final issues.
// Candidates sharing a deduplication key become one issue carrying the
// highest confidence, the single highest max-savings estimate, and the
// union of evidence.
type Merger struct {
	cfg config.MergeConfig
}

func NewMerger(cfg config.MergeConfig) *Merger {
	return &Merger{cfg: cfg}
}

// Merge deduplicates candidates into issues for the given analysis, ordered
// by max savings descending.
func (m *Merger) Merge(analysisID uuid.UUID, candidates []domain.CandidateIssue) []domain.Issue {
	groups := make(map[string][]domain.CandidateIssue)
	var order []string
	for _, c := range candidates {
		key := CandidateKey(&c)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], c)
	}

	issues := make([]domain.Issue, 0, len(groups))
	for _, key := range order {
		issues = append(issues, m.mergeGroup(analysisID, key, groups[key]))
	}
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].MaxSavings > issues[j].MaxSavings
	})
	return issues
}

func (m *Merger) mergeGroup(analysisID uuid.UUID, key string, group []domain.CandidateIssue) domain.Issue {
	best := group[0]
	confidence := group[0].Confidence
	maxSavings := group[0].MaxSavings
	sources := make(map[string]bool)
	docID := group[0].DocumentID

	for _, c := range group {
		confidence = domain.MaxConfidence(confidence, c.Confidence)
		if c.MaxSavings > maxSavings {
			maxSavings = c.MaxSavings
		}
		sources[c.Source] = true
		if preferSummary(&c, &best) {
			best = c
		}
		if docID != nil && (c.DocumentID == nil || *c.DocumentID != *docID) {
			docID = nil // cross-document finding
		}
	}

	evidence, _ := json.Marshal(unionEvidence(group))

	return domain.Issue{
		AnalysisID: analysisID,
		DocumentID: docID,
		Type:       best.Type,
		Summary:    best.Summary,
		Evidence:   evidence,
		MaxSavings: maxSavings,
		Confidence: confidence,
		Source:     joinSources(sources),
		Status:     domain.IssueStatusOpen,
		DedupKey:   key,
	}
}

// preferSummary reports whether c's summary should replace the current
// best: rule-engine wording wins, then higher confidence.
func preferSummary(c, best *domain.CandidateIssue) bool {
	if c.Source == SourceRules && best.Source != SourceRules {
		return true
	}
	if best.Source == SourceRules && c.Source != SourceRules {
		return false
	}
	return !domain.ConfidenceAtLeast(best.Confidence, c.Confidence)
}

// unionEvidence merges the groups' evidence, deduplicated by document and
// fact reference, keeping the strongest rank per reference and re-ranking
// the result sequentially.
func unionEvidence(group []domain.CandidateIssue) []domain.Evidence {
	type refKey struct {
		doc uuid.UUID
		ref string
	}
	byRef := make(map[refKey]domain.Evidence)
	var order []refKey
	for _, c := range group {
		for _, ev := range c.Evidence {
			k := refKey{doc: ev.DocumentID, ref: ev.FactRef}
			prev, ok := byRef[k]
			if !ok {
				order = append(order, k)
				byRef[k] = ev
			} else if ev.Rank < prev.Rank {
				byRef[k] = ev
			}
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return byRef[order[i]].Rank < byRef[order[j]].Rank
	})
	out := make([]domain.Evidence, 0, len(order))
	for i, k := range order {
		ev := byRef[k]
		ev.Rank = i + 1
		out = append(out, ev)
	}
	return out
}

func joinSources(set map[string]bool) string {
	names := make([]string, 0, len(set))
	for s := range set {
		names = append(names, s)
	}
	sort.Strings(names)
	return strings.Join(names, "+")
}

// PromoteGaps turns coverage-matrix absence rows into candidate issues:
// charges billed but entirely missing from the batch's EOB, when the billed
// amount clears the configured minimum gap. Rows the reconciliation engine
// already derived an issue from (explicit $0 allowed) are not re-emitted
// here; those carry an EOB presence.
func (m *Merger) PromoteGaps(matrix *reconcile.Matrix) []domain.CandidateIssue {
	if matrix == nil || !matrix.HasEOB {
		return nil
	}
	var out []domain.CandidateIssue
	for i := range matrix.Rows {
		row := &matrix.Rows[i]
		if !row.Presence[reconcile.CategoryBill] || row.Presence[reconcile.CategoryEOB] {
			continue
		}
		if row.Amount < m.cfg.MinGapAmount {
			continue
		}
		var evidence []domain.Evidence
		for _, occ := range row.Occurrences {
			if occ.Category != reconcile.CategoryBill {
				continue
			}
			evidence = append(evidence, domain.Evidence{
				DocumentID: occ.DocumentID,
				FactRef:    facts.FactRef(occ.LineIndex),
				Note:       fmt.Sprintf("billed $%.2f, no matching EOB entry", occ.Billed),
				Rank:       len(evidence) + 1,
			})
		}
		out = append(out, domain.CandidateIssue{
			Type:        domain.IssueCoverageGap,
			Code:        row.Code,
			ServiceDate: row.ServiceDate,
			Amount:      row.Amount,
			Summary: fmt.Sprintf("Charge %s for $%.2f does not appear on the EOB for this encounter",
				gapCodeLabel(row.Code), row.Amount),
			MaxSavings: facts.RoundCents(row.Amount),
			Confidence: domain.ConfidenceMedium,
			Source:     SourceReconcile,
			Evidence:   evidence,
		})
	}
	return out
}

func gapCodeLabel(code string) string {
	if code == "" {
		return "(uncoded)"
	}
	return code
}

// TotalSavings sums max savings over issues that have not been ignored.
// Per-issue amounts are already single highest estimates, never summed
// across duplicate candidates.
func TotalSavings(issues []domain.Issue) float64 {
	var total float64
	for _, is := range issues {
		if is.Status == domain.IssueStatusIgnored {
			continue
		}
		total += is.MaxSavings
	}
	return total
}
