package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"reclaim/internal/domain"
	"reclaim/internal/facts"
	"reclaim/internal/port"
)

// Ensemble fans one analyze call out to N member analyzers in parallel and
// merges their candidates by majority/confidence voting. A member's failure
// never blocks the others; Analyze fails only when every member fails, and
// the failure is transient only when every member's failure was.
type Ensemble struct {
	members []port.Analyzer
}

// NewEnsemble creates an Ensemble over the given members.
func NewEnsemble(members []port.Analyzer) *Ensemble {
	return &Ensemble{members: members}
}

func (e *Ensemble) Source() string {
	names := make([]string, 0, len(e.members))
	for _, m := range e.members {
		names = append(names, m.Source())
	}
	return "ensemble(" + strings.Join(names, "+") + ")"
}

func (e *Ensemble) Analyze(ctx context.Context, input port.AnalyzeInput) ([]domain.CandidateIssue, error) {
	if len(e.members) == 0 {
		return nil, NewPermanentError("ensemble", fmt.Errorf("no member analyzers configured"))
	}

	var mu sync.Mutex
	perMember := make([][]domain.CandidateIssue, 0, len(e.members))
	var memberErrs []error

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range e.members {
		m := m
		g.Go(func() error {
			issues, err := m.Analyze(gctx, input)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("analyzer.Ensemble: member %s failed: %v", m.Source(), err)
				memberErrs = append(memberErrs, err)
				return nil // member failures never cancel siblings
			}
			perMember = append(perMember, issues)
			return nil
		})
	}
	_ = g.Wait()

	if len(perMember) == 0 {
		// Member errors are carried as text only: wrapping them would let a
		// transient member classify a mixed failure as transient.
		detail := fmt.Errorf("all %d members failed: %s", len(e.members), memberFailures(memberErrs))
		if allTransient(memberErrs) {
			return nil, NewTransientError("ensemble", detail,
				int(maxRetryAfter(memberErrs)/time.Second))
		}
		return nil, NewPermanentError("ensemble", detail)
	}

	return vote(perMember), nil
}

// vote keeps a candidate if a majority of responding members emitted its
// deduplication key, or if any member emitted it with high confidence.
func vote(perMember [][]domain.CandidateIssue) []domain.CandidateIssue {
	responders := len(perMember)
	counts := make(map[string]int)
	picked := make(map[string]domain.CandidateIssue)

	for _, issues := range perMember {
		seen := make(map[string]bool)
		for _, c := range issues {
			key := CandidateKey(&c)
			if seen[key] {
				continue
			}
			seen[key] = true
			counts[key]++
			prev, ok := picked[key]
			if !ok || domain.ConfidenceAtLeast(c.Confidence, prev.Confidence) && c.MaxSavings >= prev.MaxSavings {
				picked[key] = c
			}
		}
	}

	var out []domain.CandidateIssue
	for key, c := range picked {
		if counts[key]*2 >= responders || c.Confidence == domain.ConfidenceHigh {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MaxSavings != out[j].MaxSavings {
			return out[i].MaxSavings > out[j].MaxSavings
		}
		return CandidateKey(&out[i]) < CandidateKey(&out[j])
	})
	return out
}

// CandidateKey builds the deduplication key shared by the ensemble voter and
// the issue merger: issue type, normalized code, service date, and the
// amount rounded to the cent.
func CandidateKey(c *domain.CandidateIssue) string {
	return fmt.Sprintf("%s|%s|%s|%.2f",
		c.Type, facts.NormalizeCode(c.Code), c.ServiceDate, facts.RoundCents(c.Amount))
}

func memberFailures(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

func allTransient(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, err := range errs {
		if !IsTransient(err) {
			return false
		}
	}
	return true
}

func maxRetryAfter(errs []error) time.Duration {
	var max time.Duration
	for _, err := range errs {
		var te *TransientError
		if errors.As(err, &te) && te.RetryAfter > max {
			max = te.RetryAfter
		}
	}
	return max
}
