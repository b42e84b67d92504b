package analyzer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reclaim/internal/analyzer"
	"reclaim/internal/domain"
	"reclaim/internal/port"
	"reclaim/mocks"
)

func candidate(typ domain.IssueType, code string, amount, savings float64, conf domain.Confidence) domain.CandidateIssue {
	return domain.CandidateIssue{
		Type:        typ,
		Code:        code,
		ServiceDate: "2025-03-01",
		Amount:      amount,
		MaxSavings:  savings,
		Confidence:  conf,
		Source:      "remote",
	}
}

func memberReturning(source string, issues []domain.CandidateIssue, err error) *mocks.MockAnalyzer {
	m := new(mocks.MockAnalyzer)
	m.On("Source").Return(source)
	m.On("Analyze", mock.Anything, mock.Anything).Return(issues, err)
	return m
}

func TestEnsembleMajorityVote(t *testing.T) {
	shared := candidate(domain.IssueDuplicateCharge, "99213", 100, 100, domain.ConfidenceMedium)
	lone := candidate(domain.IssueOvercharge, "85025", 45, 20, domain.ConfidenceLow)

	a := memberReturning("a", []domain.CandidateIssue{shared}, nil)
	b := memberReturning("b", []domain.CandidateIssue{shared, lone}, nil)

	e := analyzer.NewEnsemble([]port.Analyzer{a, b})
	out, err := e.Analyze(context.Background(), port.AnalyzeInput{})
	require.NoError(t, err)

	// With two responders a single vote is half, so both candidates pass.
	require.Len(t, out, 2)
	keys := []string{analyzer.CandidateKey(&out[0]), analyzer.CandidateKey(&out[1])}
	assert.Contains(t, keys, analyzer.CandidateKey(&shared))
	assert.Contains(t, keys, analyzer.CandidateKey(&lone))
}

func TestEnsembleMinorityDroppedWithThreeMembers(t *testing.T) {
	shared := candidate(domain.IssueDuplicateCharge, "99213", 100, 100, domain.ConfidenceMedium)
	lone := candidate(domain.IssueOvercharge, "85025", 45, 20, domain.ConfidenceLow)

	a := memberReturning("a", []domain.CandidateIssue{shared}, nil)
	b := memberReturning("b", []domain.CandidateIssue{shared}, nil)
	c := memberReturning("c", []domain.CandidateIssue{lone}, nil)

	e := analyzer.NewEnsemble([]port.Analyzer{a, b, c})
	out, err := e.Analyze(context.Background(), port.AnalyzeInput{})
	require.NoError(t, err)

	require.Len(t, out, 1)
	assert.Equal(t, domain.IssueDuplicateCharge, out[0].Type)
}

func TestEnsembleHighConfidenceSurvivesMinority(t *testing.T) {
	lone := candidate(domain.IssueCoverageGap, "45385", 2450, 2450, domain.ConfidenceHigh)

	a := memberReturning("a", nil, nil)
	b := memberReturning("b", nil, nil)
	c := memberReturning("c", []domain.CandidateIssue{lone}, nil)

	e := analyzer.NewEnsemble([]port.Analyzer{a, b, c})
	out, err := e.Analyze(context.Background(), port.AnalyzeInput{})
	require.NoError(t, err)

	require.Len(t, out, 1)
	assert.Equal(t, domain.IssueCoverageGap, out[0].Type)
}

func TestEnsembleOneMemberFailureTolerated(t *testing.T) {
	shared := candidate(domain.IssueMathError, "", 500, 54.50, domain.ConfidenceHigh)

	a := memberReturning("a", []domain.CandidateIssue{shared}, nil)
	b := memberReturning("b", nil, analyzer.NewTransientError("b", errors.New("rate limited"), 30))

	e := analyzer.NewEnsemble([]port.Analyzer{a, b})
	out, err := e.Analyze(context.Background(), port.AnalyzeInput{})
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestEnsembleAllTransientFailures(t *testing.T) {
	a := memberReturning("a", nil, analyzer.NewTransientError("a", errors.New("429"), 10))
	b := memberReturning("b", nil, analyzer.NewTransientError("b", errors.New("429"), 45))

	e := analyzer.NewEnsemble([]port.Analyzer{a, b})
	_, err := e.Analyze(context.Background(), port.AnalyzeInput{})

	require.Error(t, err)
	assert.True(t, analyzer.IsTransient(err))
	var te *analyzer.TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, float64(45), te.RetryAfter.Seconds())
}

func TestEnsembleMixedFailuresArePermanent(t *testing.T) {
	a := memberReturning("a", nil, analyzer.NewTransientError("a", errors.New("429"), 10))
	b := memberReturning("b", nil, analyzer.NewPermanentError("b", errors.New("invalid api key")))

	e := analyzer.NewEnsemble([]port.Analyzer{a, b})
	_, err := e.Analyze(context.Background(), port.AnalyzeInput{})

	require.Error(t, err)
	assert.False(t, analyzer.IsTransient(err))
}

func TestEnsembleSource(t *testing.T) {
	a := new(mocks.MockAnalyzer)
	a.On("Source").Return("anthropic")
	b := new(mocks.MockAnalyzer)
	b.On("Source").Return("openai")

	e := analyzer.NewEnsemble([]port.Analyzer{a, b})
	assert.Equal(t, "ensemble(anthropic+openai)", e.Source())
}

func TestCandidateKeyNormalizes(t *testing.T) {
	a := domain.CandidateIssue{Type: domain.IssueDuplicateCharge, Code: "d-1110", ServiceDate: "2025-02-10", Amount: 120}
	b := domain.CandidateIssue{Type: domain.IssueDuplicateCharge, Code: "D1110", ServiceDate: "2025-02-10", Amount: 120.001}
	assert.Equal(t, analyzer.CandidateKey(&a), analyzer.CandidateKey(&b))

	c := domain.CandidateIssue{Type: domain.IssueOvercharge, Code: "D1110", ServiceDate: "2025-02-10", Amount: 120}
	assert.NotEqual(t, analyzer.CandidateKey(&a), analyzer.CandidateKey(&c))
}
