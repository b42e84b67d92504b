package rules_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reclaim/internal/analyzer/rules"
	"reclaim/internal/domain"
	"reclaim/internal/facts"
	"reclaim/internal/port"
)

func runEngine(t *testing.T, model *facts.FactModel) []domain.CandidateIssue {
	t.Helper()
	engine := rules.NewDefaultEngine()
	out, err := engine.Analyze(context.Background(), port.AnalyzeInput{Facts: model})
	require.NoError(t, err)
	return out
}

func issuesOfType(issues []domain.CandidateIssue, typ domain.IssueType) []domain.CandidateIssue {
	var out []domain.CandidateIssue
	for _, c := range issues {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out
}

func TestMathTotalRuleFlagsInflatedTotal(t *testing.T) {
	model := &facts.FactModel{
		DocumentID: uuid.New(),
		LineItems: []facts.LineItem{
			{Code: "99213", Billed: 100.00, ServiceDate: "2025-03-01"},
			{Code: "85025", Billed: 45.50, ServiceDate: "2025-03-01"},
		},
		Totals: facts.Totals{Billed: 200.00},
	}

	found := issuesOfType(runEngine(t, model), domain.IssueMathError)
	require.Len(t, found, 1)
	assert.Equal(t, domain.ConfidenceHigh, found[0].Confidence)
	assert.InDelta(t, 54.50, found[0].MaxSavings, 0.001)
	require.Len(t, found[0].Evidence, 1)
	assert.Equal(t, "totals", found[0].Evidence[0].FactRef)
}

func TestMathTotalRuleUnderReportedTotalNoSavings(t *testing.T) {
	model := &facts.FactModel{
		DocumentID: uuid.New(),
		LineItems: []facts.LineItem{
			{Code: "99213", Billed: 100.00},
		},
		Totals: facts.Totals{Billed: 80.00},
	}

	found := issuesOfType(runEngine(t, model), domain.IssueMathError)
	require.Len(t, found, 1)
	assert.Equal(t, domain.ConfidenceMedium, found[0].Confidence)
	assert.Zero(t, found[0].MaxSavings)
}

func TestMathTotalRuleToleratesCentDrift(t *testing.T) {
	model := &facts.FactModel{
		DocumentID: uuid.New(),
		LineItems: []facts.LineItem{
			{Code: "99213", Billed: 100.00},
		},
		Totals: facts.Totals{Billed: 100.01},
	}

	assert.Empty(t, issuesOfType(runEngine(t, model), domain.IssueMathError))
}

func TestDuplicateLineRule(t *testing.T) {
	model := &facts.FactModel{
		DocumentID: uuid.New(),
		LineItems: []facts.LineItem{
			{Code: "D1110", Billed: 120.00, ServiceDate: "2025-02-10", Description: "Prophylaxis"},
			{Code: "d-1110", Billed: 120.00, ServiceDate: "2025-02-10", Description: "Prophylaxis"},
			{Code: "D0120", Billed: 60.00, ServiceDate: "2025-02-10"},
		},
		Totals: facts.Totals{Billed: 300.00},
	}

	found := issuesOfType(runEngine(t, model), domain.IssueDuplicateCharge)
	require.Len(t, found, 1)
	assert.Equal(t, "D1110", found[0].Code)
	assert.InDelta(t, 120.00, found[0].MaxSavings, 0.001)
	assert.Equal(t, domain.ConfidenceHigh, found[0].Confidence)
	assert.Len(t, found[0].Evidence, 2)
}

func TestDuplicateLineRuleDifferentDatesNotFlagged(t *testing.T) {
	model := &facts.FactModel{
		DocumentID: uuid.New(),
		LineItems: []facts.LineItem{
			{Code: "99213", Billed: 100.00, ServiceDate: "2025-02-10"},
			{Code: "99213", Billed: 100.00, ServiceDate: "2025-02-17"},
		},
	}

	assert.Empty(t, issuesOfType(runEngine(t, model), domain.IssueDuplicateCharge))
}

func TestOverchargeRuleAgainstAllowed(t *testing.T) {
	model := &facts.FactModel{
		DocumentID: uuid.New(),
		LineItems: []facts.LineItem{
			{Code: "99213", Billed: 250.00, Allowed: 90.00, PatientOwed: 150.00},
		},
	}

	found := issuesOfType(runEngine(t, model), domain.IssueOvercharge)
	require.Len(t, found, 1)
	assert.Equal(t, domain.ConfidenceHigh, found[0].Confidence)
	assert.InDelta(t, 60.00, found[0].MaxSavings, 0.001)
}

func TestOverchargeRuleAgainstBilledWhenNoAllowed(t *testing.T) {
	model := &facts.FactModel{
		DocumentID: uuid.New(),
		LineItems: []facts.LineItem{
			{Code: "99213", Billed: 100.00, PatientOwed: 130.00},
		},
	}

	found := issuesOfType(runEngine(t, model), domain.IssueOvercharge)
	require.Len(t, found, 1)
	assert.Equal(t, domain.ConfidenceMedium, found[0].Confidence)
	assert.InDelta(t, 30.00, found[0].MaxSavings, 0.001)
}

func TestOverchargeRuleWithinAllowedNotFlagged(t *testing.T) {
	model := &facts.FactModel{
		DocumentID: uuid.New(),
		LineItems: []facts.LineItem{
			{Code: "99213", Billed: 250.00, Allowed: 90.00, PatientOwed: 90.00},
		},
	}

	assert.Empty(t, issuesOfType(runEngine(t, model), domain.IssueOvercharge))
}

func TestCodeFormatRule(t *testing.T) {
	model := &facts.FactModel{
		DocumentID: uuid.New(),
		LineItems: []facts.LineItem{
			{Code: "99213", Billed: 100.00},   // valid CPT
			{Code: "D1110", Billed: 120.00},   // valid CDT
			{Code: "00093101101", Billed: 15}, // valid NDC
			{Code: "RX123456", Billed: 40},    // valid Rx
			{Code: "ZZZ-99", Billed: 75.00},   // unrecognized
			{Code: "", Billed: 10.00},         // empty codes are skipped
		},
	}

	found := issuesOfType(runEngine(t, model), domain.IssueCodeMismatch)
	require.Len(t, found, 1)
	assert.Equal(t, "ZZZ99", found[0].Code)
	assert.Equal(t, domain.ConfidenceLow, found[0].Confidence)
	assert.Zero(t, found[0].MaxSavings)
}

func TestEngineNilFacts(t *testing.T) {
	engine := rules.NewDefaultEngine()
	out, err := engine.Analyze(context.Background(), port.AnalyzeInput{})
	require.NoError(t, err)
	assert.Empty(t, out)
}
