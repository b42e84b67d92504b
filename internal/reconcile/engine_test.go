package reconcile_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reclaim/internal/config"
	"reclaim/internal/domain"
	"reclaim/internal/facts"
	"reclaim/internal/reconcile"
)

func billModel(items ...facts.LineItem) *facts.FactModel {
	return &facts.FactModel{
		DocumentID:   uuid.New(),
		DocumentType: domain.DocTypeMedicalBill,
		LineItems:    items,
	}
}

func eobModel(items ...facts.LineItem) *facts.FactModel {
	return &facts.FactModel{
		DocumentID:   uuid.New(),
		DocumentType: domain.DocTypeEOB,
		LineItems:    items,
	}
}

func TestReconcileSkipsSingleDocument(t *testing.T) {
	engine := reconcile.NewEngine(config.ReconcileConfig{})
	result := engine.Reconcile([]*facts.FactModel{
		billModel(facts.LineItem{Code: "99213", Billed: 100, ServiceDate: "2025-03-01"}),
	})

	require.NotNil(t, result)
	assert.Empty(t, result.Matrix.Rows)
	assert.Empty(t, result.Candidates)
}

func TestReconcileIgnoresNonparticipatingTypes(t *testing.T) {
	image := &facts.FactModel{DocumentID: uuid.New(), DocumentType: domain.DocTypeClinicalImage}
	engine := reconcile.NewEngine(config.ReconcileConfig{})
	result := engine.Reconcile([]*facts.FactModel{
		billModel(facts.LineItem{Code: "99213", Billed: 100}),
		image,
		nil,
	})

	assert.Empty(t, result.Matrix.Rows)
}

func TestReconcileMatchesChargeAcrossBillAndEOB(t *testing.T) {
	bill := billModel(facts.LineItem{Code: "99213", Billed: 100.00, ServiceDate: "2025-03-01"})
	eob := eobModel(facts.LineItem{Code: "99-213", Billed: 100.00, Allowed: 80.00, ServiceDate: "2025-03-01"})

	engine := reconcile.NewEngine(config.ReconcileConfig{})
	result := engine.Reconcile([]*facts.FactModel{bill, eob})

	require.Len(t, result.Matrix.Rows, 1)
	row := result.Matrix.Rows[0]
	assert.Equal(t, "99213", row.Code)
	assert.True(t, row.Presence[reconcile.CategoryBill])
	assert.True(t, row.Presence[reconcile.CategoryEOB])
	assert.True(t, result.Matrix.HasEOB)
	// Allowed amount is nonzero, so no coverage gap candidate.
	assert.Empty(t, result.Candidates)
}

func TestReconcileAmountEpsilonBoundary(t *testing.T) {
	engine := reconcile.NewEngine(config.ReconcileConfig{AmountEpsilon: 0.01})

	// One cent apart matches.
	close := engine.Reconcile([]*facts.FactModel{
		billModel(facts.LineItem{Code: "99213", Billed: 100.00, ServiceDate: "2025-03-01"}),
		eobModel(facts.LineItem{Code: "99213", Billed: 100.01, Allowed: 80, ServiceDate: "2025-03-01"}),
	})
	assert.Len(t, close.Matrix.Rows, 1)

	// A dollar apart does not.
	far := engine.Reconcile([]*facts.FactModel{
		billModel(facts.LineItem{Code: "99213", Billed: 100.00, ServiceDate: "2025-03-01"}),
		eobModel(facts.LineItem{Code: "99213", Billed: 101.00, Allowed: 80, ServiceDate: "2025-03-01"}),
	})
	assert.Len(t, far.Matrix.Rows, 2)
}

func TestReconcileDateWindow(t *testing.T) {
	bill := billModel(facts.LineItem{Code: "99213", Billed: 100, ServiceDate: "2025-03-01"})
	eob := eobModel(facts.LineItem{Code: "99213", Billed: 100, Allowed: 80, ServiceDate: "2025-03-03"})

	strict := reconcile.NewEngine(config.ReconcileConfig{})
	assert.Len(t, strict.Reconcile([]*facts.FactModel{bill, eob}).Matrix.Rows, 2)

	windowed := reconcile.NewEngine(config.ReconcileConfig{DateWindowDays: 3})
	assert.Len(t, windowed.Reconcile([]*facts.FactModel{bill, eob}).Matrix.Rows, 1)
}

func TestReconcileCoverageGapOnZeroAllowed(t *testing.T) {
	bill := billModel(
		facts.LineItem{Code: "45385", Billed: 2450.00, ServiceDate: "2025-01-15", Description: "Colonoscopy"},
		facts.LineItem{Code: "99213", Billed: 100.00, ServiceDate: "2025-01-15"},
	)
	eob := eobModel(
		facts.LineItem{Code: "45385", Billed: 2450.00, Allowed: 0, ServiceDate: "2025-01-15"},
		facts.LineItem{Code: "99213", Billed: 100.00, Allowed: 80, ServiceDate: "2025-01-15"},
	)

	engine := reconcile.NewEngine(config.ReconcileConfig{})
	result := engine.Reconcile([]*facts.FactModel{bill, eob})

	require.Len(t, result.Candidates, 1)
	c := result.Candidates[0]
	assert.Equal(t, domain.IssueCoverageGap, c.Type)
	assert.Equal(t, "45385", c.Code)
	assert.InDelta(t, 2450.00, c.MaxSavings, 0.001)
	assert.Equal(t, domain.ConfidenceHigh, c.Confidence)
	assert.NotEmpty(t, c.Evidence)
}

func TestReconcileCrossBillDuplicate(t *testing.T) {
	first := billModel(facts.LineItem{Code: "D1110", Billed: 120, ServiceDate: "2025-02-10"})
	second := billModel(facts.LineItem{Code: "D1110", Billed: 120, ServiceDate: "2025-02-10"})

	engine := reconcile.NewEngine(config.ReconcileConfig{})
	result := engine.Reconcile([]*facts.FactModel{first, second})

	require.Len(t, result.Candidates, 1)
	c := result.Candidates[0]
	assert.Equal(t, domain.IssueDuplicateCharge, c.Type)
	assert.InDelta(t, 120.0, c.MaxSavings, 0.001)
	assert.Len(t, c.Evidence, 2)
}

func TestReconcileAbsenceRowStaysMatrixOnly(t *testing.T) {
	// A billed charge missing entirely from the EOB produces a matrix row
	// but no direct candidate; promotion is the merger's call.
	bill := billModel(
		facts.LineItem{Code: "45385", Billed: 2450, ServiceDate: "2025-01-15"},
		facts.LineItem{Code: "99213", Billed: 100, ServiceDate: "2025-01-15"},
	)
	eob := eobModel(
		facts.LineItem{Code: "99213", Billed: 100, Allowed: 80, ServiceDate: "2025-01-15"},
	)

	engine := reconcile.NewEngine(config.ReconcileConfig{})
	result := engine.Reconcile([]*facts.FactModel{bill, eob})

	assert.Empty(t, result.Candidates)
	require.Len(t, result.Matrix.Rows, 2)
	var gapRow *reconcile.Row
	for i := range result.Matrix.Rows {
		if result.Matrix.Rows[i].Code == "45385" {
			gapRow = &result.Matrix.Rows[i]
		}
	}
	require.NotNil(t, gapRow)
	assert.True(t, gapRow.Presence[reconcile.CategoryBill])
	assert.False(t, gapRow.Presence[reconcile.CategoryEOB])
}
