package csvexport_test

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reclaim/internal/csvexport"
	"reclaim/internal/domain"
)

func TestWriteIssues(t *testing.T) {
	docID := uuid.New()
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	issues := []domain.Issue{
		{
			Type:       domain.IssueCoverageGap,
			Summary:    "Charge 45385 for $2450.00 does not appear on the EOB",
			MaxSavings: 2450,
			Confidence: domain.ConfidenceHigh,
			Source:     "reconcile",
			Status:     domain.IssueStatusOpen,
			DocumentID: &docID,
			CreatedAt:  created,
		},
		{
			Type:       domain.IssueDuplicateCharge,
			Summary:    "Code D1110 charged twice",
			MaxSavings: 120,
			Confidence: domain.ConfidenceHigh,
			Source:     "rules",
			Status:     domain.IssueStatusIgnored,
			Notes:      "intentional split billing",
			CreatedAt:  created,
		},
	}

	var buf bytes.Buffer
	w := csvexport.NewWriter(&buf)
	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.WriteIssues(issues))
	w.Flush()
	require.NoError(t, w.Error())

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	// Header, two issues, totals row.
	require.Len(t, records, 4)

	assert.Equal(t, "Issue Type", records[0][0])
	assert.Equal(t, "coverage_gap", records[1][0])
	assert.Equal(t, "2450.00", records[1][2])
	assert.Equal(t, docID.String(), records[1][6])
	assert.Equal(t, "intentional split billing", records[2][7])

	// Ignored issues are excluded from the total.
	assert.Equal(t, "TOTAL", records[3][0])
	assert.Equal(t, "2450.00", records[3][2])
}

func TestWriteIssuesEmpty(t *testing.T) {
	var buf bytes.Buffer
	w := csvexport.NewWriter(&buf)
	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.WriteIssues(nil))
	w.Flush()

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "TOTAL", records[1][0])
	assert.Equal(t, "0.00", records[1][2])
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "analysis_issues", csvexport.SanitizeFilename("analysis issues"))
	assert.Equal(t, "report_2025", csvexport.SanitizeFilename("report: 2025!"))
	assert.Equal(t, "a_b", csvexport.SanitizeFilename("a///b"))
	assert.Equal(t, "name", csvexport.SanitizeFilename("__name__"))

	long := strings.Repeat("x", 150)
	assert.Len(t, csvexport.SanitizeFilename(long), 100)
}

func TestBuildFilename(t *testing.T) {
	name := csvexport.BuildFilename("analysis issues")
	assert.True(t, strings.HasPrefix(name, "analysis_issues_"))
	assert.True(t, strings.HasSuffix(name, ".csv"))
}
