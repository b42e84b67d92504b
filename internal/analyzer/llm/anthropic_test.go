package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reclaim/internal/analyzer"
	"reclaim/internal/analyzer/llm"
	"reclaim/internal/config"
	"reclaim/internal/domain"
	"reclaim/internal/facts"
	"reclaim/internal/port"
)

func anthropicBody(t *testing.T, text string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"content":     []map[string]string{{"type": "text", "text": text}},
		"stop_reason": "end_turn",
	})
	require.NoError(t, err)
	return body
}

func analyzeInput() port.AnalyzeInput {
	return port.AnalyzeInput{
		Facts: &facts.FactModel{
			DocumentID:   uuid.New(),
			DocumentType: domain.DocTypeMedicalBill,
			LineItems: []facts.LineItem{
				{Code: "99213", Billed: 100, ServiceDate: "2025-03-01"},
				{Code: "99213", Billed: 100, ServiceDate: "2025-03-01"},
			},
		},
		DocumentType: domain.DocTypeMedicalBill,
	}
}

func TestAnthropicAnalyzeSuccess(t *testing.T) {
	issueJSON := `{"issues":[{
		"issue_type": "duplicate_charge",
		"summary": "Office visit billed twice on the same date",
		"code": "99213",
		"service_date": "2025-03-01",
		"amount": 100,
		"max_savings": 100,
		"confidence": "high",
		"evidence": [{"line_item_index": 0, "note": "first charge"}, {"line_item_index": 1, "note": "repeat charge"}]
	}]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("anthropic-version"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(anthropicBody(t, issueJSON))
	}))
	defer srv.Close()

	a := llm.NewAnthropicAnalyzerWithEndpoint(&config.AnalyzerProviderConfig{
		Provider: "anthropic", APIKey: "test-key",
	}, srv.URL)

	input := analyzeInput()
	out, err := a.Analyze(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, out, 1)

	c := out[0]
	assert.Equal(t, domain.IssueDuplicateCharge, c.Type)
	assert.Equal(t, "99213", c.Code)
	assert.Equal(t, domain.ConfidenceHigh, c.Confidence)
	assert.Equal(t, "anthropic", c.Source)
	require.NotNil(t, c.DocumentID)
	assert.Equal(t, input.Facts.DocumentID, *c.DocumentID)
	assert.Len(t, c.Evidence, 2)
}

func TestAnthropicSanitizesWireIssues(t *testing.T) {
	issueJSON := `{"issues":[{
		"issue_type": "something_novel",
		"summary": "Unclassifiable finding",
		"code": "d-1110",
		"service_date": "01/15/2025",
		"amount": 50,
		"max_savings": -10,
		"confidence": "very sure",
		"evidence": [{"line_item_index": 99, "note": "out of range"}]
	}]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(anthropicBody(t, issueJSON))
	}))
	defer srv.Close()

	a := llm.NewAnthropicAnalyzerWithEndpoint(&config.AnalyzerProviderConfig{Provider: "anthropic"}, srv.URL)
	out, err := a.Analyze(context.Background(), analyzeInput())
	require.NoError(t, err)
	require.Len(t, out, 1)

	c := out[0]
	assert.Equal(t, domain.IssueOther, c.Type)
	assert.Equal(t, "D1110", c.Code)
	assert.Equal(t, "2025-01-15", c.ServiceDate)
	assert.Zero(t, c.MaxSavings)
	assert.Equal(t, domain.ConfidenceLow, c.Confidence)
	assert.Empty(t, c.Evidence)
}

func TestAnthropicRateLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	a := llm.NewAnthropicAnalyzerWithEndpoint(&config.AnalyzerProviderConfig{Provider: "anthropic"}, srv.URL)
	_, err := a.Analyze(context.Background(), analyzeInput())

	require.Error(t, err)
	var te *analyzer.TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, float64(30), te.RetryAfter.Seconds())
}

func TestAnthropicServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := llm.NewAnthropicAnalyzerWithEndpoint(&config.AnalyzerProviderConfig{Provider: "anthropic"}, srv.URL)
	_, err := a.Analyze(context.Background(), analyzeInput())

	require.Error(t, err)
	assert.True(t, analyzer.IsTransient(err))
}

func TestAnthropicAuthErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"authentication_error"}}`))
	}))
	defer srv.Close()

	a := llm.NewAnthropicAnalyzerWithEndpoint(&config.AnalyzerProviderConfig{Provider: "anthropic"}, srv.URL)
	_, err := a.Analyze(context.Background(), analyzeInput())

	require.Error(t, err)
	assert.False(t, analyzer.IsTransient(err))
}

func TestAnthropicMalformedJSONIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(anthropicBody(t, "I found several issues with this bill. First,"))
	}))
	defer srv.Close()

	a := llm.NewAnthropicAnalyzerWithEndpoint(&config.AnalyzerProviderConfig{Provider: "anthropic"}, srv.URL)
	_, err := a.Analyze(context.Background(), analyzeInput())

	require.Error(t, err)
	assert.False(t, analyzer.IsTransient(err))
}

func TestAnthropicTruncatedOutputIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]interface{}{
			"content":     []map[string]string{{"type": "text", "text": `{"issues":[`}},
			"stop_reason": "max_tokens",
		})
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	a := llm.NewAnthropicAnalyzerWithEndpoint(&config.AnalyzerProviderConfig{Provider: "anthropic"}, srv.URL)
	_, err := a.Analyze(context.Background(), analyzeInput())

	require.Error(t, err)
	assert.False(t, analyzer.IsTransient(err))
	assert.Contains(t, err.Error(), "max_tokens")
}
