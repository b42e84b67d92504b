// Package llm implements remote analyzer providers over vendor HTTP APIs.
// Providers register themselves with the analyzer factory under their
// provider name.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"reclaim/internal/analyzer"
	"reclaim/internal/config"
	"reclaim/internal/domain"
	"reclaim/internal/port"
)

const (
	anthropicURL     = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
)

// AnthropicAnalyzer implements port.Analyzer using the Anthropic Messages API.
type AnthropicAnalyzer struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewAnthropicAnalyzer creates an Anthropic-backed analyzer from a provider config.
func NewAnthropicAnalyzer(cfg *config.AnalyzerProviderConfig) *AnthropicAnalyzer {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = anthropicURL
	}
	return newAnthropic(cfg, endpoint)
}

// NewAnthropicAnalyzerWithEndpoint creates an analyzer pointing at a custom
// API endpoint (for testing).
func NewAnthropicAnalyzerWithEndpoint(cfg *config.AnalyzerProviderConfig, endpoint string) *AnthropicAnalyzer {
	return newAnthropic(cfg, endpoint)
}

func newAnthropic(cfg *config.AnalyzerProviderConfig, endpoint string) *AnthropicAnalyzer {
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &AnthropicAnalyzer{
		apiKey:   cfg.APIKey,
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (a *AnthropicAnalyzer) Source() string { return "anthropic" }

func (a *AnthropicAnalyzer) Analyze(ctx context.Context, input port.AnalyzeInput) ([]domain.CandidateIssue, error) {
	prompt := BuildIssuePrompt(string(input.DocumentType))
	payload, err := buildUserPayload(input)
	if err != nil {
		return nil, analyzer.NewPermanentError(a.Source(), err)
	}

	reqBody := map[string]interface{}{
		"model":      a.model,
		"max_tokens": 8192,
		"system":     prompt,
		"messages": []map[string]interface{}{
			{"role": "user", "content": payload},
		},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, analyzer.NewPermanentError(a.Source(), fmt.Errorf("marshaling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, analyzer.NewPermanentError(a.Source(), fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, analyzer.NewTransientError(a.Source(), fmt.Errorf("calling anthropic API: %w", err), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, analyzer.NewTransientError(a.Source(), fmt.Errorf("reading response: %w", err), 0)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(a.Source(), resp, respBody)
	}

	var apiResp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, analyzer.NewPermanentError(a.Source(), fmt.Errorf("unmarshaling response: %w", err))
	}
	if len(apiResp.Content) == 0 {
		return nil, analyzer.NewPermanentError(a.Source(), fmt.Errorf("empty response from API"))
	}
	if apiResp.StopReason == "max_tokens" {
		return nil, analyzer.NewPermanentError(a.Source(),
			fmt.Errorf("output truncated (stop_reason: max_tokens): response exceeded output token limit"))
	}

	issues, err := decodeIssues(apiResp.Content[0].Text, a.Source(), input)
	if err != nil {
		return nil, analyzer.NewPermanentError(a.Source(), err)
	}
	return issues, nil
}

// mapHTTPError classifies a non-200 provider response into the transient or
// permanent error taxonomy. Rate limits carry the Retry-After hint.
func mapHTTPError(source string, resp *http.Response, body []byte) error {
	baseErr := fmt.Errorf("%s API error (status %d): %s", source, resp.StatusCode, truncate(string(body), 500))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := analyzer.ParseRetryAfterHeader(resp.Header.Get("Retry-After"))
		return analyzer.NewTransientError(source, baseErr, retryAfter)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return analyzer.NewTransientError(source, baseErr, 0)
	default:
		return analyzer.NewPermanentError(source, baseErr)
	}
}
