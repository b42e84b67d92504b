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

const openaiURL = "https://api.openai.com/v1/chat/completions"

// OpenAIAnalyzer implements port.Analyzer using the OpenAI Chat Completions API.
type OpenAIAnalyzer struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewOpenAIAnalyzer creates an OpenAI-backed analyzer from a provider config.
func NewOpenAIAnalyzer(cfg *config.AnalyzerProviderConfig) *OpenAIAnalyzer {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = openaiURL
	}
	return newOpenAI(cfg, endpoint)
}

// NewOpenAIAnalyzerWithEndpoint creates an analyzer pointing at a custom API
// endpoint (for testing).
func NewOpenAIAnalyzerWithEndpoint(cfg *config.AnalyzerProviderConfig, endpoint string) *OpenAIAnalyzer {
	return newOpenAI(cfg, endpoint)
}

func newOpenAI(cfg *config.AnalyzerProviderConfig, endpoint string) *OpenAIAnalyzer {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIAnalyzer{
		apiKey:   cfg.APIKey,
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (o *OpenAIAnalyzer) Source() string { return "openai" }

func (o *OpenAIAnalyzer) Analyze(ctx context.Context, input port.AnalyzeInput) ([]domain.CandidateIssue, error) {
	prompt := BuildIssuePrompt(string(input.DocumentType))
	payload, err := buildUserPayload(input)
	if err != nil {
		return nil, analyzer.NewPermanentError(o.Source(), err)
	}

	reqBody := map[string]interface{}{
		"model":                 o.model,
		"max_completion_tokens": 8192,
		"messages": []map[string]interface{}{
			{"role": "system", "content": prompt},
			{"role": "user", "content": payload},
		},
		"response_format": map[string]interface{}{
			"type": "json_object",
		},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, analyzer.NewPermanentError(o.Source(), fmt.Errorf("marshaling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, analyzer.NewPermanentError(o.Source(), fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, analyzer.NewTransientError(o.Source(), fmt.Errorf("calling openai API: %w", err), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, analyzer.NewTransientError(o.Source(), fmt.Errorf("reading response: %w", err), 0)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(o.Source(), resp, respBody)
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, analyzer.NewPermanentError(o.Source(), fmt.Errorf("unmarshaling response: %w", err))
	}
	if len(apiResp.Choices) == 0 {
		return nil, analyzer.NewPermanentError(o.Source(), fmt.Errorf("empty response from API"))
	}
	if apiResp.Choices[0].FinishReason == "length" {
		return nil, analyzer.NewPermanentError(o.Source(),
			fmt.Errorf("output truncated (finish_reason: length): response exceeded output token limit"))
	}

	issues, err := decodeIssues(apiResp.Choices[0].Message.Content, o.Source(), input)
	if err != nil {
		return nil, analyzer.NewPermanentError(o.Source(), err)
	}
	return issues, nil
}
