package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// OllamaGenerator implements Generator with a local Ollama server.
// Local inference is slow, so the default timeout is much longer than for
// hosted providers.
type OllamaGenerator struct {
	baseURL    string
	httpClient *http.Client
	config     Config
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	System  string        `json:"system,omitempty"`
	Options ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"` // Max tokens
}

type ollamaResponse struct {
	Model           string `json:"model"`
	CreatedAt       string `json:"created_at"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// NewOllamaGenerator creates a new Ollama generator
func NewOllamaGenerator(config Config) (*OllamaGenerator, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("ollama model must be specified (e.g., llama3.1:8b, mistral)")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	return &OllamaGenerator{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: newHTTPClient(config, localTimeout),
		config:     config,
	}, nil
}

// Name returns the provider name
func (g *OllamaGenerator) Name() string {
	return "ollama"
}

// IsAvailable checks if Ollama is running by listing local models
func (g *OllamaGenerator) IsAvailable(ctx context.Context) bool {
	url := fmt.Sprintf("%s/api/tags", g.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		slog.Warn("ollama availability check failed", "stage", "request", "error", err)
		return false
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		slog.Warn("ollama availability check failed", "base_url", g.baseURL, "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("ollama availability check failed", "base_url", g.baseURL, "status", resp.StatusCode)
		return false
	}

	return true
}

// Generate runs a single non-streaming completion
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.timeout(localTimeout))
	defer cancel()

	req := ollamaRequest{
		Model:  g.config.Model,
		Prompt: prompt,
		Stream: false,
		System: g.config.system(),
		Options: ollamaOptions{
			Temperature: g.config.Temperature,
			NumPredict:  g.config.maxTokens(),
		},
	}

	resp, err := g.makeRequest(ctx, req)
	if err != nil {
		return "", generationError(g.Name(), err)
	}

	text := strings.TrimSpace(resp.Response)
	if text == "" {
		return "", generationError(g.Name(), fmt.Errorf("empty response"))
	}
	return text, nil
}

func (g *OllamaGenerator) makeRequest(ctx context.Context, apiReq ollamaRequest) (*ollamaResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/generate", g.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var apiErr ollamaError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("API error (%d): %s", httpResp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("API error (%d): %s", httpResp.StatusCode, string(respBody))
	}

	var resp ollamaResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &resp, nil
}
