package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/factrag/internal/model"
	"github.com/ppiankov/factrag/internal/util"
)

// ollamaConcurrency bounds parallel requests to a local Ollama server
const ollamaConcurrency = 4

// OllamaEmbedder uses a local Ollama server's /api/embeddings endpoint
type OllamaEmbedder struct {
	baseURL    string
	model      string
	dim        int
	httpClient *http.Client
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewOllamaEmbedder creates an Ollama embedder
func NewOllamaEmbedder(cfg model.EmbeddingConfig) (*OllamaEmbedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama embedding model must be specified (e.g., all-minilm, nomic-embed-text)")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("ollama embedding dimension must be set")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	return &OllamaEmbedder{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      cfg.Model,
		dim:        cfg.Dimension,
		httpClient: util.NewHTTPClient(timeoutOf(cfg.Timeout, 60*time.Second), util.ProxyConfig{}),
	}, nil
}

// Embed generates an embedding for a single text
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embeddings error (%d): %s", resp.StatusCode, string(respBody))
	}

	var parsed ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(parsed.Embedding) != e.dim {
		return nil, fmt.Errorf("ollama returned %d dimensions, expected %d", len(parsed.Embedding), e.dim)
	}

	v := make([]float32, len(parsed.Embedding))
	for i, x := range parsed.Embedding {
		v[i] = float32(x)
	}
	l2normalize(v)
	return v, nil
}

// EmbedBatch embeds texts concurrently, preserving input order
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ollamaConcurrency)
	for i, text := range texts {
		g.Go(func() error {
			v, err := e.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Dimension returns the embedding dimension
func (e *OllamaEmbedder) Dimension() int {
	return e.dim
}

// ModelInfo returns model information
func (e *OllamaEmbedder) ModelInfo() string {
	return "ollama/" + e.model
}
