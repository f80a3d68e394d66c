package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIGenerator implements Generator with OpenAI chat completions
type OpenAIGenerator struct {
	client *openai.Client
	config Config
}

// NewOpenAIGenerator creates a new OpenAI generator
func NewOpenAIGenerator(config Config) (*OpenAIGenerator, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = newHTTPClient(config, hostedTimeout)

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name returns the provider name
func (g *OpenAIGenerator) Name() string {
	return "openai"
}

// IsAvailable checks if the provider is properly configured
func (g *OpenAIGenerator) IsAvailable(ctx context.Context) bool {
	// Lightweight call: list models
	if _, err := g.client.ListModels(ctx); err != nil {
		slog.Warn("openai availability check failed", "error", err)
		return false
	}
	return true
}

// Generate runs a single chat completion
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	model := g.config.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.timeout(hostedTimeout))
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: g.config.system()},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   g.config.maxTokens(),
		Temperature: g.config.Temperature,
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", generationError(g.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return "", generationError(g.Name(), fmt.Errorf("no choices in response"))
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
