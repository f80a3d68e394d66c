// Package llm adapts hosted and local language models to a single
// prompt-in, text-out generation capability.
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/ppiankov/factrag/internal/model"
	"github.com/ppiankov/factrag/internal/util"
)

// ErrGeneration marks every failure of a generation provider: timeouts,
// connection errors, non-200 responses, rate limit waits, empty output.
var ErrGeneration = errors.New("generation failed")

// Generator is the text generation capability
type Generator interface {
	// Name returns the provider name
	Name() string

	// Generate returns the model's completion for prompt
	Generate(ctx context.Context, prompt string) (string, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests in seconds, 0 uses the provider default
	Timeout int

	// MaxTokens for response generation
	MaxTokens int

	// Temperature for sampling
	Temperature float32

	// System is the system instruction sent with every prompt
	System string

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

const (
	defaultTemperature   = 0.3
	defaultMaxTokens     = 1000
	hostedTimeout        = 30 * time.Second
	localTimeout         = 120 * time.Second
	defaultSystemMessage = "You are a precise fact-checking assistant. You judge claims only against the evidence you are given and always answer in the requested JSON format."
)

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:    "openai",
		Timeout:     0,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
		System:      defaultSystemMessage,
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(c model.LLMConfig) Config {
	cfg := DefaultConfig()
	cfg.Provider = c.Provider
	cfg.Model = c.Model
	cfg.APIKey = c.APIKey
	cfg.BaseURL = c.BaseURL
	cfg.Timeout = c.Timeout
	cfg.HTTPProxy = c.HTTPProxy
	cfg.HTTPSProxy = c.HTTPSProxy
	if c.MaxTokens > 0 {
		cfg.MaxTokens = c.MaxTokens
	}
	return cfg
}

func (c Config) timeout(fallback time.Duration) time.Duration {
	if c.Timeout <= 0 {
		return fallback
	}
	return time.Duration(c.Timeout) * time.Second
}

func (c Config) maxTokens() int {
	if c.MaxTokens <= 0 {
		return defaultMaxTokens
	}
	return c.MaxTokens
}

func (c Config) system() string {
	if c.System == "" {
		return defaultSystemMessage
	}
	return c.System
}

func (c Config) proxy() util.ProxyConfig {
	return util.ProxyConfig{HTTPProxy: c.HTTPProxy, HTTPSProxy: c.HTTPSProxy, NoProxy: c.NoProxy}
}

// generationError tags err as ErrGeneration with the provider name attached
func generationError(provider string, err error) error {
	return goerr.Wrap(fmt.Errorf("%w: %s: %w", ErrGeneration, provider, err),
		"generation request failed", goerr.V("provider", provider))
}

var (
	jsonFence  = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	plainFence = regexp.MustCompile("(?s)```\\s*(.*?)\\s*```")
	urlPattern = regexp.MustCompile(`https?://[^\s\)"'\]]+`)
)

// StripCodeFence returns the body of the first ```json fence, or else the
// first plain ``` fence, or else text trimmed. A fence that is never closed
// (output cut at the token limit) yields everything after its opening line.
func StripCodeFence(text string) string {
	if m := jsonFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := plainFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if _, rest, ok := strings.Cut(text, "```json"); ok {
		return strings.TrimSpace(rest)
	}
	if _, rest, ok := strings.Cut(text, "```"); ok {
		// drop a language tag on the opening line
		if tag, body, found := strings.Cut(rest, "\n"); found && !strings.ContainsAny(tag, "{[") {
			rest = body
		}
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(text)
}

// CitedURLs extracts the distinct http(s) URLs mentioned in text
func CitedURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)

	seen := make(map[string]bool)
	var unique []string
	for _, u := range matches {
		// Clean up trailing punctuation
		u = strings.TrimRight(u, ".,;:!?")
		if !seen[u] {
			seen[u] = true
			unique = append(unique, u)
		}
	}

	return unique
}
