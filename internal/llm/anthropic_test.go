package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAnthropicGenerator_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Expected path /v1/messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("Expected x-api-key header test-key, got %s", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("Expected anthropic-version header 2023-06-01, got %s", r.Header.Get("anthropic-version"))
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.System == "" {
			t.Error("Expected system instruction")
		}
		if req.MaxTokens != 1000 {
			t.Errorf("Expected max_tokens 1000, got %d", req.MaxTokens)
		}

		_, _ = w.Write([]byte(`{
			"id": "msg_123",
			"type": "message",
			"content": [{"type": "text", "text": "{\"verdict\": \"false\"}"}],
			"model": "claude-3-5-sonnet-20241022",
			"usage": {"input_tokens": 50, "output_tokens": 50}
		}`))
	}))
	defer server.Close()

	config := DefaultConfig()
	config.APIKey = "test-key"
	config.BaseURL = server.URL
	config.Model = "claude-3-5-sonnet-20241022"
	config.Timeout = 5

	gen, err := NewAnthropicGenerator(config)
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	out, err := gen.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out != `{"verdict": "false"}` {
		t.Errorf("Unexpected output: %q", out)
	}
}

func TestAnthropicGenerator_Generate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`))
	}))
	defer server.Close()

	gen, err := NewAnthropicGenerator(Config{APIKey: "bad-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	_, err = gen.Generate(context.Background(), "prompt")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !errors.Is(err, ErrGeneration) {
		t.Errorf("Expected ErrGeneration, got %v", err)
	}
	if !strings.Contains(err.Error(), "authentication_error") {
		t.Errorf("Expected error type in message, got %v", err)
	}
}

func TestAnthropicGenerator_Generate_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "rate_limit_error", "message": "slow down"}}`))
	}))
	defer server.Close()

	gen, err := NewAnthropicGenerator(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	if _, err := gen.Generate(context.Background(), "prompt"); !errors.Is(err, ErrGeneration) {
		t.Fatalf("Expected ErrGeneration, got %v", err)
	}
}

func TestAnthropicGenerator_Generate_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{malformed json`))
	}))
	defer server.Close()

	gen, err := NewAnthropicGenerator(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	if _, err := gen.Generate(context.Background(), "prompt"); err == nil {
		t.Fatal("Expected error for malformed JSON, got nil")
	}
}

func TestAnthropicGenerator_Generate_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "msg_1", "content": []}`))
	}))
	defer server.Close()

	gen, err := NewAnthropicGenerator(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	if _, err := gen.Generate(context.Background(), "prompt"); !errors.Is(err, ErrGeneration) {
		t.Fatalf("Expected ErrGeneration for empty content, got %v", err)
	}
}

func TestAnthropicGenerator_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "msg_1", "content": [{"type": "text", "text": "Hello"}]}`))
	}))
	defer server.Close()

	gen, err := NewAnthropicGenerator(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	if !gen.IsAvailable(context.Background()) {
		t.Error("Expected available to be true")
	}

	server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if gen.IsAvailable(context.Background()) {
		t.Error("Expected available to be false on error")
	}
}
