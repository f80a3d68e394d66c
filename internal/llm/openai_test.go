package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
)

func TestOpenAIGenerator_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[1].Content != "classify this" {
			t.Errorf("Unexpected messages: %+v", req.Messages)
		}
		if req.Temperature != 0.3 {
			t.Errorf("Expected temperature 0.3, got %v", req.Temperature)
		}

		resp := openai.ChatCompletionResponse{
			ID:     "chatcmpl-123",
			Object: "chat.completion",
			Model:  "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{
				{
					Message: openai.ChatCompletionMessage{
						Role:    "assistant",
						Content: "  {\"verdict\": \"true\"}\n",
					},
					FinishReason: "stop",
				},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	config := DefaultConfig()
	config.APIKey = "test-key"
	config.BaseURL = server.URL
	config.Model = "gpt-4o-mini"
	config.Timeout = 5

	gen, err := NewOpenAIGenerator(config)
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	out, err := gen.Generate(context.Background(), "classify this")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out != `{"verdict": "true"}` {
		t.Errorf("Unexpected output: %q", out)
	}
}

func TestOpenAIGenerator_MissingKey(t *testing.T) {
	if _, err := NewOpenAIGenerator(Config{}); err == nil {
		t.Fatal("Expected error for missing API key")
	}
}

func TestOpenAIGenerator_Generate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error": {"message": "Internal Server Error", "type": "server_error"}}`))
			},
		},
		{
			name: "rate limit",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error": {"message": "Rate limit exceeded", "type": "rate_limit_error"}}`))
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{malformed json`))
			},
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{ID: "x"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			gen, err := NewOpenAIGenerator(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
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
		})
	}
}

func TestOpenAIGenerator_Generate_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	gen, err := NewOpenAIGenerator(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 1})
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	// The caller's deadline is shorter than the configured timeout and wins.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = gen.Generate(ctx, "prompt")
	if err == nil {
		t.Fatal("Expected timeout error, got nil")
	}
	if !errors.Is(err, ErrGeneration) {
		t.Errorf("Expected ErrGeneration, got %v", err)
	}
}

func TestOpenAIGenerator_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"data": [{"id": "gpt-4o-mini"}]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	gen, err := NewOpenAIGenerator(Config{APIKey: "test-key", BaseURL: server.URL})
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
