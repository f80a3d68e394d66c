package embed

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/factrag/internal/cache"
	"github.com/ppiankov/factrag/internal/model"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(128)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Water boils at 100 degrees Celsius at sea level")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "water boils at 100 degrees celsius at sea level!")
	require.NoError(t, err)
	c, err := e.Embed(ctx, "The stock market fell sharply on Tuesday")
	require.NoError(t, err)

	require.Len(t, a, 128)
	assert.InDelta(t, 1.0, math.Sqrt(dot(a, a)), 1e-5, "unit length")
	assert.InDelta(t, 1.0, dot(a, b), 1e-5, "case and punctuation do not matter")
	assert.Less(t, dot(a, c), dot(a, b))

	_, err = e.Embed(ctx, "  ...  ")
	assert.ErrorIs(t, err, ErrEmptyText)

	assert.Equal(t, 384, NewHashEmbedder(0).Dimension())
}

func TestHashEmbedder_Batch(t *testing.T) {
	e := NewHashEmbedder(32)
	vecs, err := e.EmbedBatch(context.Background(), []string{"alpha beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	single, _ := e.Embed(context.Background(), "gamma")
	assert.Equal(t, single, vecs[1])
}

func TestOpenAIEmbedder(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if r.URL.Path != "/embeddings" {
			t.Errorf("Expected path /embeddings, got %s", r.URL.Path)
		}

		var req struct {
			Input      []string `json:"input"`
			Dimensions int      `json:"dimensions"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Dimensions != 3 {
			t.Errorf("Expected dimensions 3, got %d", req.Dimensions)
		}

		// answer out of order to check Index handling
		resp := openai.EmbeddingResponse{Object: "list"}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, openai.Embedding{
				Object:    "embedding",
				Index:     i,
				Embedding: []float32{float32(i + 1), 0, 0},
			})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	e, err := NewOpenAIEmbedder(model.EmbeddingConfig{
		APIKey:    "test-key",
		BaseURL:   server.URL,
		Model:     "text-embedding-3-small",
		Dimension: 3,
		Timeout:   5,
	})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"first text", "second text"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 0, 0}, vecs[0])
	assert.Equal(t, []float32{1, 0, 0}, vecs[1], "vectors are normalized")
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
	assert.Equal(t, "openai/text-embedding-3-small", e.ModelInfo())

	_, err = e.EmbedBatch(context.Background(), []string{"ok", " "})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestOpenAIEmbedder_RequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(model.EmbeddingConfig{})
	assert.Error(t, err)
}

func TestOllamaEmbedder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("Expected path /api/embeddings, got %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Prompt == "fail" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float64{0, float64(len(req.Prompt)), 0, 0}})
	}))
	defer server.Close()

	e, err := NewOllamaEmbedder(model.EmbeddingConfig{BaseURL: server.URL + "/", Model: "all-minilm", Dimension: 4, Timeout: 5})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Equal(t, []float32{0, 1, 0, 0}, v)
	}

	_, err = e.EmbedBatch(context.Background(), []string{"a", "fail"})
	assert.Error(t, err)

	_, err = NewOllamaEmbedder(model.EmbeddingConfig{Dimension: 4})
	assert.Error(t, err, "model is required")
}

func TestOllamaEmbedder_WrongDimension(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float64{1, 2}})
	}))
	defer server.Close()

	e, err := NewOllamaEmbedder(model.EmbeddingConfig{BaseURL: server.URL, Model: "m", Dimension: 4})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "text")
	assert.Error(t, err)
}

type countingEmbedder struct {
	*HashEmbedder
	single int
	batch  int
	texts  int
	err    error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.single++
	if c.err != nil {
		return nil, c.err
	}
	return c.HashEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batch++
	c.texts += len(texts)
	if c.err != nil {
		return nil, c.err
	}
	return c.HashEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(16)}
	e := NewCachedEmbedder(inner, cache.NewMemoryCache(time.Minute, time.Minute), 0)
	ctx := context.Background()

	first, err := e.Embed(ctx, "rice exports rose")
	require.NoError(t, err)
	second, err := e.Embed(ctx, "rice exports rose")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.single)

	vecs, err := e.EmbedBatch(ctx, []string{"rice exports rose", "wheat imports fell", "new text"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, first, vecs[0])
	assert.Equal(t, 1, inner.batch)
	assert.Equal(t, 2, inner.texts, "only misses reach the inner embedder")

	_, err = e.EmbedBatch(ctx, []string{"wheat imports fell", "new text"})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.batch, "fully cached batch makes no inner call")

	assert.Equal(t, 16, e.Dimension())
	assert.Equal(t, "hash-embedder-v1", e.ModelInfo())
}

func TestCachedEmbedder_ErrorsAreNotCached(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(8), err: errors.New("offline")}
	e := NewCachedEmbedder(inner, cache.NewMemoryCache(time.Minute, time.Minute), 0)

	_, err := e.Embed(context.Background(), "x y")
	require.Error(t, err)
	inner.err = nil
	_, err = e.Embed(context.Background(), "x y")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.single)
}

func TestVectorCodec(t *testing.T) {
	v := []float32{0, -1.5, 3.25, float32(math.Pi)}
	got, ok := decodeVector(encodeVector(v))
	require.True(t, ok)
	assert.Equal(t, v, got)

	_, ok = decodeVector([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestNew(t *testing.T) {
	e, err := New(model.EmbeddingConfig{Provider: "hash", Dimension: 64}, nil)
	require.NoError(t, err)
	assert.IsType(t, &HashEmbedder{}, e)

	e, err = New(model.EmbeddingConfig{Provider: "hash", Dimension: 64}, cache.NewMemoryCache(time.Minute, time.Minute))
	require.NoError(t, err)
	assert.IsType(t, &CachedEmbedder{}, e)

	_, err = New(model.EmbeddingConfig{Provider: "word2vec"}, nil)
	assert.Error(t, err)

	_, err = New(model.EmbeddingConfig{Provider: "openai"}, nil)
	assert.Error(t, err, "missing API key")
}
