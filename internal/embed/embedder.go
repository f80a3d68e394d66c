// Package embed provides the embedding capability: text in, fixed-dimension vector out.
package embed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ppiankov/factrag/internal/cache"
	"github.com/ppiankov/factrag/internal/model"
)

// ErrEmptyText is returned when asked to embed blank text
var ErrEmptyText = errors.New("cannot embed empty text")

// Embedder generates fixed-dimension embeddings
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelInfo() string
}

// New creates the embedder selected by cfg, wrapped in c when c is non-nil
func New(cfg model.EmbeddingConfig, c cache.Cache) (Embedder, error) {
	var (
		e   Embedder
		err error
	)

	switch strings.ToLower(cfg.Provider) {
	case "", "hash":
		e = NewHashEmbedder(cfg.Dimension)
	case "openai":
		e, err = NewOpenAIEmbedder(cfg)
	case "ollama":
		e, err = NewOllamaEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: hash, openai, ollama)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if c != nil {
		e = NewCachedEmbedder(e, c, 0)
	}
	return e, nil
}

func timeoutOf(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// l2normalize scales v to unit length in place. Zero vectors are left as is.
func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
