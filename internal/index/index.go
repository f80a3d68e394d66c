// Package index provides nearest-neighbour lookup over fact embeddings.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ppiankov/factrag/internal/model"
)

// ErrDimension is returned when a vector does not match the index dimension
var ErrDimension = errors.New("vector dimension mismatch")

// Hit is a single nearest-neighbour result. Distance is cosine distance (1 - cosine similarity).
type Hit struct {
	ID       string
	Distance float64
}

// Index stores vectors by fact ID and answers top-k cosine queries
type Index interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error
	Query(ctx context.Context, vector []float32, k int) ([]Hit, error)
	Len() int
}

// Item is one vector to be written by UpsertBatch
type Item struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// BatchUpserter is implemented by indexes that can write many vectors in one call
type BatchUpserter interface {
	UpsertBatch(ctx context.Context, items []Item) error
}

// UpsertAll writes items using UpsertBatch when idx supports it
func UpsertAll(ctx context.Context, idx Index, items []Item) error {
	if b, ok := idx.(BatchUpserter); ok {
		return b.UpsertBatch(ctx, items)
	}
	for _, it := range items {
		if err := idx.Upsert(ctx, it.ID, it.Vector, it.Metadata); err != nil {
			return fmt.Errorf("upsert %s: %w", it.ID, err)
		}
	}
	return nil
}

// New creates the index backend selected by cfg
func New(ctx context.Context, cfg model.IndexConfig, dim int, logger *slog.Logger) (Index, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemory(dim), nil
	case "weaviate":
		return NewWeaviate(ctx, cfg, dim, logger)
	default:
		return nil, fmt.Errorf("unknown index backend: %s (supported: memory, weaviate)", cfg.Backend)
	}
}
