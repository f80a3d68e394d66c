// Package store holds the evidence base: the validated, fully embedded list of facts
// every verification reads from.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/ppiankov/factrag/internal/model"
	"github.com/ppiankov/factrag/internal/validate"
)

// ErrStore marks load-time failures. They are fatal to startup.
var ErrStore = errors.New("evidence store")

func storeErr(cause error, msg string, opts ...goerr.Option) error {
	return goerr.Wrap(fmt.Errorf("%w: %w", ErrStore, cause), msg, opts...)
}

// BatchEmbedder is the embedding capability the store needs for backfill
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelInfo() string
}

// Options configures a Store
type Options struct {
	// Persist writes backfilled embeddings back to PersistPath (default: the source path)
	Persist     bool
	PersistPath string
	Logger      *slog.Logger
}

// Store is the loaded evidence base. It is read-only after Load returns.
type Store struct {
	path     string
	embedder BatchEmbedder
	opts     Options
	logger   *slog.Logger

	mu          sync.RWMutex
	facts       []model.Fact
	byID        map[string]int
	version     string
	lastUpdated string

	persistWG sync.WaitGroup
}

// New creates a store for the fact base at path
func New(path string, embedder BatchEmbedder, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.PersistPath == "" {
		opts.PersistPath = path
	}
	return &Store{
		path:     path,
		embedder: embedder,
		opts:     opts,
		logger:   logger.With("component", "store"),
	}
}

// Load reads, validates and backfills the fact base.
// It fails with ErrStore if the document is missing, malformed or invalid,
// or if embeddings cannot be brought to the store's dimension.
func (s *Store) Load(ctx context.Context) ([]model.Fact, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, storeErr(err, "failed to read fact base", goerr.V("path", s.path))
	}

	// Keep every top-level field so persistence does not drop unknown keys
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, storeErr(err, "fact base is not a JSON object", goerr.V("path", s.path))
	}

	var fb model.FactBase
	if err := json.Unmarshal(data, &fb); err != nil {
		return nil, storeErr(err, "failed to decode fact base", goerr.V("path", s.path))
	}

	if err := validate.FactBase(&fb); err != nil {
		return nil, storeErr(err, "fact base failed schema validation", goerr.V("path", s.path))
	}

	// Vectors from another model are not comparable with query vectors
	modelInfo := s.embedder.ModelInfo()
	stale := fb.EmbeddingModel != modelInfo
	if stale {
		s.logger.Info("stored embeddings come from another model, re-embedding all facts",
			"stored_model", fb.EmbeddingModel,
			"model", modelInfo,
		)
	}

	backfilled, err := s.backfill(ctx, fb.Facts, stale)
	if err != nil {
		return nil, err
	}
	fb.EmbeddingModel = modelInfo

	byID := make(map[string]int, len(fb.Facts))
	for i := range fb.Facts {
		byID[fb.Facts[i].ID] = i
	}

	s.mu.Lock()
	s.facts = fb.Facts
	s.byID = byID
	s.version = fb.Version
	s.lastUpdated = fb.LastUpdated
	s.mu.Unlock()

	s.logger.Info("fact base loaded",
		"path", s.path,
		"version", fb.Version,
		"facts", len(fb.Facts),
		"backfilled", backfilled,
		"dimension", s.embedder.Dimension(),
	)

	if backfilled > 0 && s.opts.Persist {
		s.persistAsync(raw, fb)
	}

	return fb.Facts, nil
}

// backfill embeds every fact lacking a usable embedding, or every fact when all is set,
// and returns how many were filled
func (s *Store) backfill(ctx context.Context, facts []model.Fact, all bool) (int, error) {
	dim := s.embedder.Dimension()

	var (
		pending []int
		texts   []string
	)
	for i := range facts {
		if all || !facts[i].HasEmbedding(dim) {
			pending = append(pending, i)
			texts = append(texts, facts[i].Claim)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	s.logger.Info("backfilling embeddings", "count", len(pending))

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, storeErr(err, "failed to embed facts", goerr.V("count", len(texts)))
	}
	if len(vectors) != len(pending) {
		return 0, storeErr(
			fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(pending)),
			"embedding backfill count mismatch",
		)
	}

	for j, idx := range pending {
		if len(vectors[j]) != dim {
			return 0, storeErr(
				fmt.Errorf("got %d values, want %d", len(vectors[j]), dim),
				"embedding length mismatch",
				goerr.V("fact_id", facts[idx].ID),
			)
		}
		facts[idx].Embedding = vectors[j]
	}

	return len(pending), nil
}

// Lookup returns the fact with the given ID
func (s *Store) Lookup(id string) (*model.Fact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return &s.facts[idx], true
}

// ByCategory returns the facts of one category in store order
func (s *Store) ByCategory(category model.Category) []*model.Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Fact
	for i := range s.facts {
		if s.facts[i].Category == category {
			out = append(out, &s.facts[i])
		}
	}
	return out
}

// Facts returns the loaded facts. Callers must not modify them.
func (s *Store) Facts() []model.Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.facts
}

// Len returns the number of loaded facts
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts)
}

// Version returns the fact base version string
func (s *Store) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// LastUpdated returns the fact base last_updated timestamp
func (s *Store) LastUpdated() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// Dimension returns the embedding dimension every fact conforms to
func (s *Store) Dimension() int {
	return s.embedder.Dimension()
}

// CategoryCounts returns the number of facts per category
func (s *Store) CategoryCounts() map[model.Category]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[model.Category]int)
	for i := range s.facts {
		counts[s.facts[i].Category]++
	}
	return counts
}

// Flush waits for in-flight persistence to finish
func (s *Store) Flush() {
	s.persistWG.Wait()
}
