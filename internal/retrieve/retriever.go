// Package retrieve finds the facts most similar to a claim.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/ppiankov/factrag/internal/index"
	"github.com/ppiankov/factrag/internal/model"
	"github.com/ppiankov/factrag/internal/score"
)

// ErrRetrieval marks invalid construction, empty claims, and embed or index failures
var ErrRetrieval = errors.New("retrieval failed")

func retrievalErr(cause error, msg string, opts ...goerr.Option) error {
	return goerr.Wrap(fmt.Errorf("%w: %w", ErrRetrieval, cause), msg, opts...)
}

// Embedder is the embedding capability the retriever needs
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	ModelInfo() string
}

// Config bounds what Retrieve returns
type Config struct {
	SimilarityThreshold float64
	TopK                int
}

// Retriever ranks facts by cosine similarity to a claim
type Retriever struct {
	facts    []*model.Fact
	byID     map[string]*model.Fact
	embedder Embedder
	index    index.Index
	cfg      Config
	logger   *slog.Logger
}

// New indexes facts and returns a ready Retriever. It fails with ErrRetrieval
// when facts is empty, a fact has no embedding of the embedder's dimension,
// the threshold is outside [0,1], top_k < 1, or indexing fails.
func New(ctx context.Context, facts []model.Fact, embedder Embedder, idx index.Index, cfg Config, logger *slog.Logger) (*Retriever, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(facts) == 0 {
		return nil, retrievalErr(errors.New("empty fact list"), "cannot build retriever")
	}
	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		return nil, retrievalErr(
			fmt.Errorf("similarity threshold must be between 0.0 and 1.0, got %v", cfg.SimilarityThreshold),
			"invalid retriever config")
	}
	if cfg.TopK < 1 {
		return nil, retrievalErr(fmt.Errorf("top_k must be at least 1, got %d", cfg.TopK), "invalid retriever config")
	}

	dim := embedder.Dimension()
	r := &Retriever{
		facts:    make([]*model.Fact, len(facts)),
		byID:     make(map[string]*model.Fact, len(facts)),
		embedder: embedder,
		index:    idx,
		cfg:      cfg,
		logger:   logger.With("component", "retriever"),
	}

	items := make([]index.Item, len(facts))
	for i := range facts {
		f := &facts[i]
		if len(f.Embedding) != dim {
			return nil, retrievalErr(
				fmt.Errorf("fact has %d embedding values, want %d", len(f.Embedding), dim),
				"all facts must have embeddings", goerr.V("fact_id", f.ID))
		}
		r.facts[i] = f
		r.byID[f.ID] = f
		items[i] = index.Item{
			ID:     f.ID,
			Vector: f.Embedding,
			Metadata: map[string]any{
				"claim":    f.Claim,
				"category": string(f.Category),
				"source":   f.Source,
			},
		}
	}

	start := time.Now()
	if err := index.UpsertAll(ctx, idx, items); err != nil {
		return nil, retrievalErr(err, "failed to index facts", goerr.V("facts", len(items)))
	}

	r.logger.Info("retriever ready",
		"facts", len(facts),
		"threshold", cfg.SimilarityThreshold,
		"top_k", cfg.TopK,
		"index_elapsed", time.Since(start),
	)
	return r, nil
}

// Retrieve returns up to top_k facts whose similarity to claim is at least the
// threshold, sorted by descending similarity. An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, claim string) ([]model.RetrievedEvidence, error) {
	claim = strings.TrimSpace(claim)
	if claim == "" {
		return nil, retrievalErr(errors.New("claim is empty"), "cannot retrieve for empty claim")
	}

	vec, err := r.embedder.Embed(ctx, claim)
	if err != nil {
		return nil, retrievalErr(err, "failed to embed claim")
	}

	out, err := r.query(ctx, vec)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if len(out) > r.cfg.TopK {
		out = out[:r.cfg.TopK]
	}

	if len(out) > 0 {
		r.logger.Debug("retrieved evidence",
			"count", len(out),
			"top", out[0].Similarity,
			"lowest", out[len(out)-1].Similarity)
	} else {
		r.logger.Debug("no evidence above threshold", "threshold", r.cfg.SimilarityThreshold)
	}
	return out, nil
}

// query collects up to TopK known facts from the index. Hits for IDs missing from
// the fact base (stale objects in a persistent index) are skipped and the query is
// widened by the number skipped until TopK known hits are found or the index runs out.
func (r *Retriever) query(ctx context.Context, vec []float32) ([]model.RetrievedEvidence, error) {
	k := r.cfg.TopK
	for {
		hits, err := r.index.Query(ctx, vec, k)
		if err != nil {
			return nil, retrievalErr(err, "nearest-neighbour query failed", goerr.V("top_k", k))
		}

		out := make([]model.RetrievedEvidence, 0, len(hits))
		known, unknown := 0, 0
		for _, h := range hits {
			f, ok := r.byID[h.ID]
			if !ok {
				unknown++
				continue
			}
			known++
			sim := score.Clamp(1 - h.Distance)
			if sim < r.cfg.SimilarityThreshold {
				continue
			}
			out = append(out, model.RetrievedEvidence{Fact: f, Similarity: sim})
		}

		if known >= r.cfg.TopK || len(hits) < k || unknown == 0 {
			if unknown > 0 {
				r.logger.Warn("index holds facts missing from the fact base", "skipped", unknown, "k", k)
			}
			return out, nil
		}
		k += unknown
	}
}

// RetrieveByID returns the fact with id at similarity 1.0
func (r *Retriever) RetrieveByID(id string) (model.RetrievedEvidence, bool) {
	f, ok := r.byID[id]
	if !ok {
		return model.RetrievedEvidence{}, false
	}
	return model.RetrievedEvidence{Fact: f, Similarity: 1.0}, true
}

// Stats describes the retriever's fact base and settings
type Stats struct {
	TotalFacts           int            `json:"total_facts" yaml:"total_facts"`
	CategoryDistribution map[string]int `json:"category_distribution" yaml:"category_distribution"`
	SimilarityThreshold  float64        `json:"similarity_threshold" yaml:"similarity_threshold"`
	TopK                 int            `json:"top_k" yaml:"top_k"`
	EmbeddingDimension   int            `json:"embedding_dimension" yaml:"embedding_dimension"`
	EmbeddingModel       string         `json:"embedding_model" yaml:"embedding_model"`
	IndexSize            int            `json:"index_size" yaml:"index_size"`
}

// Stats returns retriever statistics
func (r *Retriever) Stats() Stats {
	dist := make(map[string]int)
	for _, f := range r.facts {
		dist[string(f.Category)]++
	}
	return Stats{
		TotalFacts:           len(r.facts),
		CategoryDistribution: dist,
		SimilarityThreshold:  r.cfg.SimilarityThreshold,
		TopK:                 r.cfg.TopK,
		EmbeddingDimension:   r.embedder.Dimension(),
		EmbeddingModel:       r.embedder.ModelInfo(),
		IndexSize:            r.index.Len(),
	}
}

// Len returns the number of facts
func (r *Retriever) Len() int { return len(r.facts) }
