package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ppiankov/factrag/internal/cache"
	"github.com/ppiankov/factrag/internal/compare"
	"github.com/ppiankov/factrag/internal/embed"
	"github.com/ppiankov/factrag/internal/extract"
	"github.com/ppiankov/factrag/internal/index"
	"github.com/ppiankov/factrag/internal/llm"
	"github.com/ppiankov/factrag/internal/model"
	"github.com/ppiankov/factrag/internal/normalize"
	"github.com/ppiankov/factrag/internal/observability"
	"github.com/ppiankov/factrag/internal/pipeline"
	"github.com/ppiankov/factrag/internal/retrieve"
	"github.com/ppiankov/factrag/internal/score"
	"github.com/ppiankov/factrag/internal/store"
	"github.com/ppiankov/factrag/internal/validate"
	"github.com/ppiankov/factrag/internal/worker"
)

// app holds the constructed services. Nothing here is a global.
type app struct {
	cfg       *model.Config
	logger    *slog.Logger
	store     *store.Store
	retriever *retrieve.Retriever
	generator llm.Generator
	pipeline  *pipeline.Pipeline
	metrics   *observability.Metrics
	registry  *prometheus.Registry
}

// newRetrievalApp loads the fact base and builds the retriever only
func newRetrievalApp(ctx context.Context, cfg *model.Config, logger *slog.Logger) (*app, error) {
	var c cache.Cache
	if cfg.Cache.Enabled {
		c = cache.NewDefaultLayeredCache(
			time.Duration(cfg.Cache.MemoryTTL)*time.Minute,
			cfg.Cache.Dir,
			time.Duration(cfg.Cache.DiskTTL)*time.Hour)
	}

	emb, err := embed.New(cfg.Embedding, c)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	st := store.New(cfg.FactBase.Path, emb, store.Options{
		Persist: cfg.FactBase.PersistBackfill,
		Logger:  logger,
	})
	facts, err := st.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load fact base: %w", err)
	}

	idx, err := index.New(ctx, cfg.Index, emb.Dimension(), logger)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	ret, err := retrieve.New(ctx, facts, emb, idx, retrieve.Config{
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		TopK:                cfg.Retrieval.TopK,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build retriever: %w", err)
	}

	return &app{cfg: cfg, logger: logger, store: st, retriever: ret}, nil
}

// newApp builds the full verification pipeline
func newApp(ctx context.Context, cfg *model.Config, logger *slog.Logger) (*app, error) {
	a, err := newRetrievalApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	gen, err := llm.NewGenerator(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return nil, fmt.Errorf("create generator: %w", err)
	}
	limiter := worker.NewProviderLimiter(cfg.RateLimiting)
	a.generator = llm.NewRateLimited(gen, limiter)

	extractor, err := extract.New(cfg.Extraction, a.generator)
	if err != nil {
		return nil, fmt.Errorf("create entity extractor: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = observability.NewMetrics(a.registry)

	a.pipeline = pipeline.New(
		normalize.New(extractor,
			normalize.WithWorkers(cfg.Concurrency.Workers),
			normalize.WithLogger(logger)),
		a.retriever,
		compare.New(a.generator, score.DefaultPolicy(), logger),
		pipeline.WithLogger(logger),
		pipeline.WithRecorder(a.metrics),
		pipeline.WithAuthority(validate.NewAuthorityClassifier(&cfg.Authority)),
	)
	return a, nil
}

// close waits for best-effort background work
func (a *app) close() {
	if a.store != nil {
		a.store.Flush()
	}
}
