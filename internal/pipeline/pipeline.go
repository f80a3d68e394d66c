// Package pipeline runs the Normalize, Retrieve, Compare and Assemble stages
// of a verification and degrades every per-request failure into a well-formed
// unverifiable response.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/ppiankov/factrag/internal/model"
	"github.com/ppiankov/factrag/internal/retrieve"
	"github.com/ppiankov/factrag/internal/validate"
)

// ErrEmptyInput is returned for blank input. It is the only error Verify returns.
var ErrEmptyInput = errors.New("input text is empty")

// Stage names used in logs and metrics
const (
	StageNormalize = "normalize"
	StageRetrieve  = "retrieve"
	StageCompare   = "compare"
)

const (
	retrievalFailureExplanation  = "Failed to retrieve facts from the database due to a technical error."
	comparisonFailureExplanation = "Failed to analyze evidence due to LLM error."
	fallbackExtractionConfidence = 0.5
)

// Normalizer turns raw text into a NormalizedClaim
type Normalizer interface {
	Normalize(ctx context.Context, text string) (model.NormalizedClaim, error)
}

// Retriever finds evidence for a claim
type Retriever interface {
	Retrieve(ctx context.Context, claim string) ([]model.RetrievedEvidence, error)
	Stats() retrieve.Stats
}

// Comparator classifies a claim against evidence
type Comparator interface {
	Compare(ctx context.Context, claim string, evidence []model.RetrievedEvidence) (model.VerificationVerdict, error)
	Name() string
}

// Recorder receives stage timings and verdicts. observability.Metrics implements it.
type Recorder interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
	ObserveVerification(verdict model.Verdict, evidence int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, time.Duration, error) {}
func (nopRecorder) ObserveVerification(model.Verdict, int)    {}

// Pipeline orchestrates a single verification
type Pipeline struct {
	normalizer Normalizer
	retriever  Retriever
	comparator Comparator
	authority  *validate.AuthorityClassifier
	recorder   Recorder
	logger     *slog.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithAuthority tags evidence summaries with the source authority tier
func WithAuthority(a *validate.AuthorityClassifier) Option {
	return func(p *Pipeline) { p.authority = a }
}

// New creates a pipeline from constructed services
func New(normalizer Normalizer, retriever Retriever, comparator Comparator, opts ...Option) *Pipeline {
	p := &Pipeline{
		normalizer: normalizer,
		retriever:  retriever,
		comparator: comparator,
		recorder:   nopRecorder{},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pipeline")
	return p
}

// outcome is the result of one stage
type outcome[T any] struct {
	Value   T
	Err     error
	Elapsed time.Duration
}

func runStage[T any](ctx context.Context, p *Pipeline, stage string, fn func(context.Context) (T, error)) outcome[T] {
	start := time.Now()
	v, err := fn(ctx)
	o := outcome[T]{Value: v, Err: err, Elapsed: time.Since(start)}

	p.recorder.ObserveStage(stage, o.Elapsed, err)
	if err == nil {
		p.logger.Info("stage complete", "stage", stage, "elapsed", o.Elapsed)
	}
	return o
}

// Verify runs the full pipeline over text. Every failure after input
// validation is reported inside the response, never as an error.
func (p *Pipeline) Verify(ctx context.Context, text string) (*model.VerificationResponse, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, goerr.Wrap(ErrEmptyInput, "cannot verify empty input")
	}

	start := time.Now()
	meta := map[string]any{
		model.MetaPipelineVersion: model.PipelineVersion,
		model.MetaFactBaseSize:    p.retriever.Stats().TotalFacts,
	}
	resp := &model.VerificationResponse{
		Claim:    text,
		Evidence: []model.EvidenceSummary{},
		Sources:  []string{},
		Metadata: meta,
	}
	finish := func() *model.VerificationResponse {
		meta[model.MetaTotalTime] = seconds(time.Since(start))
		p.recorder.ObserveVerification(resp.Verdict, len(resp.Evidence))
		return resp
	}

	// 1. Normalize
	norm := runStage(ctx, p, StageNormalize, func(ctx context.Context) (model.NormalizedClaim, error) {
		return p.normalizer.Normalize(ctx, text)
	})
	if norm.Err != nil {
		p.logger.Warn("normalization failed, using raw text", "error", norm.Err)
		norm.Value = model.NormalizedClaim{
			Text:                 text,
			Entities:             map[model.EntityType][]string{},
			ExtractionConfidence: fallbackExtractionConfidence,
		}
		meta[model.MetaExtractionTime] = 0.0
		meta[model.MetaExtractionError] = norm.Err.Error()
	} else {
		meta[model.MetaExtractionTime] = seconds(norm.Elapsed)
	}
	resp.ExtractedClaim = norm.Value
	claim := norm.Value.Text

	// 2. Retrieve
	ret := runStage(ctx, p, StageRetrieve, func(ctx context.Context) ([]model.RetrievedEvidence, error) {
		return p.retriever.Retrieve(ctx, claim)
	})
	if ret.Err != nil {
		p.logger.Error("retrieval failed, returning unverifiable", "error", ret.Err)
		meta[model.MetaRetrievalTime] = 0.0
		meta[model.MetaRetrievalError] = ret.Err.Error()
		resp.Verdict = model.VerdictUnverifiable
		resp.Confidence = 0
		resp.Explanation = retrievalFailureExplanation
		resp.Reasoning = fmt.Sprintf("Vector retrieval error: %v", ret.Err)
		return finish(), nil
	}
	meta[model.MetaRetrievalTime] = seconds(ret.Elapsed)
	meta[model.MetaFactsRetrieved] = len(ret.Value)
	if n := len(ret.Value); n > 0 {
		p.logger.Info("evidence retrieved",
			"count", n,
			"max_similarity", ret.Value[0].Similarity,
			"min_similarity", ret.Value[n-1].Similarity)
	}

	resp.Evidence = p.summarize(ret.Value)
	resp.Sources = dedupeSources(ret.Value)

	// 3. Compare
	cmp := runStage(ctx, p, StageCompare, func(ctx context.Context) (model.VerificationVerdict, error) {
		return p.comparator.Compare(ctx, claim, ret.Value)
	})
	if cmp.Err != nil {
		p.logger.Error("comparison failed, returning unverifiable", "error", cmp.Err)
		meta[model.MetaComparisonTime] = 0.0
		meta[model.MetaComparisonError] = cmp.Err.Error()
		resp.Verdict = model.VerdictUnverifiable
		resp.Confidence = 0
		resp.Explanation = comparisonFailureExplanation
		resp.Reasoning = fmt.Sprintf("LLM comparison error: %v", cmp.Err)
		return finish(), nil
	}
	meta[model.MetaComparisonTime] = seconds(cmp.Elapsed)

	// 4. Assemble
	resp.Verdict = cmp.Value.Verdict
	resp.Confidence = cmp.Value.Confidence
	resp.Explanation = cmp.Value.Explanation
	resp.Reasoning = cmp.Value.Reasoning

	finish()
	p.logger.Info("verification complete",
		"verdict", resp.Verdict,
		"confidence", resp.Confidence,
		"total", time.Since(start))
	return resp, nil
}

func (p *Pipeline) summarize(evidence []model.RetrievedEvidence) []model.EvidenceSummary {
	out := make([]model.EvidenceSummary, 0, len(evidence))
	for _, e := range evidence {
		s := model.EvidenceSummary{
			FactID:          e.Fact.ID,
			Claim:           e.Fact.Claim,
			Similarity:      round3(e.Similarity),
			SourceURL:       e.Fact.Source,
			PublicationDate: e.Fact.PublicationDate,
			Category:        e.Fact.Category,
			Metadata:        e.Fact.Metadata,
		}
		if p.authority != nil {
			s.Authority = p.authority.Classify(e.Fact.Source).String()
		}
		out = append(out, s)
	}
	return out
}

// dedupeSources keeps the first occurrence of each source
func dedupeSources(evidence []model.RetrievedEvidence) []string {
	seen := make(map[string]bool, len(evidence))
	out := make([]string, 0, len(evidence))
	for _, e := range evidence {
		if seen[e.Fact.Source] {
			continue
		}
		seen[e.Fact.Source] = true
		out = append(out, e.Fact.Source)
	}
	return out
}

// Info describes the configured pipeline
type Info struct {
	Components    map[string]string `json:"components" yaml:"components"`
	Configuration Configuration     `json:"configuration" yaml:"configuration"`
}

// Configuration is the retrieval setup reported by Info
type Configuration struct {
	FactBaseSize        int     `json:"fact_base_size" yaml:"fact_base_size"`
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`
	TopK                int     `json:"top_k" yaml:"top_k"`
	EmbeddingModel      string  `json:"embedding_model" yaml:"embedding_model"`
	EmbeddingDimension  int     `json:"embedding_dimension" yaml:"embedding_dimension"`
}

// Info returns component names and retrieval settings
func (p *Pipeline) Info() Info {
	stats := p.retriever.Stats()
	return Info{
		Components: map[string]string{
			"claim_normalizer":   typeName(p.normalizer),
			"evidence_retriever": typeName(p.retriever),
			"verdict_comparator": typeName(p.comparator),
			"generator":          p.comparator.Name(),
		},
		Configuration: Configuration{
			FactBaseSize:        stats.TotalFacts,
			SimilarityThreshold: stats.SimilarityThreshold,
			TopK:                stats.TopK,
			EmbeddingModel:      stats.EmbeddingModel,
			EmbeddingDimension:  stats.EmbeddingDimension,
		},
	}
}

func typeName(v any) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", v), "*")
}

func seconds(d time.Duration) float64 {
	return round3(d.Seconds())
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
