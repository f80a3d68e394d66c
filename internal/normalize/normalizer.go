// Package normalize turns raw claim text into a NormalizedClaim: trimmed text,
// allow-listed and de-duplicated entities, and an extraction confidence.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/ppiankov/factrag/internal/extract"
	"github.com/ppiankov/factrag/internal/model"
	"github.com/ppiankov/factrag/internal/score"
	"github.com/ppiankov/factrag/internal/worker"
)

// ErrNormalization marks empty input or an entity extraction failure
var ErrNormalization = errors.New("normalization failed")

// Normalizer normalizes claims with an entity extractor
type Normalizer struct {
	extractor extract.EntityExtractor
	policy    score.Policy
	workers   int
	logger    *slog.Logger
}

// Option configures a Normalizer
type Option func(*Normalizer)

// WithPolicy overrides the confidence policy
func WithPolicy(p score.Policy) Option {
	return func(n *Normalizer) { n.policy = p }
}

// WithWorkers sets the batch concurrency
func WithWorkers(w int) Option {
	return func(n *Normalizer) { n.workers = w }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.logger = l
		}
	}
}

// New creates a Normalizer
func New(extractor extract.EntityExtractor, opts ...Option) *Normalizer {
	n := &Normalizer{
		extractor: extractor,
		policy:    score.DefaultPolicy(),
		workers:   4,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With("component", "normalizer")
	return n
}

// Normalize extracts entities from text and scores the extraction
func (n *Normalizer) Normalize(ctx context.Context, text string) (model.NormalizedClaim, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.NormalizedClaim{}, goerr.Wrap(
			fmt.Errorf("%w: input text is empty", ErrNormalization), "cannot normalize empty claim")
	}

	raw, err := n.extractor.ExtractEntities(ctx, text)
	if err != nil {
		return model.NormalizedClaim{}, goerr.Wrap(
			fmt.Errorf("%w: %w", ErrNormalization, err), "entity extraction failed",
			goerr.V("text_len", len(text)))
	}

	entities := groupEntities(raw)
	return model.NormalizedClaim{
		Text:                 text,
		Entities:             entities,
		ExtractionConfidence: n.policy.ExtractionConfidence(text, entities),
	}, nil
}

// groupEntities keeps allow-listed types and drops duplicates within a type,
// preserving first-seen order
func groupEntities(raw []model.Entity) map[model.EntityType][]string {
	out := make(map[model.EntityType][]string)
	seen := make(map[model.Entity]bool)

	for _, e := range raw {
		if !e.Type.Kept() || e.Text == "" || seen[e] {
			continue
		}
		seen[e] = true
		out[e.Type] = append(out[e.Type], e.Text)
	}
	return out
}

type normalizeJob struct {
	n    *Normalizer
	text string
}

type normalizeResult struct {
	claim model.NormalizedClaim
	err   error
}

func (r *normalizeResult) GetError() error { return r.err }

func (j *normalizeJob) Execute(ctx context.Context) worker.Result {
	claim, err := j.n.Normalize(ctx, j.text)
	return &normalizeResult{claim: claim, err: err}
}

// NormalizeBatch normalizes texts concurrently. The result is aligned with
// texts; an item that fails yields its original text with no entities and
// zero confidence, and never fails the batch.
func (n *Normalizer) NormalizeBatch(ctx context.Context, texts []string) []model.NormalizedClaim {
	jobs := make([]worker.Job, len(texts))
	for i, t := range texts {
		jobs[i] = &normalizeJob{n: n, text: t}
	}

	results := worker.Run(ctx, n.workers, jobs)

	out := make([]model.NormalizedClaim, len(texts))
	for i, r := range results {
		res, ok := r.(*normalizeResult)
		if ok && res.err == nil {
			out[i] = res.claim
			continue
		}

		var err error = context.Canceled
		if ok {
			err = res.err
		}
		n.logger.Warn("batch item normalization failed", "index", i, "error", err)
		out[i] = model.NormalizedClaim{
			Text:     texts[i],
			Entities: map[model.EntityType][]string{},
		}
	}
	return out
}
