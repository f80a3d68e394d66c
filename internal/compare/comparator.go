// Package compare asks a Generator whether retrieved evidence supports,
// contradicts, or cannot settle a claim.
package compare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/ppiankov/factrag/internal/llm"
	"github.com/ppiankov/factrag/internal/model"
	"github.com/ppiankov/factrag/internal/score"
)

// ErrComparison marks an empty claim or a generation failure
var ErrComparison = errors.New("comparison failed")

const (
	noEvidenceExplanation = "No relevant evidence found in the fact base to verify this claim."
	noEvidenceReasoning   = "Insufficient evidence: The fact base does not contain any statements similar enough to this claim for verification."
	parseFailureDefault   = "An error occurred while processing the generated response."
)

// Comparator produces a VerificationVerdict from a claim and its evidence
type Comparator struct {
	generator llm.Generator
	policy    score.Policy
	logger    *slog.Logger
}

// New creates a Comparator. A nil logger discards output.
func New(generator llm.Generator, policy score.Policy, logger *slog.Logger) *Comparator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Comparator{
		generator: generator,
		policy:    policy,
		logger:    logger.With("component", "comparator"),
	}
}

// Name returns the generator backing the comparator
func (c *Comparator) Name() string {
	return c.generator.Name()
}

// Compare classifies claim against evidence. With no evidence it returns
// unverifiable at confidence 0 without calling the generator. Unparseable
// output is recovered as unverifiable at confidence 0.5; only an empty claim
// or a generation failure returns an error.
func (c *Comparator) Compare(ctx context.Context, claim string, evidence []model.RetrievedEvidence) (model.VerificationVerdict, error) {
	claim = strings.TrimSpace(claim)
	if claim == "" {
		return model.VerificationVerdict{}, goerr.Wrap(
			fmt.Errorf("%w: claim is empty", ErrComparison), "cannot compare empty claim")
	}

	if len(evidence) == 0 {
		c.logger.Info("no evidence, skipping generation")
		return model.VerificationVerdict{
			Verdict:     model.VerdictUnverifiable,
			Confidence:  0,
			Explanation: noEvidenceExplanation,
			Reasoning:   noEvidenceReasoning,
		}, nil
	}

	start := time.Now()
	raw, err := c.generator.Generate(ctx, BuildPrompt(claim, evidence))
	if err != nil {
		return model.VerificationVerdict{}, goerr.Wrap(
			fmt.Errorf("%w: %w", ErrComparison, err), "generation failed during comparison",
			goerr.V("generator", c.generator.Name()),
			goerr.V("evidence", len(evidence)))
	}

	p, err := parseResponse(raw)
	if err != nil {
		c.logger.Warn("unusable generation output, falling back",
			"error", err,
			"raw", truncateRunes(raw, maxRawExplanation))
		return parseFallback(raw, err), nil
	}

	if p.verdict == model.VerdictUnverifiable && !strings.EqualFold(strings.TrimSpace(p.rawVerdict), string(model.VerdictUnverifiable)) {
		c.logger.Warn("unknown verdict coerced to unverifiable", "verdict", p.rawVerdict)
	}

	confidence := p.confidence
	if !p.hasConfidence || math.IsNaN(confidence) {
		confidence = c.policy.FallbackConfidence(p.verdict, similarities(evidence))
		c.logger.Debug("confidence computed from similarities", "confidence", confidence)
	}

	c.warnUncitedSources(p.explanation+"\n"+p.reasoning, evidence)

	v := model.VerificationVerdict{
		Verdict:     p.verdict,
		Confidence:  score.Clamp(confidence),
		Explanation: p.explanation,
		Reasoning:   p.reasoning,
	}
	c.logger.Info("comparison complete",
		"verdict", v.Verdict,
		"confidence", v.Confidence,
		"elapsed", time.Since(start))
	return v, nil
}

// parseFallback is the terminal recovery for unusable output
func parseFallback(raw string, cause error) model.VerificationVerdict {
	explanation := strings.TrimSpace(truncateRunes(raw, maxRawExplanation))
	if explanation == "" {
		explanation = parseFailureDefault
	}
	return model.VerificationVerdict{
		Verdict:     model.VerdictUnverifiable,
		Confidence:  0.5,
		Explanation: explanation,
		Reasoning:   "Failed to parse structured response from the generator: " + cause.Error(),
	}
}

// warnUncitedSources logs URLs the model cited that are not evidence sources
func (c *Comparator) warnUncitedSources(text string, evidence []model.RetrievedEvidence) {
	allowed := make(map[string]bool, len(evidence))
	for _, e := range evidence {
		allowed[e.Fact.Source] = true
	}
	for _, u := range llm.CitedURLs(text) {
		if !allowed[u] {
			c.logger.Warn("generator cited a source outside the evidence", "url", u)
		}
	}
}

func similarities(evidence []model.RetrievedEvidence) []float64 {
	out := make([]float64, len(evidence))
	for i, e := range evidence {
		out[i] = e.Similarity
	}
	return out
}
