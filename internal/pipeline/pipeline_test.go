package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/factrag/internal/compare"
	"github.com/ppiankov/factrag/internal/embed"
	"github.com/ppiankov/factrag/internal/extract"
	"github.com/ppiankov/factrag/internal/index"
	"github.com/ppiankov/factrag/internal/llm"
	"github.com/ppiankov/factrag/internal/model"
	"github.com/ppiankov/factrag/internal/normalize"
	"github.com/ppiankov/factrag/internal/retrieve"
	"github.com/ppiankov/factrag/internal/score"
	"github.com/ppiankov/factrag/internal/validate"
)

type stubGenerator struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
}

func (s *stubGenerator) Name() string                         { return "stub" }
func (s *stubGenerator) IsAvailable(ctx context.Context) bool { return true }
func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.response, s.err
}

type failingExtractor struct{}

func (failingExtractor) ExtractEntities(ctx context.Context, text string) ([]model.Entity, error) {
	return nil, errors.New("ner model unavailable")
}

type failingRetriever struct{ stats retrieve.Stats }

func (f failingRetriever) Retrieve(ctx context.Context, claim string) ([]model.RetrievedEvidence, error) {
	return nil, fmt.Errorf("%w: index offline", retrieve.ErrRetrieval)
}
func (f failingRetriever) Stats() retrieve.Stats { return f.stats }

type recorder struct {
	mu       sync.Mutex
	stages   map[string]int
	errors   map[string]int
	verdicts []model.Verdict
}

func newRecorder() *recorder {
	return &recorder{stages: map[string]int{}, errors: map[string]int{}}
}

func (r *recorder) ObserveStage(stage string, elapsed time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages[stage]++
	if err != nil {
		r.errors[stage]++
	}
}

func (r *recorder) ObserveVerification(v model.Verdict, evidence int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verdicts = append(r.verdicts, v)
}

var factClaims = []struct {
	id, claim, source string
	category          model.Category
}{
	{"fact_001", "Water boils at 100 degrees Celsius at sea level under standard atmospheric pressure", "https://pib.gov.in/science/1", model.CategoryEducation},
	{"fact_002", "Water boils at 100 degrees Celsius at sea level, as taught in school science", "https://pib.gov.in/science/1", model.CategoryEducation},
	{"fact_003", "India declared itself polio free after no new cases were reported for three years", "https://mohfw.gov.in/polio", model.CategoryHealth},
	{"fact_004", "Wheat procurement by the Food Corporation touched a record during the rabi season", "https://fci.gov.in/wheat", model.CategoryAgriculture},
}

func newRetriever(t *testing.T) *retrieve.Retriever {
	t.Helper()
	emb := embed.NewHashEmbedder(1024)
	facts := make([]model.Fact, len(factClaims))
	for i, fc := range factClaims {
		v, err := emb.Embed(context.Background(), fc.claim)
		require.NoError(t, err)
		facts[i] = model.Fact{
			ID: fc.id, Claim: fc.claim, Category: fc.category, Source: fc.source,
			PublicationDate: "2024-01-10", Embedding: v,
			Metadata: map[string]any{"department": "science"},
		}
	}
	r, err := retrieve.New(context.Background(), facts, emb, index.NewMemory(1024),
		retrieve.Config{SimilarityThreshold: 0.3, TopK: 5}, nil)
	require.NoError(t, err)
	return r
}

func newPipeline(t *testing.T, gen llm.Generator, opts ...Option) *Pipeline {
	t.Helper()
	return New(
		normalize.New(extract.NewRuleExtractor()),
		newRetriever(t),
		compare.New(gen, score.DefaultPolicy(), nil),
		opts...,
	)
}

func TestVerify_WaterBoils(t *testing.T) {
	gen := &stubGenerator{response: `{"verdict":"true","confidence":0.95,"explanation":"Evidence 1 states water boils at 100 degrees Celsius at sea level.","reasoning":"The claim matches the evidence directly.","sources":["https://pib.gov.in/science/1"]}`}
	rec := newRecorder()
	p := newPipeline(t, gen, WithRecorder(rec), WithAuthority(validate.NewAuthorityClassifier(nil)))

	resp, err := p.Verify(context.Background(), "Water boils at 100 degrees Celsius at sea level")
	require.NoError(t, err)

	assert.Equal(t, model.VerdictTrue, resp.Verdict)
	assert.InDelta(t, 0.95, resp.Confidence, 1e-9)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, "Water boils at 100 degrees Celsius at sea level", resp.Claim)

	require.NotEmpty(t, resp.Evidence)
	assert.Equal(t, "primary", resp.Evidence[0].Authority)
	assert.Equal(t, "science", resp.Evidence[0].Metadata["department"])
	for _, e := range resp.Evidence {
		assert.Equal(t, round3(e.Similarity), e.Similarity)
		assert.GreaterOrEqual(t, e.Similarity, 0.3)
	}
	// two facts share one source
	assert.Equal(t, []string{"https://pib.gov.in/science/1"}, resp.Sources)

	// "100 degrees Celsius" is a QUANTITY, which normalization drops
	assert.NotContains(t, resp.ExtractedClaim.Entities, model.EntityQuantity)
	for _, key := range []string{
		model.MetaExtractionTime, model.MetaRetrievalTime, model.MetaComparisonTime,
		model.MetaTotalTime, model.MetaFactsRetrieved,
	} {
		assert.Contains(t, resp.Metadata, key)
	}
	assert.Equal(t, model.PipelineVersion, resp.Metadata[model.MetaPipelineVersion])
	assert.Equal(t, 4, resp.Metadata[model.MetaFactBaseSize])
	assert.Equal(t, len(resp.Evidence), resp.Metadata[model.MetaFactsRetrieved])

	assert.Equal(t, map[string]int{StageNormalize: 1, StageRetrieve: 1, StageCompare: 1}, rec.stages)
	assert.Empty(t, rec.errors)
	assert.Equal(t, []model.Verdict{model.VerdictTrue}, rec.verdicts)
}

func TestVerify_OutOfDomain(t *testing.T) {
	gen := &stubGenerator{response: `{"verdict":"true","confidence":1,"explanation":"e","reasoning":"r"}`}
	p := newPipeline(t, gen)

	resp, err := p.Verify(context.Background(), "Quantum chromodynamics describes gluon confinement")
	require.NoError(t, err)

	assert.Equal(t, model.VerdictUnverifiable, resp.Verdict)
	assert.Equal(t, 0.0, resp.Confidence)
	assert.Empty(t, resp.Sources)
	assert.NotNil(t, resp.Sources)
	assert.Empty(t, resp.Evidence)
	assert.Equal(t, 0, gen.calls)
	assert.Equal(t, 0, resp.Metadata[model.MetaFactsRetrieved])
}

func TestVerify_EmptyInput(t *testing.T) {
	p := newPipeline(t, &stubGenerator{})

	for _, in := range []string{"", "   ", "\n\t"} {
		_, err := p.Verify(context.Background(), in)
		assert.ErrorIs(t, err, ErrEmptyInput)
	}
}

func TestVerify_NormalizationFallback(t *testing.T) {
	gen := &stubGenerator{response: `{"verdict":"true","confidence":0.9,"explanation":"e","reasoning":"r"}`}
	p := New(normalize.New(failingExtractor{}), newRetriever(t), compare.New(gen, score.DefaultPolicy(), nil))

	resp, err := p.Verify(context.Background(), "  Water boils at 100 degrees Celsius at sea level ")
	require.NoError(t, err)

	assert.Equal(t, "Water boils at 100 degrees Celsius at sea level", resp.ExtractedClaim.Text)
	assert.Empty(t, resp.ExtractedClaim.Entities)
	assert.Equal(t, 0.5, resp.ExtractedClaim.ExtractionConfidence)
	assert.Contains(t, resp.Metadata[model.MetaExtractionError], "ner model unavailable")
	assert.Equal(t, 0.0, resp.Metadata[model.MetaExtractionTime])

	// the pipeline still reaches a verdict
	assert.Equal(t, model.VerdictTrue, resp.Verdict)
	assert.Equal(t, 1, gen.calls)
}

func TestVerify_RetrievalFailure(t *testing.T) {
	gen := &stubGenerator{}
	rec := newRecorder()
	p := New(normalize.New(extract.NewRuleExtractor()), failingRetriever{retrieve.Stats{TotalFacts: 42}},
		compare.New(gen, score.DefaultPolicy(), nil), WithRecorder(rec))

	resp, err := p.Verify(context.Background(), "Polio was eliminated in 2014")
	require.NoError(t, err)

	assert.Equal(t, model.VerdictUnverifiable, resp.Verdict)
	assert.Equal(t, 0.0, resp.Confidence)
	assert.Equal(t, retrievalFailureExplanation, resp.Explanation)
	assert.Contains(t, resp.Reasoning, "Vector retrieval error")
	assert.Empty(t, resp.Evidence)
	assert.Empty(t, resp.Sources)
	assert.Contains(t, resp.Metadata, model.MetaRetrievalError)
	assert.Contains(t, resp.Metadata, model.MetaTotalTime)
	assert.Equal(t, 42, resp.Metadata[model.MetaFactBaseSize])
	assert.NotContains(t, resp.Metadata, model.MetaComparisonTime)
	assert.Equal(t, 0, gen.calls)
	assert.Equal(t, 1, rec.errors[StageRetrieve])
	assert.Zero(t, rec.stages[StageCompare])
}

func TestVerify_ComparisonFailureKeepsEvidence(t *testing.T) {
	gen := &stubGenerator{err: fmt.Errorf("%w: context deadline exceeded", llm.ErrGeneration)}
	p := newPipeline(t, gen)

	resp, err := p.Verify(context.Background(), "Water boils at 100 degrees Celsius at sea level")
	require.NoError(t, err)

	assert.Equal(t, model.VerdictUnverifiable, resp.Verdict)
	assert.Equal(t, 0.0, resp.Confidence)
	assert.Equal(t, comparisonFailureExplanation, resp.Explanation)
	assert.Contains(t, resp.Reasoning, "LLM comparison error")
	assert.NotEmpty(t, resp.Evidence)
	assert.Equal(t, []string{"https://pib.gov.in/science/1"}, resp.Sources)
	assert.Contains(t, resp.Metadata, model.MetaComparisonError)
	assert.Equal(t, 0.0, resp.Metadata[model.MetaComparisonTime])
}

func TestVerify_MalformedGeneration(t *testing.T) {
	p := newPipeline(t, &stubGenerator{response: "The claim looks right to me."})

	resp, err := p.Verify(context.Background(), "Water boils at 100 degrees Celsius at sea level")
	require.NoError(t, err)

	assert.Equal(t, model.VerdictUnverifiable, resp.Verdict)
	assert.Equal(t, 0.5, resp.Confidence)
	assert.NotEmpty(t, resp.Explanation)
	assert.NotEmpty(t, resp.Sources)
}

func TestVerify_Concurrent(t *testing.T) {
	gen := &stubGenerator{response: `{"verdict":"false","confidence":0.7,"explanation":"e","reasoning":"r"}`}
	p := newPipeline(t, gen)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := p.Verify(context.Background(), "Water boils at 100 degrees Celsius at sea level")
			if assert.NoError(t, err) {
				assert.Equal(t, model.VerdictFalse, resp.Verdict)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 16, gen.calls)
}

func TestVerificationResponse_JSONRoundTrip(t *testing.T) {
	in := model.VerificationResponse{
		Claim:       `He said "₹2 lakh crore" was allocated`,
		Verdict:     model.VerdictFalse,
		Confidence:  0.87654,
		Explanation: "Evidence 1 says \"₹1.5 lakh crore\".\nNot ₹2 lakh crore; café, naïve, 日本語",
		Reasoning:   "line one\nline two\ttabbed",
		Sources:     []string{"https://pib.gov.in/a?x=1&y=2", "PIB release «12»"},
		Evidence:    []model.EvidenceSummary{},
		Metadata:    map[string]any{model.MetaPipelineVersion: model.PipelineVersion},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out model.VerificationResponse
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, in.Verdict, out.Verdict)
	assert.InDelta(t, in.Confidence, out.Confidence, 1e-4)
	assert.Equal(t, in.Explanation, out.Explanation)
	assert.Equal(t, in.Sources, out.Sources)
	assert.Equal(t, in.Claim, out.Claim)
}

func TestInfo(t *testing.T) {
	p := newPipeline(t, &stubGenerator{})
	info := p.Info()

	assert.Equal(t, 4, info.Configuration.FactBaseSize)
	assert.Equal(t, 0.3, info.Configuration.SimilarityThreshold)
	assert.Equal(t, 5, info.Configuration.TopK)
	assert.Equal(t, "hash-embedder-v1", info.Configuration.EmbeddingModel)
	assert.Equal(t, 1024, info.Configuration.EmbeddingDimension)
	assert.Equal(t, "stub", info.Components["generator"])
	assert.Equal(t, "normalize.Normalizer", info.Components["claim_normalizer"])
	assert.Equal(t, "retrieve.Retriever", info.Components["evidence_retriever"])
	assert.Equal(t, "compare.Comparator", info.Components["verdict_comparator"])
}

func TestDedupeSources(t *testing.T) {
	ev := []model.RetrievedEvidence{
		{Fact: &model.Fact{Source: "b"}},
		{Fact: &model.Fact{Source: "a"}},
		{Fact: &model.Fact{Source: "b"}},
	}
	assert.Equal(t, []string{"b", "a"}, dedupeSources(ev))
	assert.Equal(t, []string{}, dedupeSources(nil))
}
