package retrieve

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/factrag/internal/embed"
	"github.com/ppiankov/factrag/internal/index"
	"github.com/ppiankov/factrag/internal/model"
)

// mapEmbedder returns fixed vectors per text
type mapEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (m *mapEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}
func (m *mapEmbedder) Dimension() int    { return 3 }
func (m *mapEmbedder) ModelInfo() string { return "map" }

type failingIndex struct{ *index.Memory }

func (f failingIndex) Query(ctx context.Context, v []float32, k int) ([]index.Hit, error) {
	return nil, errors.New("index offline")
}

func testFacts() []model.Fact {
	return []model.Fact{
		{ID: "fact_001", Claim: "East fact about agriculture", Category: model.CategoryAgriculture, Source: "https://pib.gov.in/1", Embedding: []float32{1, 0, 0}},
		{ID: "fact_002", Claim: "North fact about health", Category: model.CategoryHealth, Source: "https://who.int/2", Embedding: []float32{0, 1, 0}},
		{ID: "fact_003", Claim: "Northeast fact about health", Category: model.CategoryHealth, Source: "https://who.int/3", Embedding: []float32{1, 1, 0}},
	}
}

func newRetriever(t *testing.T, emb Embedder, cfg Config) *Retriever {
	t.Helper()
	r, err := New(context.Background(), testFacts(), emb, index.NewMemory(3), cfg, nil)
	require.NoError(t, err)
	return r
}

func TestNew_Validation(t *testing.T) {
	emb := &mapEmbedder{}
	ctx := context.Background()

	tests := []struct {
		name  string
		facts []model.Fact
		cfg   Config
	}{
		{"empty facts", nil, Config{SimilarityThreshold: 0.3, TopK: 5}},
		{"threshold above 1", testFacts(), Config{SimilarityThreshold: 1.1, TopK: 5}},
		{"threshold below 0", testFacts(), Config{SimilarityThreshold: -0.1, TopK: 5}},
		{"top_k zero", testFacts(), Config{SimilarityThreshold: 0.3, TopK: 0}},
		{"missing embedding", append(testFacts(), model.Fact{ID: "fact_004", Claim: "No vector here at all"}), Config{SimilarityThreshold: 0.3, TopK: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(ctx, tt.facts, emb, index.NewMemory(3), tt.cfg, nil)
			assert.ErrorIs(t, err, ErrRetrieval)
		})
	}
}

func TestRetrieve_RanksAndFilters(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float32{"mostly east": {1, 0.2, 0}}}
	r := newRetriever(t, emb, Config{SimilarityThreshold: 0.5, TopK: 5})

	got, err := r.Retrieve(context.Background(), "  mostly east ")
	require.NoError(t, err)

	// north has cosine ~0.196 and is filtered out
	require.Len(t, got, 2)
	assert.Equal(t, "fact_001", got[0].Fact.ID)
	assert.Equal(t, "fact_003", got[1].Fact.ID)
	assert.Greater(t, got[0].Similarity, got[1].Similarity)
}

func TestRetrieve_TopK(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float32{"diag": {1, 1, 0.1}}}
	r := newRetriever(t, emb, Config{SimilarityThreshold: 0, TopK: 1})

	got, err := r.Retrieve(context.Background(), "diag")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fact_003", got[0].Fact.ID)
}

// countingIndex records the k of every query
type countingIndex struct {
	*index.Memory
	ks []int
}

func (c *countingIndex) Query(ctx context.Context, v []float32, k int) ([]index.Hit, error) {
	c.ks = append(c.ks, k)
	return c.Memory.Query(ctx, v, k)
}

func TestRetrieve_SkipsStaleIndexEntries(t *testing.T) {
	ctx := context.Background()
	mem := index.NewMemory(3)
	// left over from an older fact base, closest to the query
	require.NoError(t, mem.Upsert(ctx, "stale_001", []float32{1, 1, 0.1}, nil))
	require.NoError(t, mem.Upsert(ctx, "stale_002", []float32{1, 1, 0.1}, nil))

	idx := &countingIndex{Memory: mem}
	emb := &mapEmbedder{vectors: map[string][]float32{"diag": {1, 1, 0.1}}}
	r, err := New(ctx, testFacts(), emb, idx, Config{SimilarityThreshold: 0, TopK: 2}, nil)
	require.NoError(t, err)

	got, err := r.Retrieve(ctx, "diag")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "fact_003", got[0].Fact.ID)
	for _, ev := range got {
		assert.Contains(t, []string{"fact_001", "fact_002", "fact_003"}, ev.Fact.ID)
	}
	assert.Equal(t, []int{2, 4}, idx.ks, "query widened by the skipped hits")
}

func TestRetrieve_NothingAboveThreshold(t *testing.T) {
	r := newRetriever(t, &mapEmbedder{}, Config{SimilarityThreshold: 0.3, TopK: 5})

	// unknown text embeds orthogonally to every fact
	got, err := r.Retrieve(context.Background(), "quantum chromodynamics")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieve_Errors(t *testing.T) {
	ctx := context.Background()

	r := newRetriever(t, &mapEmbedder{}, Config{SimilarityThreshold: 0.3, TopK: 5})
	_, err := r.Retrieve(ctx, "   ")
	assert.ErrorIs(t, err, ErrRetrieval)

	r = newRetriever(t, &mapEmbedder{err: errors.New("embedding service down")}, Config{SimilarityThreshold: 0.3, TopK: 5})
	_, err = r.Retrieve(ctx, "claim")
	assert.ErrorIs(t, err, ErrRetrieval)

	r, err = New(ctx, testFacts(), &mapEmbedder{}, failingIndex{index.NewMemory(3)}, Config{SimilarityThreshold: 0.3, TopK: 5}, nil)
	require.NoError(t, err)
	_, err = r.Retrieve(ctx, "claim")
	assert.ErrorIs(t, err, ErrRetrieval)
}

// Property: for random claims, results are above threshold, sorted, and at most top_k.
func TestRetrieve_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	emb := embed.NewHashEmbedder(64)

	claims := []string{
		"Rice production in Punjab rose in 2023",
		"The national literacy rate reached 77 percent",
		"A new expressway connects Delhi and Mumbai",
		"Polio was eliminated from India in 2014",
		"Repo rate was held steady by the RBI",
		"Wheat procurement touched a record high",
	}
	facts := make([]model.Fact, len(claims))
	for i, c := range claims {
		v, err := emb.Embed(context.Background(), c)
		require.NoError(t, err)
		facts[i] = model.Fact{ID: "fact_00" + string(rune('1'+i)), Claim: c, Category: model.CategoryEconomy, Embedding: v}
	}

	for trial := 0; trial < 20; trial++ {
		threshold := rng.Float64() * 0.6
		topK := 1 + rng.Intn(4)

		r, err := New(context.Background(), facts, emb, index.NewMemory(64), Config{SimilarityThreshold: threshold, TopK: topK}, nil)
		require.NoError(t, err)

		query := claims[rng.Intn(len(claims))] + " according to reports"
		got, err := r.Retrieve(context.Background(), query)
		require.NoError(t, err)

		assert.LessOrEqual(t, len(got), topK)
		for i, ev := range got {
			assert.GreaterOrEqual(t, ev.Similarity, threshold)
			assert.LessOrEqual(t, ev.Similarity, 1.0)
			if i > 0 {
				assert.GreaterOrEqual(t, got[i-1].Similarity, ev.Similarity)
			}
		}
	}
}

func TestRetrieveByID(t *testing.T) {
	r := newRetriever(t, &mapEmbedder{}, Config{SimilarityThreshold: 0.3, TopK: 5})

	ev, ok := r.RetrieveByID("fact_002")
	require.True(t, ok)
	assert.Equal(t, 1.0, ev.Similarity)
	assert.Equal(t, "North fact about health", ev.Fact.Claim)

	_, ok = r.RetrieveByID("fact_999")
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	r := newRetriever(t, &mapEmbedder{}, Config{SimilarityThreshold: 0.3, TopK: 5})

	s := r.Stats()
	assert.Equal(t, 3, s.TotalFacts)
	assert.Equal(t, map[string]int{"agriculture": 1, "health": 2}, s.CategoryDistribution)
	assert.Equal(t, 0.3, s.SimilarityThreshold)
	assert.Equal(t, 5, s.TopK)
	assert.Equal(t, 3, s.EmbeddingDimension)
	assert.Equal(t, "map", s.EmbeddingModel)
	assert.Equal(t, 3, s.IndexSize)
}
