package normalize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/factrag/internal/extract"
	"github.com/ppiankov/factrag/internal/model"
)

type stubExtractor struct {
	entities []model.Entity
	failOn   string
}

func (s *stubExtractor) ExtractEntities(ctx context.Context, text string) ([]model.Entity, error) {
	if s.failOn != "" && strings.Contains(text, s.failOn) {
		return nil, errors.New("ner model unavailable")
	}
	return s.entities, nil
}

func TestNormalize_FiltersAndDedupes(t *testing.T) {
	ex := &stubExtractor{entities: []model.Entity{
		{Type: model.EntityOrg, Text: "RBI"},
		{Type: model.EntityOrdinal, Text: "first"},
		{Type: model.EntityOrg, Text: "SEBI"},
		{Type: model.EntityOrg, Text: "RBI"},
		{Type: model.EntityDate, Text: "1935"},
		{Type: model.EntityQuantity, Text: "5 km"},
	}}

	n := New(ex)
	got, err := n.Normalize(context.Background(), "  The RBI and SEBI regulate markets since 1935  ")
	require.NoError(t, err)

	assert.Equal(t, "The RBI and SEBI regulate markets since 1935", got.Text)
	assert.Equal(t, map[model.EntityType][]string{
		model.EntityOrg:  {"RBI", "SEBI"},
		model.EntityDate: {"1935"},
	}, got.Entities)
	// 3 entities, 2 types
	assert.InDelta(t, 0.5+0.3+0.10, got.ExtractionConfidence, 1e-9)
}

func TestNormalize_NoEntities(t *testing.T) {
	got, err := New(&stubExtractor{}).Normalize(context.Background(), "the sky is a pleasant colour today")
	require.NoError(t, err)
	assert.Empty(t, got.Entities)
	assert.InDelta(t, 0.4, got.ExtractionConfidence, 1e-9)
}

func TestNormalize_Errors(t *testing.T) {
	n := New(&stubExtractor{failOn: "boom"})

	for _, in := range []string{"", "   ", "\n\t"} {
		_, err := n.Normalize(context.Background(), in)
		assert.ErrorIs(t, err, ErrNormalization, "input %q", in)
	}

	_, err := n.Normalize(context.Background(), "this will boom")
	assert.ErrorIs(t, err, ErrNormalization)
}

func TestNormalize_WithRuleExtractor(t *testing.T) {
	n := New(extract.NewRuleExtractor())
	got, err := n.Normalize(context.Background(), "Water boils at 100 degrees Celsius at sea level")
	require.NoError(t, err)

	// the quantity entity is not in the allow-list
	assert.Empty(t, got.Entities)
	assert.InDelta(t, 0.4, got.ExtractionConfidence, 1e-9)
}

func TestNormalizeBatch(t *testing.T) {
	ex := &stubExtractor{
		entities: []model.Entity{{Type: model.EntityGPE, Text: "India"}},
		failOn:   "boom",
	}
	n := New(ex, WithWorkers(2))

	texts := []string{"India is a country in Asia", "this will boom", "   ", "India has many states"}
	got := n.NormalizeBatch(context.Background(), texts)

	require.Len(t, got, len(texts))

	assert.Equal(t, "India is a country in Asia", got[0].Text)
	assert.Equal(t, []string{"India"}, got[0].Entities[model.EntityGPE])
	assert.Greater(t, got[0].ExtractionConfidence, 0.0)

	for _, i := range []int{1, 2} {
		assert.Equal(t, texts[i], got[i].Text)
		assert.Empty(t, got[i].Entities)
		assert.Equal(t, 0.0, got[i].ExtractionConfidence)
	}

	assert.Equal(t, "India has many states", got[3].Text)
}

func TestNormalizeBatch_Empty(t *testing.T) {
	assert.Empty(t, New(&stubExtractor{}).NormalizeBatch(context.Background(), nil))
}
