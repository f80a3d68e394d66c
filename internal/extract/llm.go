package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/factrag/internal/llm"
	"github.com/ppiankov/factrag/internal/model"
)

// LLMExtractor asks a generation provider for a JSON entity list
type LLMExtractor struct {
	gen llm.Generator
}

// NewLLMExtractor creates an extractor backed by gen
func NewLLMExtractor(gen llm.Generator) *LLMExtractor {
	return &LLMExtractor{gen: gen}
}

const entityPrompt = `Extract the named entities from the statement below.

Use only these labels: ORG, DATE, GPE, PERSON, MONEY, CARDINAL, PERCENT, PRODUCT, EVENT, LAW.
Copy each entity exactly as it appears in the statement. Do not add entities that are not in the text.

Statement: %q

Respond with a JSON array only, for example:
[{"type": "ORG", "text": "Reserve Bank of India"}, {"type": "DATE", "text": "1935"}]`

// ExtractEntities returns the entities the model reported. Labels are upper-cased;
// entries with an empty label or text are skipped.
func (e *LLMExtractor) ExtractEntities(ctx context.Context, text string) ([]model.Entity, error) {
	out, err := e.gen.Generate(ctx, fmt.Sprintf(entityPrompt, text))
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Type  string `json:"type"`
		Label string `json:"label"`
		Text  string `json:"text"`
	}
	if err := json.Unmarshal([]byte(llm.StripCodeFence(out)), &raw); err != nil {
		return nil, fmt.Errorf("parse entity list: %w", err)
	}

	entities := make([]model.Entity, 0, len(raw))
	for _, r := range raw {
		label := r.Type
		if label == "" {
			label = r.Label
		}
		label = strings.ToUpper(strings.TrimSpace(label))
		t := strings.TrimSpace(r.Text)
		if label == "" || t == "" {
			continue
		}
		entities = append(entities, model.Entity{Type: model.EntityType(label), Text: t})
	}
	return entities, nil
}
