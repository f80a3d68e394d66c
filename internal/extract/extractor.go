// Package extract finds named entities in claim text.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/factrag/internal/llm"
	"github.com/ppiankov/factrag/internal/model"
)

// EntityExtractor is the named-entity recognition capability
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) ([]model.Entity, error)
}

// New creates the extractor selected by cfg. gen is only used by the llm extractor.
func New(cfg model.ExtractionConfig, gen llm.Generator) (EntityExtractor, error) {
	var e EntityExtractor

	switch strings.ToLower(cfg.Extractor) {
	case "", "rules":
		e = NewRuleExtractor()
	case "llm":
		if gen == nil {
			return nil, fmt.Errorf("llm extractor requires a generation provider")
		}
		e = NewLLMExtractor(gen)
	default:
		return nil, fmt.Errorf("unknown extractor: %s (supported: rules, llm)", cfg.Extractor)
	}

	if cfg.StripHTML {
		e = &htmlStripping{next: e}
	}
	return e, nil
}

// htmlStripping runs the wrapped extractor over the visible text only
type htmlStripping struct {
	next EntityExtractor
}

func (h *htmlStripping) ExtractEntities(ctx context.Context, text string) ([]model.Entity, error) {
	return h.next.ExtractEntities(ctx, VisibleText(text))
}
