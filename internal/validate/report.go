package validate

import (
	"fmt"

	"github.com/ppiankov/factrag/internal/model"
)

// MinRecommendedFacts is the size below which retrieval quality is poor
const MinRecommendedFacts = 30

// Report summarizes a fact base for the `facts validate` command
type Report struct {
	Version           string                 `json:"version" yaml:"version"`
	LastUpdated       string                 `json:"last_updated,omitempty" yaml:"last_updated,omitempty"`
	EmbeddingModel    string                 `json:"embedding_model,omitempty" yaml:"embedding_model,omitempty"`
	TotalFacts        int                    `json:"total_facts" yaml:"total_facts"`
	Categories        map[model.Category]int `json:"categories" yaml:"categories"`
	Authority         map[string]int         `json:"authority" yaml:"authority"`
	NeedingEmbeddings int                    `json:"needing_embeddings" yaml:"needing_embeddings"`
	Issues            []Issue                `json:"issues,omitempty" yaml:"issues,omitempty"`
	Warnings          []string               `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Valid reports whether the fact base passed schema validation
func (r *Report) Valid() bool {
	return len(r.Issues) == 0
}

// BuildReport validates fb and gathers statistics and warnings.
// dim is the embedding dimension the store would enforce.
func BuildReport(fb *model.FactBase, dim int, classifier *AuthorityClassifier) *Report {
	if classifier == nil {
		classifier = NewAuthorityClassifier(nil)
	}

	r := &Report{
		Categories: make(map[model.Category]int),
		Authority:  make(map[string]int),
	}
	if fb == nil {
		r.Issues = []Issue{{Field: "facts", Message: "document is empty"}}
		return r
	}

	r.Version = fb.Version
	r.LastUpdated = fb.LastUpdated
	r.EmbeddingModel = fb.EmbeddingModel
	r.TotalFacts = len(fb.Facts)

	if err := FactBase(fb); err != nil {
		if se, ok := err.(*SchemaError); ok {
			r.Issues = se.Issues
		}
	}

	for i := range fb.Facts {
		f := &fb.Facts[i]
		r.Categories[f.Category]++
		r.Authority[classifier.Classify(f.Source).String()]++
		if !f.HasEmbedding(dim) {
			r.NeedingEmbeddings++
		}
	}

	if r.TotalFacts < MinRecommendedFacts {
		r.Warnings = append(r.Warnings, fmt.Sprintf("only %d facts; at least %d are recommended", r.TotalFacts, MinRecommendedFacts))
	}
	for _, c := range model.Categories() {
		if r.Categories[c] == 0 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("category %q has no facts", c))
		}
	}
	if fb.EmbeddingModel == "" && r.NeedingEmbeddings < r.TotalFacts {
		r.Warnings = append(r.Warnings, "embedding_model is not recorded; every fact will be re-embedded on load")
	}
	if r.NeedingEmbeddings > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%d facts have missing, zero or non-%d-dimensional embeddings and will be backfilled on load", r.NeedingEmbeddings, dim))
	}

	return r
}
