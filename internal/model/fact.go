package model

// Category is the fixed domain category of a fact
type Category string

const (
	CategoryAgriculture    Category = "agriculture"
	CategoryHealth         Category = "health"
	CategoryEconomy        Category = "economy"
	CategoryInfrastructure Category = "infrastructure"
	CategoryEducation      Category = "education"
)

// Categories returns every allowed category in canonical order
func Categories() []Category {
	return []Category{
		CategoryAgriculture,
		CategoryHealth,
		CategoryEconomy,
		CategoryInfrastructure,
		CategoryEducation,
	}
}

// Valid reports whether c is one of the allowed categories
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Fact is a single verified statement from the evidence base
type Fact struct {
	ID              string         `json:"id" validate:"required,factid"`
	Claim           string         `json:"claim" validate:"required,min=10,max=500"`
	Category        Category       `json:"category" validate:"required,category"`
	Source          string         `json:"source" validate:"required"`
	PublicationDate string         `json:"publication_date" validate:"required,datetime=2006-01-02"`
	Embedding       []float32      `json:"embedding,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// HasEmbedding reports whether the fact carries a usable embedding of the given dimension.
// Missing, wrong-length and all-zero vectors are not usable.
func (f *Fact) HasEmbedding(dim int) bool {
	if len(f.Embedding) == 0 || len(f.Embedding) != dim {
		return false
	}
	for _, v := range f.Embedding {
		if v != 0 {
			return true
		}
	}
	return false
}

// FactBase is the persisted evidence base document
type FactBase struct {
	Version     string `json:"version" validate:"required,semver3"`
	LastUpdated string `json:"last_updated,omitempty"`
	// EmbeddingModel names the model that produced the stored embeddings
	EmbeddingModel string `json:"embedding_model,omitempty"`
	Facts          []Fact `json:"facts" validate:"required,min=1,dive"`
}
