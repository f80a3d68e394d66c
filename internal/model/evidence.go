package model

// RetrievedEvidence pairs a fact with its similarity to the claim.
// Fact is shared with the store and must not be modified.
type RetrievedEvidence struct {
	Fact       *Fact   `json:"fact"`
	Similarity float64 `json:"similarity"` // 0.0 - 1.0
}

// EvidenceSummary is the response-facing view of a retrieved fact
type EvidenceSummary struct {
	FactID          string         `json:"fact_id"`
	Claim           string         `json:"claim"`
	Similarity      float64        `json:"similarity"` // rounded to 3 decimals
	SourceURL       string         `json:"source_url"`
	PublicationDate string         `json:"publication_date"`
	Category        Category       `json:"category"`
	Authority       string         `json:"authority,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// AuthorityTier represents the classification of source authority
type AuthorityTier int

const (
	TierUnknown   AuthorityTier = 0 // Not yet classified
	TierPrimary   AuthorityTier = 1 // Government releases, statutes, official statistics
	TierSecondary AuthorityTier = 2 // Encyclopedias, major publishers, reputable media
	TierTertiary  AuthorityTier = 3 // Blogs, personal websites, everything else
)

func (t AuthorityTier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	default:
		return "unknown"
	}
}
