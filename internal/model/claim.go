package model

// EntityType is a named-entity label (ORG, DATE, GPE, ...)
type EntityType string

const (
	EntityOrg      EntityType = "ORG"
	EntityDate     EntityType = "DATE"
	EntityGPE      EntityType = "GPE"
	EntityPerson   EntityType = "PERSON"
	EntityMoney    EntityType = "MONEY"
	EntityCardinal EntityType = "CARDINAL"
	EntityPercent  EntityType = "PERCENT"
	EntityProduct  EntityType = "PRODUCT"
	EntityEvent    EntityType = "EVENT"
	EntityLaw      EntityType = "LAW"

	// Produced by extractors but not kept in a NormalizedClaim
	EntityOrdinal  EntityType = "ORDINAL"
	EntityTime     EntityType = "TIME"
	EntityQuantity EntityType = "QUANTITY"
)

// KeptEntityTypes is the allow-list of entity types retained during normalization
var KeptEntityTypes = []EntityType{
	EntityOrg, EntityDate, EntityGPE, EntityPerson, EntityMoney,
	EntityCardinal, EntityPercent, EntityProduct, EntityEvent, EntityLaw,
}

// Kept reports whether t is in the allow-list
func (t EntityType) Kept() bool {
	for _, k := range KeptEntityTypes {
		if t == k {
			return true
		}
	}
	return false
}

// Entity is a raw extractor result
type Entity struct {
	Type EntityType `json:"type"`
	Text string     `json:"text"`
}

// NormalizedClaim is the normalized form of an input statement
type NormalizedClaim struct {
	Text                 string                  `json:"text"`
	Entities             map[EntityType][]string `json:"entities"`
	ExtractionConfidence float64                 `json:"extraction_confidence"`
}

// EntityCount returns the total number of entities across all types
func (c NormalizedClaim) EntityCount() int {
	n := 0
	for _, list := range c.Entities {
		n += len(list)
	}
	return n
}
