// Package score holds the confidence heuristics used by normalization and
// comparison. The constants are tunable; DefaultPolicy reproduces the
// reference behaviour exactly.
package score

import (
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/factrag/internal/model"
)

// Policy parameterizes the confidence heuristics
type Policy struct {
	// Extraction confidence
	BaseConfidence     float64    `yaml:"base_confidence"`
	NoEntityConfidence float64    `yaml:"no_entity_confidence"`
	PerEntityBonus     float64    `yaml:"per_entity_bonus"`
	EntityBonusCap     float64    `yaml:"entity_bonus_cap"`
	DiversityBonus     [3]float64 `yaml:"diversity_bonus"` // 1, 2, >=3 distinct types
	ShortTextRunes     int        `yaml:"short_text_runes"`
	ShortTextFactor    float64    `yaml:"short_text_factor"`
	LongTextRunes      int        `yaml:"long_text_runes"`
	LongTextFactor     float64    `yaml:"long_text_factor"`

	// Comparison fallback confidence
	UnverifiableFactor float64 `yaml:"unverifiable_factor"`
	UnverifiableCap    float64 `yaml:"unverifiable_cap"`
	StrongSimilarity   float64 `yaml:"strong_similarity"` // strictly greater than
	StrongMinCount     int     `yaml:"strong_min_count"`
	StrongBoost        float64 `yaml:"strong_boost"`
}

// DefaultPolicy returns the reference constants
func DefaultPolicy() Policy {
	return Policy{
		BaseConfidence:     0.5,
		NoEntityConfidence: 0.4,
		PerEntityBonus:     0.1,
		EntityBonusCap:     0.3,
		DiversityBonus:     [3]float64{0.05, 0.10, 0.15},
		ShortTextRunes:     20,
		ShortTextFactor:    0.8,
		LongTextRunes:      500,
		LongTextFactor:     0.9,

		UnverifiableFactor: 0.7,
		UnverifiableCap:    0.6,
		StrongSimilarity:   0.7,
		StrongMinCount:     2,
		StrongBoost:        1.1,
	}
}

// ExtractionConfidence estimates how well entity extraction covered text.
// Length is counted in runes after trimming surrounding whitespace.
func (p Policy) ExtractionConfidence(text string, entities map[model.EntityType][]string) float64 {
	total := 0
	types := 0
	for _, list := range entities {
		if len(list) > 0 {
			total += len(list)
			types++
		}
	}

	var c float64
	if total == 0 {
		c = p.NoEntityConfidence
	} else {
		c = p.BaseConfidence + min(p.EntityBonusCap, p.PerEntityBonus*float64(total))
		switch {
		case types >= 3:
			c += p.DiversityBonus[2]
		case types == 2:
			c += p.DiversityBonus[1]
		default:
			c += p.DiversityBonus[0]
		}
	}

	n := utf8.RuneCountInString(strings.TrimSpace(text))
	switch {
	case n < p.ShortTextRunes:
		c *= p.ShortTextFactor
	case n > p.LongTextRunes:
		c *= p.LongTextFactor
	}

	return Clamp(c)
}

// FallbackConfidence derives a verdict confidence from retrieval similarities
// when the model did not supply a usable one. It is deterministic in its inputs.
func (p Policy) FallbackConfidence(verdict model.Verdict, similarities []float64) float64 {
	if len(similarities) == 0 {
		return 0
	}

	var sum float64
	strong := 0
	for _, s := range similarities {
		sum += s
		if s > p.StrongSimilarity {
			strong++
		}
	}
	avg := sum / float64(len(similarities))

	if verdict == model.VerdictUnverifiable {
		return Clamp(min(avg*p.UnverifiableFactor, p.UnverifiableCap))
	}

	c := avg
	if strong >= p.StrongMinCount {
		c = min(c*p.StrongBoost, 1)
	}
	return Clamp(c)
}

// Clamp limits x to [0, 1]
func Clamp(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
