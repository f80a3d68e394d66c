package model

import "strings"

// Verdict is the final classification of a claim
type Verdict string

const (
	VerdictTrue         Verdict = "true"
	VerdictFalse        Verdict = "false"
	VerdictUnverifiable Verdict = "unverifiable"
)

// ParseVerdict normalizes s to a known verdict. Unknown values coerce to unverifiable.
func ParseVerdict(s string) Verdict {
	switch v := Verdict(strings.ToLower(strings.TrimSpace(s))); v {
	case VerdictTrue, VerdictFalse, VerdictUnverifiable:
		return v
	default:
		return VerdictUnverifiable
	}
}

// VerificationVerdict is the comparator output
type VerificationVerdict struct {
	Verdict     Verdict `json:"verdict"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
	Reasoning   string  `json:"reasoning"`
}
