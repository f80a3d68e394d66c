package compare

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/factrag/internal/llm"
	"github.com/ppiankov/factrag/internal/model"
)

// ErrResponseParse marks generated output that is not a usable verdict envelope.
// It never leaves the comparator.
var ErrResponseParse = errors.New("response parse failed")

const maxRawExplanation = 500

// envelope is the JSON object the model is asked to return.
// Pointers distinguish absent fields from empty ones.
type envelope struct {
	Verdict     *string         `json:"verdict"`
	Confidence  json.RawMessage `json:"confidence"`
	Explanation *string         `json:"explanation"`
	Reasoning   *string         `json:"reasoning"`
}

// parsed is a structurally valid envelope. hasConfidence is false when the
// confidence was absent, null, or not a number.
type parsed struct {
	verdict       model.Verdict
	confidence    float64
	hasConfidence bool
	explanation   string
	reasoning     string
	rawVerdict    string
}

func parseResponse(raw string) (parsed, error) {
	body := llm.StripCodeFence(raw)

	// Unmarshal rejects anything after the object
	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return parsed{}, fmt.Errorf("%w: invalid JSON: %w", ErrResponseParse, err)
	}

	switch {
	case env.Verdict == nil:
		return parsed{}, fmt.Errorf("%w: missing 'verdict' field", ErrResponseParse)
	case env.Explanation == nil || strings.TrimSpace(*env.Explanation) == "":
		return parsed{}, fmt.Errorf("%w: missing 'explanation' field", ErrResponseParse)
	case env.Reasoning == nil || strings.TrimSpace(*env.Reasoning) == "":
		return parsed{}, fmt.Errorf("%w: missing 'reasoning' field", ErrResponseParse)
	}

	p := parsed{
		verdict:     model.ParseVerdict(*env.Verdict),
		rawVerdict:  *env.Verdict,
		explanation: *env.Explanation,
		reasoning:   *env.Reasoning,
	}
	p.confidence, p.hasConfidence = parseConfidence(env.Confidence)
	return p, nil
}

// parseConfidence accepts a JSON number or a numeric string
func parseConfidence(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// truncateRunes cuts s to at most n runes
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
