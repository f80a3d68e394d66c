package compare

import (
	"fmt"
	"strings"

	"github.com/ppiankov/factrag/internal/model"
)

// BuildPrompt renders the comparison prompt for claim against evidence.
// Evidence items are numbered from 1 in the order given.
func BuildPrompt(claim string, evidence []model.RetrievedEvidence) string {
	var b strings.Builder

	b.WriteString("You are an expert fact-checker analyzing a claim against verified evidence from an official fact base.\n\n")
	fmt.Fprintf(&b, "**Claim to Verify:**\n%q\n\n", claim)

	b.WriteString("**Retrieved Evidence:**\n")
	b.WriteString(formatEvidence(evidence))

	b.WriteString(`

**Task:**
Compare the claim against the provided evidence and classify it as:
- "true": The claim is supported by the evidence
- "false": The claim contradicts the evidence
- "unverifiable": The evidence is insufficient, unclear, or contradictory

Provide your response in this exact JSON format:
{
    "verdict": "true" or "false" or "unverifiable",
    "confidence": 0.0 to 1.0,
    "explanation": "Clear explanation referencing specific evidence",
    "reasoning": "Step-by-step reasoning process"
}

**Guidelines:**
1. Base your verdict ONLY on the provided evidence
2. Reference specific evidence items in your explanation (e.g., "Evidence 1 states...")
3. Consider similarity scores when weighing evidence (higher scores = more relevant)
4. Be objective and avoid speculation beyond the evidence
5. If evidence is contradictory, unclear, or doesn't directly address the claim, use "unverifiable"
6. For confidence: consider both similarity scores and how well evidence addresses the claim
7. Provide clear reasoning that explains your decision-making process

**Important:** Return ONLY the JSON object, no additional text.`)

	return b.String()
}

func formatEvidence(evidence []model.RetrievedEvidence) string {
	blocks := make([]string, 0, len(evidence))
	for i, e := range evidence {
		blocks = append(blocks, fmt.Sprintf(
			"Evidence %d (Similarity: %.2f):\nClaim: %s\nSource: %s\nDate: %s\nCategory: %s",
			i+1, e.Similarity, e.Fact.Claim, e.Fact.Source, e.Fact.PublicationDate, e.Fact.Category))
	}
	return strings.Join(blocks, "\n\n")
}
