package model

// Metadata keys recorded on every VerificationResponse
const (
	MetaExtractionTime  = "extraction_time"
	MetaRetrievalTime   = "retrieval_time"
	MetaComparisonTime  = "comparison_time"
	MetaTotalTime       = "total_time"
	MetaFactsRetrieved  = "facts_retrieved"
	MetaPipelineVersion = "pipeline_version"
	MetaFactBaseSize    = "fact_base_size"
	MetaExtractionError = "extraction_error"
	MetaRetrievalError  = "retrieval_error"
	MetaComparisonError = "comparison_error"
)

// PipelineVersion is the version tag written into response metadata
const PipelineVersion = "1.0"

// VerificationResponse is the complete result of verifying one statement
type VerificationResponse struct {
	Claim          string            `json:"claim"`
	ExtractedClaim NormalizedClaim   `json:"extracted_claim"`
	Verdict        Verdict           `json:"verdict"`
	Confidence     float64           `json:"confidence"`
	Explanation    string            `json:"explanation"`
	Reasoning      string            `json:"reasoning"`
	Evidence       []EvidenceSummary `json:"evidence"`
	Sources        []string          `json:"sources"`
	Metadata       map[string]any    `json:"metadata"`
}
