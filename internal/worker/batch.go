package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/factrag/internal/model"
)

// Verifier verifies a single claim
type Verifier interface {
	Verify(ctx context.Context, text string) (*model.VerificationResponse, error)
}

// VerifyJob verifies one claim
type VerifyJob struct {
	Claim    string
	Verifier Verifier
}

// Execute executes the verification job
func (j *VerifyJob) Execute(ctx context.Context) Result {
	resp, err := j.Verifier.Verify(ctx, j.Claim)
	if err != nil {
		return &VerifyResult{Claim: j.Claim, Error: err}
	}
	return &VerifyResult{Claim: j.Claim, Response: resp}
}

// VerifyResult represents the result of a verification job
type VerifyResult struct {
	Claim    string
	Response *model.VerificationResponse
	Error    error
}

// GetError returns the error from the verification result
func (r *VerifyResult) GetError() error {
	return r.Error
}

// BatchProcessor verifies multiple claims concurrently
type BatchProcessor struct {
	verifier    Verifier
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(verifier Verifier, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		verifier:    verifier,
		concurrency: concurrency,
	}
}

// ProcessClaims verifies claims concurrently. Results are in input order.
func (b *BatchProcessor) ProcessClaims(ctx context.Context, claims []string) []*VerifyResult {
	if len(claims) == 0 {
		return []*VerifyResult{}
	}

	jobs := make([]Job, len(claims))
	for i, claim := range claims {
		jobs[i] = &VerifyJob{Claim: claim, Verifier: b.verifier}
	}

	results := Run(ctx, b.concurrency, jobs)

	out := make([]*VerifyResult, len(results))
	for i, result := range results {
		if result == nil {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			out[i] = &VerifyResult{Claim: claims[i], Error: err}
			continue
		}
		out[i] = result.(*VerifyResult)
	}

	return out
}

// ProcessFile reads claims from a file and verifies them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*VerifyResult, error) {
	claims, err := ReadClaimsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read claims: %w", err)
	}

	return b.ProcessClaims(ctx, claims), nil
}

// ReadClaimsFromFile reads claims from a file (one per line)
func ReadClaimsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var claims []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			claims = append(claims, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return claims, nil
}
