package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/factrag/internal/model"
	"github.com/ppiankov/factrag/internal/worker"
)

var (
	concurrency  int
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Verify multiple claims from a file in parallel",
	Long: `Batch verifies many claims concurrently:
- Read claims from input file (one per line, '#' comments and blank lines skipped)
- Verify claims in parallel with a configurable worker count
- Write one JSON object per claim to stdout, in input order

Example:
  factrag batch claims.txt > results.jsonl
  factrag batch claims.txt --concurrency 8 --timeout 30m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")

	addPipelineFlags(batchCmd)
}

// batchLine is one JSON-lines record
type batchLine struct {
	Claim    string                      `json:"claim"`
	Response *model.VerificationResponse `json:"response,omitempty"`
	Error    string                      `json:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  factrag Batch Verification\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Fact base:    %s\n", cfg.FactBase.Path)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	processor := worker.NewBatchProcessor(a.pipeline, concurrency)

	fmt.Fprintf(os.Stderr, "⚙️  Verifying claims with %d workers...\n\n", concurrency)
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	counts, failures := writeBatchResults(os.Stdout, results)

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:         %d claims\n", len(results))
	fmt.Fprintf(os.Stderr, "  True:          %d\n", counts[model.VerdictTrue])
	fmt.Fprintf(os.Stderr, "  False:         %d\n", counts[model.VerdictFalse])
	fmt.Fprintf(os.Stderr, "  Unverifiable:  %d\n", counts[model.VerdictUnverifiable])
	fmt.Fprintf(os.Stderr, "  Failures:      %d\n", failures)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

// writeBatchResults writes JSON lines to w and tallies verdicts
func writeBatchResults(w io.Writer, results []*worker.VerifyResult) (map[model.Verdict]int, int) {
	enc := json.NewEncoder(w)
	counts := make(map[model.Verdict]int)
	failures := 0

	for _, r := range results {
		line := batchLine{Claim: r.Claim, Response: r.Response}
		if r.Error != nil {
			failures++
			line.Error = r.Error.Error()
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", r.Claim, r.Error)
		} else if r.Response != nil {
			counts[r.Response.Verdict]++
		}
		if err := enc.Encode(line); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write result: %v\n", r.Claim, err)
		}
	}
	return counts, failures
}
