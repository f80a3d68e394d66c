package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/factrag/internal/model"
)

var (
	verifyJSON    bool
	verifyTimeout time.Duration
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <claim>",
	Short: "Verify a single claim against the fact base",
	Long: `Verify runs one claim through the full pipeline:
- Normalize the claim and extract entities
- Retrieve the most similar verified facts
- Ask the configured language model to compare claim and evidence
- Print the verdict, confidence, explanation and sources

Example:
  factrag verify "Water boils at 100 degrees Celsius at sea level"
  factrag verify "India was declared polio free in 2014" --json
  factrag verify "..." --llm-provider ollama --llm-model llama3.1:8b`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "print the full response as JSON")
	verifyCmd.Flags().DurationVar(&verifyTimeout, "timeout", 3*time.Minute, "overall timeout")

	addPipelineFlags(verifyCmd)
}

// addPipelineFlags registers flags shared by commands that build the pipeline.
// Viper holds one flag per key, so binding happens when the command runs.
func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().String("llm-provider", "", "LLM provider (openai, anthropic, ollama)")
	cmd.Flags().String("llm-model", "", "LLM model name")
	cmd.Flags().Float64("threshold", 0, "minimum similarity for evidence (0.0-1.0)")
	cmd.Flags().Int("top-k", 0, "maximum evidence items")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		for key, flag := range map[string]string{
			"llm.provider":                   "llm-provider",
			"llm.model":                      "llm-model",
			"retrieval.similarity_threshold": "threshold",
			"retrieval.top_k":                "top-k",
		} {
			if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
				return err
			}
		}
		return nil
	}
}

func runVerify(cmd *cobra.Command, args []string) error {
	claim := strings.Join(args, " ")
	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if verbose {
		fmt.Fprintf(os.Stderr, "⚙️  Loading fact base: %s\n", cfg.FactBase.Path)
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Loaded %d facts (version %s)\n", a.store.Len(), a.store.Version())
		fmt.Fprintf(os.Stderr, "⚙️  Verifying with %s...\n\n", a.generator.Name())
	}

	resp, err := a.pipeline.Verify(ctx, claim)
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}

	if verifyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	renderResponse(os.Stdout, resp)
	return nil
}

// renderResponse prints a human-readable verdict
func renderResponse(w io.Writer, resp *model.VerificationResponse) {
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  Claim: %s\n", resp.Claim)
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n\n")

	fmt.Fprintf(w, "  Verdict:     %s %s\n", verdictMark(resp.Verdict), strings.ToUpper(string(resp.Verdict)))
	fmt.Fprintf(w, "  Confidence:  %.2f\n\n", resp.Confidence)
	fmt.Fprintf(w, "  Explanation:\n    %s\n\n", resp.Explanation)
	fmt.Fprintf(w, "  Reasoning:\n    %s\n\n", resp.Reasoning)

	if len(resp.Evidence) == 0 {
		fmt.Fprintf(w, "  Evidence: none above the similarity threshold\n\n")
	} else {
		fmt.Fprintf(w, "  Evidence:\n")
		for i, e := range resp.Evidence {
			fmt.Fprintf(w, "    %d. [%.3f] %s\n", i+1, e.Similarity, e.Claim)
			fmt.Fprintf(w, "       %s (%s, %s", e.SourceURL, e.PublicationDate, e.Category)
			if e.Authority != "" {
				fmt.Fprintf(w, ", %s", e.Authority)
			}
			fmt.Fprintf(w, ")\n")
		}
		fmt.Fprintln(w)
	}

	for _, key := range []string{model.MetaExtractionError, model.MetaRetrievalError, model.MetaComparisonError} {
		if msg, ok := resp.Metadata[key]; ok {
			fmt.Fprintf(w, "  ✗ %s: %v\n", key, msg)
		}
	}
	if t, ok := resp.Metadata[model.MetaTotalTime]; ok {
		fmt.Fprintf(w, "  Total time: %vs\n", t)
	}
}

func verdictMark(v model.Verdict) string {
	switch v {
	case model.VerdictTrue:
		return "✓"
	case model.VerdictFalse:
		return "✗"
	default:
		return "?"
	}
}
