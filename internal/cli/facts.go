package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/factrag/internal/model"
	"github.com/ppiankov/factrag/internal/retrieve"
	"github.com/ppiankov/factrag/internal/validate"
)

var statsFormat string

// factsCmd represents the facts command
var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Inspect and validate the fact base",
}

var factsValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a fact base document",
	Long: `Validate checks a fact base against the schema (unique IDs, categories,
ISO dates, claim length) and warns about weak coverage: fewer than 30 facts,
empty categories, and embeddings that would be recomputed on load.

Exits non-zero only on schema errors.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFactsValidate,
}

var factsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Load the fact base and print retrieval statistics",
	Args:  cobra.NoArgs,
	RunE:  runFactsStats,
}

func init() {
	rootCmd.AddCommand(factsCmd)
	factsCmd.AddCommand(factsValidateCmd)
	factsCmd.AddCommand(factsStatsCmd)

	factsStatsCmd.Flags().StringVar(&statsFormat, "format", "yaml", "output format (yaml, json)")
}

func runFactsValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	path := cfg.FactBase.Path
	if len(args) == 1 {
		path = args[0]
	}

	report, err := validateFile(path, cfg)
	if err != nil {
		return err
	}
	renderReport(os.Stdout, path, report)

	if !report.Valid() {
		return fmt.Errorf("fact base %s has %d schema errors", path, len(report.Issues))
	}
	return nil
}

func validateFile(path string, cfg *model.Config) (*validate.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fact base: %w", err)
	}
	var fb model.FactBase
	if err := json.Unmarshal(data, &fb); err != nil {
		return nil, fmt.Errorf("decode fact base: %w", err)
	}
	return validate.BuildReport(&fb, cfg.Embedding.Dimension, validate.NewAuthorityClassifier(&cfg.Authority)), nil
}

func renderReport(w io.Writer, path string, r *validate.Report) {
	fmt.Fprintf(w, "Fact base:  %s\n", path)
	fmt.Fprintf(w, "Version:    %s\n", r.Version)
	fmt.Fprintf(w, "Facts:      %d\n\n", r.TotalFacts)

	fmt.Fprintf(w, "Categories:\n")
	for _, c := range model.Categories() {
		fmt.Fprintf(w, "  %-16s %d\n", c, r.Categories[c])
	}

	tiers := make([]string, 0, len(r.Authority))
	for t := range r.Authority {
		tiers = append(tiers, t)
	}
	sort.Strings(tiers)
	fmt.Fprintf(w, "\nSource authority:\n")
	for _, t := range tiers {
		fmt.Fprintf(w, "  %-16s %d\n", t, r.Authority[t])
	}
	fmt.Fprintln(w)

	for _, issue := range r.Issues {
		fmt.Fprintf(w, "✗ %s\n", issue)
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "⚠ %s\n", warning)
	}
	if r.Valid() {
		fmt.Fprintf(w, "✓ Schema valid\n")
	}
}

// factsStats is the output of `facts stats`
type factsStats struct {
	Path        string         `json:"path" yaml:"path"`
	Version     string         `json:"version" yaml:"version"`
	LastUpdated string         `json:"last_updated,omitempty" yaml:"last_updated,omitempty"`
	Retrieval   retrieve.Stats `json:"retrieval" yaml:"retrieval"`
}

func runFactsStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	a, err := newRetrievalApp(context.Background(), cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer a.close()

	stats := factsStats{
		Path:        cfg.FactBase.Path,
		Version:     a.store.Version(),
		LastUpdated: a.store.LastUpdated(),
		Retrieval:   a.retriever.Stats(),
	}

	switch statsFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	case "yaml":
		out, err := yaml.Marshal(stats)
		if err != nil {
			return fmt.Errorf("encode stats: %w", err)
		}
		_, err = os.Stdout.Write(out)
		return err
	default:
		return fmt.Errorf("unknown format %q (supported: yaml, json)", statsFormat)
	}
}
