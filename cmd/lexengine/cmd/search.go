package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/clearlaw/lexengine/internal/corpus"
	"github.com/clearlaw/lexengine/internal/pipeline"
)

// newSearchCmd creates the search command.
func newSearchCmd() *cobra.Command {
	var (
		topK       int
		minScore   float64
		asAt       string
		segment    string
		jsonOutput bool
		noCache    bool
		noExpand   bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve legal provisions for a question",
		Long: `Run the full retrieval pipeline for a legal question and print the
ranked provisions with their confidence scores.

Examples:
  lexengine search "What does section 12C of the Labour Act say?"
  lexengine search "minimum wage provisions as at 2005" --top-k 5
  lexengine search "termination of employment" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := buildApp(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer a.close()

			opts := pipeline.Options{
				TopK:          topK,
				MinScore:      minScore,
				Segment:       segment,
				SkipCache:     noCache,
				SkipExpansion: noExpand,
			}
			if asAt != "" {
				date, err := time.Parse("2006-01-02", asAt)
				if err != nil {
					return fmt.Errorf("invalid --as-at date %q, want YYYY-MM-DD", asAt)
				}
				opts.AsAtDate = date
			}

			rs, err := a.engine.Retrieve(cmd.Context(), strings.Join(args, " "), opts)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rs)
			}
			printResults(cmd, rs)
			return nil
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 0, "Result count (default: adapts to query complexity)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Drop results below this confidence")
	cmd.Flags().StringVar(&asAt, "as-at", "", "Only statutes in force as at this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&segment, "segment", "", "Corpus segment for cache partitioning")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the result set as JSON")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the semantic cache")
	cmd.Flags().BoolVar(&noExpand, "no-expand", false, "Keep chunk-sized excerpts instead of full documents")

	return cmd
}

const excerptLen = 300

func printResults(cmd *cobra.Command, rs *corpus.ResultSet) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d results (confidence %.2f)\n\n", len(rs.Results), rs.Confidence)

	for i, r := range rs.Results {
		title := ""
		if r.Parent != nil {
			title = r.Parent.Title
		} else if r.Chunk != nil {
			title = r.Chunk.Meta("title")
		}

		cite := ""
		if r.Chunk != nil {
			switch {
			case r.Chunk.Section != "" && r.Chunk.Chapter != "":
				cite = fmt.Sprintf(" (s %s, ch %s)", r.Chunk.Section, r.Chunk.Chapter)
			case r.Chunk.Chapter != "":
				cite = fmt.Sprintf(" (ch %s)", r.Chunk.Chapter)
			}
		}

		fmt.Fprintf(out, "%2d. [%.2f] %s%s\n", i+1, r.Confidence, title, cite)

		text := ""
		if r.Chunk != nil {
			text = r.Chunk.Text
		}
		if len(text) > excerptLen {
			text = text[:excerptLen] + "..."
		}
		for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
			fmt.Fprintf(out, "    %s\n", line)
		}
		fmt.Fprintln(out)
	}
}
