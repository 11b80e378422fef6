package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var ingestReset bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Chunk, embed and index filings",
	Long: `Loads .txt and .md filings from the given files, directories or glob
patterns (default: the configured documents directory) and appends them to the
vector collection. Re-ingesting the same files adds duplicates; pass --reset to
rebuild the collection from scratch.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "drop the collection before ingesting")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ing, err := a.ingestor()
	if err != nil {
		return err
	}
	paths := args
	if len(paths) == 0 {
		paths = []string{a.cfg.Ingest.DocumentsDir}
	}
	report, err := ing.Ingest(ctx, paths, ingestReset)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ingested %d document(s) into %q: %d chunks (collection now holds %d, model %s, dim %d) in %s\n",
		len(report.Documents), report.Collection.Name, report.Chunks,
		report.Collection.Count, report.Collection.Model, report.Collection.Dimension,
		report.Duration.Round(time.Millisecond))
	for _, d := range report.Documents {
		fmt.Fprintf(out, "\n%s (%d chunks)\n", d.Path, d.Chunks)
		if d.Summary != "" {
			fmt.Fprintf(out, "  %s\n", d.Summary)
		}
	}
	return nil
}
