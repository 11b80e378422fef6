package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	queryTrace bool
	queryJSON  bool
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Answer one question about the ingested filings",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().BoolVar(&queryTrace, "trace", false, "print the reasoning trace")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print the answer and trace as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	analyst, err := a.analyst(ctx)
	if err != nil {
		return err
	}
	res, err := analyst.QueryDetailed(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if queryJSON {
		data, err := json.MarshalIndent(map[string]any{
			"response": res.Answer,
			"outcome":  res.Outcome,
			"trace":    res.Trace,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	if queryTrace {
		fmt.Fprintln(out, res.Trace.String())
	}
	fmt.Fprintln(out, res.Answer)
	return nil
}
