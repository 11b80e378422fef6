package main

import (
	"github.com/spf13/cobra"
)

var (
	cfgPath  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "analyst",
	Short: "Financial analyst agent for SEDAR+ filings",
	Long: `Ingests SEDAR+ filings into a vector index and answers questions about
them with a reasoning agent that can search the filing, compute ratios and
check live stock prices.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/sedar-analyst/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}
