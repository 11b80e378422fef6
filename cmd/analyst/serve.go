package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sedar-analyst/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve POST /query over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	analyst, err := a.analyst(ctx)
	if err != nil {
		return err
	}
	addr := serveAddr
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	return server.New(analyst, a.registry, a.logger).Run(ctx, addr)
}
