package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"sedar-analyst/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the analyst in the terminal",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	// keep logs off the alternate screen
	if logLevel == "" {
		logLevel = "error"
	}
	a, err := loadApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	analyst, err := a.analyst(ctx)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(tui.New(ctx, analyst), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
