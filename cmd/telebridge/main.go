package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/telebridge/cmd/telebridge/internal/serve"
)

func NewTelebridgeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "telebridge",
		Short:   "Bidirectional Telegram to channel-host translation bridge",
		Example: "telebridge serve --config telebridge.json",
	}

	cmd.AddCommand(
		serve.NewServeCommand(),
	)

	return cmd
}

func main() {
	cmd := NewTelebridgeCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
