package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the memory daemon",
		Long:  "Connect to the Matrix homeserver and capture conversation turns in the configured rooms until interrupted.",
		Run:   runDaemon,
	}

	RootCmd.AddCommand(cmd)
}

func runDaemon(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		exitErr("start", err)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		exitErr("run", err)
	}
}
