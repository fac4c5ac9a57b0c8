package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reindex [entity]",
		Short: "Rebuild an entity's memories from the transcript archive",
		Long: "Replay the archived transcripts for an entity through the chunker and\n" +
			"embedder, skipping chunks the vector store already holds. Safe to run\n" +
			"repeatedly; interrupting keeps everything written so far.",
		Args: cobra.ExactArgs(1),
		Run:  runReindex,
	}

	RootCmd.AddCommand(cmd)
}

func runReindex(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		exitErr("start", err)
	}
	defer a.Close()

	report, err := a.Reindex(ctx, args[0])
	if err != nil {
		exitErr("reindex", err)
	}

	b, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(b))
}
