// Package cli implements the kioku CLI commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bdobrica/kioku/internal/kioku/app"
	"github.com/bdobrica/kioku/internal/kioku/config"
	"github.com/bdobrica/kioku/internal/kioku/observability"
)

var configPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "kioku",
	Short: "Long-term conversational memory for chat entities",
	Long: "kioku captures conversation turns, chunks them into memories, and\n" +
		"retrieves them by semantic similarity when the conversation comes back\n" +
		"around. SQLite for transcripts and settings, a vector store for recall.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (default: $KIOKU_CONFIG or ./kioku.yaml)")
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("KIOKU_CONFIG"); env != "" {
		return env
	}
	return "./kioku.yaml"
}

// loadApp loads configuration, configures logging, and assembles the
// application.
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, err
	}
	observability.Setup(cfg.Log.Level, cfg.Log.Format)
	return app.New(ctx, cfg)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
