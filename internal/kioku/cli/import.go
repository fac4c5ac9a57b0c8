package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [entity] [session] [file]",
		Short: "Import a transcript from JSONL",
		Long: "Import a transcript into the archive, one JSON turn per line. Use \"-\"\n" +
			"to read from stdin. Imported turns become visible to reindex.",
		Args: cobra.ExactArgs(3),
		Run:  runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	entity, session, path := args[0], args[1], args[2]

	in := os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			exitErr("open file", err)
		}
		defer f.Close()
		in = f
	}

	a, err := loadApp(context.Background())
	if err != nil {
		exitErr("start", err)
	}
	defer a.Close()

	count, err := a.Archive.ImportJSONL(cmd.Context(), entity, session, in)
	if err != nil {
		exitErr("import", err)
	}
	fmt.Printf(`{"ok":true,"imported":%d}`+"\n", count)
}
