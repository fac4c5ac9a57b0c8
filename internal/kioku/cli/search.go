package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [entity] [query...]",
		Short: "Search an entity's memories",
		Long:  "Embed the query and print the closest stored memories with their scores.",
		Args:  cobra.MinimumNArgs(2),
		Run:   runSearch,
	}

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	entity := args[0]
	query := strings.Join(args[1:], " ")

	a, err := loadApp(context.Background())
	if err != nil {
		exitErr("start", err)
	}
	defer a.Close()

	results := a.Search(cmd.Context(), entity, query)
	if len(results) == 0 {
		fmt.Println("no results")
		return
	}

	for _, r := range results {
		fmt.Printf("%3d%%  [%s]  %s\n", int(r.Score*100), r.Payload.Entity, r.Payload.Text)
	}
}
