package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Manage vector store collections",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List memory collections",
		Run:   runCollectionsList,
	}

	del := &cobra.Command{
		Use:   "delete [name]",
		Short: "Delete a memory collection",
		Long:  "Delete a collection and every memory in it. The transcript archive is untouched; a reindex can rebuild the collection.",
		Args:  cobra.ExactArgs(1),
		Run:   runCollectionsDelete,
	}

	cmd.AddCommand(list, del)
	RootCmd.AddCommand(cmd)
}

func runCollectionsList(cmd *cobra.Command, args []string) {
	a, err := loadApp(context.Background())
	if err != nil {
		exitErr("start", err)
	}
	defer a.Close()

	names, err := a.Store.ListCollections(cmd.Context())
	if err != nil {
		exitErr("list collections", err)
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func runCollectionsDelete(cmd *cobra.Command, args []string) {
	a, err := loadApp(context.Background())
	if err != nil {
		exitErr("start", err)
	}
	defer a.Close()

	if err := a.Store.DeleteCollection(cmd.Context(), args[0]); err != nil {
		exitErr("delete collection", err)
	}
	fmt.Printf("deleted %s\n", args[0])
}
