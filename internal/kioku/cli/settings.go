package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and change runtime settings",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show all settings with their current values",
		Run:   runSettingsList,
	}

	get := &cobra.Command{
		Use:   "get [key]",
		Short: "Show one setting",
		Args:  cobra.ExactArgs(1),
		Run:   runSettingsGet,
	}

	set := &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Change a setting",
		Long:  "Persist a new value for a runtime setting. Unknown keys and unparsable values are rejected.",
		Args:  cobra.ExactArgs(2),
		Run:   runSettingsSet,
	}

	cmd.AddCommand(list, get, set)
	RootCmd.AddCommand(cmd)
}

func runSettingsGet(cmd *cobra.Command, args []string) {
	a, err := loadApp(context.Background())
	if err != nil {
		exitErr("start", err)
	}
	defer a.Close()

	value, ok := a.Settings.Current().ToMap()[args[0]]
	if !ok {
		exitErr("get", fmt.Errorf("unknown setting %q", args[0]))
	}
	fmt.Println(value)
}

func runSettingsList(cmd *cobra.Command, args []string) {
	a, err := loadApp(context.Background())
	if err != nil {
		exitErr("start", err)
	}
	defer a.Close()

	values := a.Settings.Current().ToMap()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-22s %s\n", k, values[k])
	}
}

func runSettingsSet(cmd *cobra.Command, args []string) {
	a, err := loadApp(context.Background())
	if err != nil {
		exitErr("start", err)
	}
	defer a.Close()

	if err := a.Settings.Update(cmd.Context(), args[0], args[1]); err != nil {
		exitErr("set", err)
	}
	fmt.Printf("%s = %s\n", args[0], args[1])
}
