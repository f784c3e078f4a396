package cmd

import (
	"fmt"

	"github.com/josephlewis42/tinysh/core"
	"github.com/spf13/cobra"
)

// builtinsCmd lists the commands that run inside the shell
var builtinsCmd = &cobra.Command{
	Use:   "builtins",
	Short: "Show the builtin commands of the shell.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range core.BuiltinNames() {
			kind := "command"
			if _, ok := core.AllBuiltins[name]; ok {
				kind = "shell"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s:%s\n", kind, name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(builtinsCmd)
}
