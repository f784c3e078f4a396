package commands

import (
	"fmt"

	"github.com/josephlewis42/tinysh/core/vos"
)

// No-op commands.
type NoOpCommand struct {
	Name     string
	Use      string
	Short    string
	Stdout   string
	ExitCode int
}

// Convert the no-op command description to a functioning command.
func (c *NoOpCommand) ToCommand() vos.ProcessFunc {
	return func(virtOS vos.VOS) int {
		cmd := &SimpleCommand{
			Use:   c.Use,
			Short: c.Short,
			// Never bail, even if args are bad.
			NeverBail: true,
		}

		return cmd.Run(virtOS, func() int {
			if c.Stdout != "" {
				w := virtOS.Stdout()
				fmt.Fprintln(w, c.Stdout)
			}

			return c.ExitCode
		})
	}
}

var noOpCommands = []NoOpCommand{
	{
		Name:  "true",
		Use:   "true",
		Short: "Do nothing, successfully.",
	},
	{
		Name:     "false",
		Use:      "false",
		Short:    "Do nothing, unsuccessfully.",
		ExitCode: 1,
	},
	{
		Name:  ":",
		Use:   ": [ARG]...",
		Short: "Null command, expands its arguments and returns success.",
	},
}

func init() {
	for i := range noOpCommands {
		cmd := noOpCommands[i]
		addCmd(cmd.Name, cmd.ToCommand())
	}
}
