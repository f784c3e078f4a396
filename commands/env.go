package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/josephlewis42/tinysh/core/vos"
)

// Env implements the POSIX env command without running a utility.
//
// https://pubs.opengroup.org/onlinepubs/9699919799.2018edition/utilities/env.html
func Env(virtOS vos.VOS) int {
	cmd := &SimpleCommand{
		Use:   "env [NAME=VALUE]...",
		Short: "Print the environment, with optional additions.",
	}
	ignore := cmd.Flags().Bool('i', "start with an empty environment")

	return cmd.Run(virtOS, func() int {
		env := vos.NewMapEnvFrom(virtOS)
		if *ignore {
			env = vos.NewMapEnv()
		}

		for _, arg := range cmd.Flags().Args() {
			if !strings.Contains(arg, "=") {
				fmt.Fprintf(virtOS.Stderr(), "env: %s: running utilities is not supported\n", arg)
				return 125
			}
			if err := vos.CopyEnv(env, []string{arg}); err != nil {
				fmt.Fprintf(virtOS.Stderr(), "env: %v\n", err)
				return 125
			}
		}

		vars := env.Environ()
		sort.Strings(vars)
		for _, envDef := range vars {
			fmt.Fprintln(virtOS.Stdout(), envDef)
		}

		return 0
	})
}

var _ vos.ProcessFunc = Env

func init() {
	addCmd("env", Env)
}
