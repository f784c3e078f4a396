// Package commands holds the programs tinysh runs in-process rather than
// looking them up on the PATH.
package commands

import (
	"fmt"
	"io"
	"sort"

	"github.com/josephlewis42/tinysh/core/vos"
	getopt "github.com/pborman/getopt/v2"
)

// AllCommands holds a list of all registered commands
var AllCommands = make(map[string]vos.ProcessFunc)

// addCmd registers a command, it panics if the name is already taken.
func addCmd(name string, cmd vos.ProcessFunc) {
	if _, ok := AllCommands[name]; ok {
		panic(fmt.Sprintf("command %q registered twice", name))
	}
	AllCommands[name] = cmd
}

// Resolve implements vos.ProcessResolver over AllCommands.
func Resolve(name string) vos.ProcessFunc {
	return AllCommands[name]
}

var _ vos.ProcessResolver = Resolve

// CommandEntry describes a registered command.
type CommandEntry struct {
	Name string
	Proc vos.ProcessFunc
}

// ListBuiltinCommands returns all registered commands sorted by name.
func ListBuiltinCommands() []CommandEntry {
	var out []CommandEntry
	for name, proc := range AllCommands {
		out = append(out, CommandEntry{Name: name, Proc: proc})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

type SimpleCommand struct {
	// Use holds a one line usage string
	Use string
	// Short holds a sone line description of the command.
	Short string
	// ShowHelp sets whether help is displayed or not.
	// If this is non-nil when Run() is called, then the default help flag isn't
	// added.
	ShowHelp *bool
	// NeverBail skips interacting with stdout/stderr on failure and
	// always runs the callback.
	NeverBail bool

	flags *getopt.Set
}

// Flags gets the command's flag set.
func (s *SimpleCommand) Flags() *getopt.Set {
	if s.flags == nil {
		s.flags = getopt.New()
	}

	return s.flags
}

// PrintHelp writes help for the command to the given writer.
func (s *SimpleCommand) PrintHelp(w io.Writer) {
	fmt.Fprint(w, "usage: ")
	fmt.Fprintln(w, s.Use)
	fmt.Fprintln(w, s.Short)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	s.Flags().PrintOptions(w)
}

// Run the command, if flag parsing was succcessful call the callback.
func (s *SimpleCommand) Run(virtOS vos.VOS, callback func() int) int {
	opts := s.Flags()

	// Add help flag if not overridden.
	if s.ShowHelp == nil {
		s.ShowHelp = opts.BoolLong("help", 'h', "show this help and exit")
	}

	err := opts.Getopt(virtOS.Args(), nil)
	if err != nil && !s.NeverBail {
		fmt.Fprintf(virtOS.Stderr(), "error: %s\n\n", err)

		s.PrintHelp(virtOS.Stderr())
		return 2
	}

	if *s.ShowHelp {
		s.PrintHelp(virtOS.Stdout())
		return 0
	}

	return callback()
}
