package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/josephlewis42/tinysh/commands"
	"github.com/josephlewis42/tinysh/core/vos"
)

// AllBuiltins holds a list of all registered shell builtins
var AllBuiltins = make(map[string]ShellBuiltin)

// ShellBuiltin is a command that needs the state of the shell, not just the
// process image.
type ShellBuiltin interface {
	Main(s *Shell, virtOS vos.VOS) int
}

type ShellBuiltinFunc func(s *Shell, virtOS vos.VOS) int

func (f ShellBuiltinFunc) Main(s *Shell, virtOS vos.VOS) int {
	return f(s, virtOS)
}

var _ ShellBuiltin = (ShellBuiltinFunc)(nil)

// restrictedVars can't be changed by restricted shells.
var restrictedVars = map[string]bool{
	"PATH":  true,
	"SHELL": true,
	"ENV":   true,
}

func Unset(s *Shell, virtOS vos.VOS) int {
	cmd := &commands.SimpleCommand{
		Use:   "unset [-fv] [NAME...]",
		Short: "Unset shell values and functions.",
	}
	cmd.Flags().Bool('f', "treat NAME as a function")
	cmd.Flags().Bool('v', "treat NAME as a variable")

	return cmd.Run(virtOS, func() int {
		status := 0
		for _, name := range cmd.Flags().Args() {
			if s.Options.Restricted && restrictedVars[name] {
				fmt.Fprintf(virtOS.Stderr(), "unset: %s: readonly variable\n", name)
				status = 1
				continue
			}
			virtOS.Unsetenv(name)
		}
		return status
	})
}

func Export(s *Shell, virtOS vos.VOS) int {
	cmd := &commands.SimpleCommand{
		Use:   "export [-p] [NAME[=VALUE]...]",
		Short: "Set export attribute for shell variables.",
	}
	cmd.Flags().Bool('p', "display all exported variables")

	return cmd.Run(virtOS, func() int {
		args := cmd.Flags().Args()
		if len(args) == 0 {
			for _, kv := range virtOS.Environ() {
				name, value, _ := strings.Cut(kv, "=")
				fmt.Fprintf(virtOS.Stdout(), "export %s=%q\n", name, value)
			}
			return 0
		}

		status := 0
		for _, arg := range args {
			name, value, hasValue := strings.Cut(arg, "=")
			if !hasValue {
				// Every variable is already exported.
				continue
			}

			if s.Options.Restricted && restrictedVars[name] {
				fmt.Fprintf(virtOS.Stderr(), "export: %s: readonly variable\n", name)
				status = 1
				continue
			}
			if err := virtOS.Setenv(name, value); err != nil {
				fmt.Fprintf(virtOS.Stderr(), "export: `%s': not a valid identifier\n", arg)
				status = 1
			}
		}
		return status
	})
}

// Cd is the cd shell builtin
func Cd(s *Shell, virtOS vos.VOS) int {
	cmd := &commands.SimpleCommand{
		Use:   "cd [DIR]",
		Short: "Change the shell working directory.",
	}

	return cmd.Run(virtOS, func() int {
		args := cmd.Flags().Args()
		var dir string
		switch len(args) {
		case 0:
			dir = virtOS.Getenv(EnvHome)
		case 1:
			dir = args[0]
		default:
			fmt.Fprintln(virtOS.Stderr(), "cd: too many arguments")
			return 1
		}

		previous := dir == "-"
		if previous {
			dir = virtOS.Getenv(EnvOldPWD)
			if dir == "" {
				fmt.Fprintln(virtOS.Stderr(), "cd: OLDPWD not set")
				return 1
			}
		}

		old := virtOS.Getwd()
		if err := virtOS.Chdir(dir); err != nil {
			fmt.Fprintf(virtOS.Stderr(), "cd: %v\n", err)
			return 1
		}
		virtOS.Setenv(EnvOldPWD, old)

		if previous {
			fmt.Fprintln(virtOS.Stdout(), virtOS.Getwd())
		}
		return 0
	})
}

// Exit quits the shell
func Exit(s *Shell, virtOS vos.VOS) int {
	args := virtOS.Args()[1:]

	code := s.Status()
	switch {
	case len(args) > 1:
		fmt.Fprintln(virtOS.Stderr(), "exit: too many arguments")
		return 1
	case len(args) == 1:
		n, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintf(virtOS.Stderr(), "exit: %s: numeric argument required\n", args[0])
			n = StatusSyntaxError
		}
		code = n & 0xff
	}

	virtOS.Exit(code)
	return code
}

func History(s *Shell, virtOS vos.VOS) int {
	cmd := &commands.SimpleCommand{
		Use:   "history [-c]",
		Short: "Display or manipulate the history list.",
	}
	clear := cmd.Flags().Bool('c', "clear the history by deleting all entries")

	return cmd.Run(virtOS, func() int {
		if *clear {
			s.clearHistory()
			return 0
		}

		for i, line := range s.History() {
			fmt.Fprintf(virtOS.Stdout(), "% 5d  %s\n", i+1, line)
		}
		return 0
	})
}

func Help(s *Shell, virtOS vos.VOS) int {
	w := virtOS.Stdout()
	fmt.Fprintf(w, "tinysh version %s\n", Version)
	fmt.Fprintln(w, "These shell commands are defined internally.  Type `help' to see this list.")
	fmt.Fprintln(w, "Use `NAME --help' to find out more about the command `NAME'.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Builtins:")
	fmt.Fprintln(w)

	fmt.Fprintln(w, strings.Join(BuiltinNames(), "\n"))

	return 0
}

// Type describes how each name would be interpreted as a command.
func Type(s *Shell, virtOS vos.VOS) int {
	cmd := &commands.SimpleCommand{
		Use:   "type NAME...",
		Short: "Display information about command type.",
	}

	return cmd.Run(virtOS, func() int {
		status := 0
		for _, name := range cmd.Flags().Args() {
			_, isBuiltin := AllBuiltins[name]
			switch {
			case isBuiltin || commands.Resolve(name) != nil:
				fmt.Fprintf(virtOS.Stdout(), "%s is a shell builtin\n", name)
			default:
				path, err := vos.LookPath(virtOS, name)
				if err != nil {
					fmt.Fprintf(virtOS.Stderr(), "type: %s: not found\n", name)
					status = 1
					continue
				}
				fmt.Fprintf(virtOS.Stdout(), "%s is %s\n", name, path)
			}
		}
		return status
	})
}

// Wait waits for background jobs and returns the status of the last one.
func Wait(s *Shell, virtOS vos.VOS) int {
	cmd := &commands.SimpleCommand{
		Use:   "wait [ID...]",
		Short: "Wait for job completion and return exit status.",
	}

	return cmd.Run(virtOS, func() int {
		jobs := s.Runner.Jobs
		args := cmd.Flags().Args()
		if len(args) == 0 {
			jobs.WaitAll()
			return 0
		}

		status := 0
		for _, arg := range args {
			id, err := strconv.Atoi(strings.TrimPrefix(arg, "%"))
			if err != nil {
				fmt.Fprintf(virtOS.Stderr(), "wait: `%s': not a valid job id\n", arg)
				status = 2
				continue
			}

			code, ok := jobs.Wait(id)
			if !ok {
				fmt.Fprintf(virtOS.Stderr(), "wait: %%%d: no such job\n", id)
			}
			status = code
		}
		return status
	})
}

// BuiltinNames lists the shell builtins and in-process commands.
func BuiltinNames() []string {
	var out []string
	for name := range AllBuiltins {
		out = append(out, name)
	}
	for _, entry := range commands.ListBuiltinCommands() {
		out = append(out, entry.Name)
	}
	sort.Strings(out)
	return out
}

func init() {
	AllBuiltins["unset"] = ShellBuiltinFunc(Unset)
	AllBuiltins["export"] = ShellBuiltinFunc(Export)
	AllBuiltins["cd"] = ShellBuiltinFunc(Cd)
	AllBuiltins["exit"] = ShellBuiltinFunc(Exit)
	AllBuiltins["history"] = ShellBuiltinFunc(History)
	AllBuiltins["help"] = ShellBuiltinFunc(Help)
	AllBuiltins["type"] = ShellBuiltinFunc(Type)
	AllBuiltins["wait"] = ShellBuiltinFunc(Wait)
}
