package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/josephlewis42/tinysh/core"
	"github.com/josephlewis42/tinysh/core/config"
	"github.com/josephlewis42/tinysh/core/vos"
	"github.com/spf13/cobra"
)

// StatusUsage is the exit status for invalid flags.
const StatusUsage = 2

var (
	cfgPath string

	flagCommand     string
	flagInteractive bool
	flagLogin       bool
	flagRestricted  bool
	flagPosix       bool
	flagVerbose     bool
	flagTest        string

	exitStatus int
)

// statusError is an error that ends the program with a specific status.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string {
	return e.err.Error()
}

func (e *statusError) Unwrap() error {
	return e.err
}

func usageErrorf(format string, args ...interface{}) error {
	return &statusError{status: StatusUsage, err: fmt.Errorf(format, args...)}
}

// rootCmd runs the shell
var rootCmd = &cobra.Command{
	Use:   "tinysh [flags] [script [args...]]",
	Short: "A small POSIX-style shell",
	Long: `tinysh reads commands from a string (-c), a script file or the
terminal, and runs them.

With no command or script the shell is interactive.`,
	Version:      core.Version,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := runShell(cmd, args)
		exitStatus = status
		return err
	},
}

func shellOptions(cmd *cobra.Command, args []string) (core.Options, error) {
	sources := 0
	if cmd.Flags().Changed("command") {
		sources++
	}
	if flagInteractive {
		sources++
	}
	if len(args) > 0 {
		sources++
	}
	if sources > 1 {
		return core.Options{}, usageErrorf("only one of -c, -i or a script may be given")
	}

	mode, err := core.ParseTestMode(flagTest)
	if err != nil {
		return core.Options{}, &statusError{status: StatusUsage, err: err}
	}

	return core.Options{
		Interactive: sources == 0 || flagInteractive,
		Login:       flagLogin,
		Restricted:  flagRestricted,
		Posix:       flagPosix,
		Verbose:     flagVerbose,
		TestMode:    mode,
	}, nil
}

func runShell(cmd *cobra.Command, args []string) (int, error) {
	opts, err := shellOptions(cmd, args)
	if err != nil {
		return StatusUsage, err
	}

	logger := log.New(cmd.ErrOrStderr(), "tinysh: ", 0)
	cfg, err := config.LoadOrDefault(cfgPath, logger)
	if err != nil {
		return 1, fmt.Errorf("couldn't load config: %w", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		return 1, err
	}

	argv := args
	if len(argv) == 0 {
		argv = []string{cmd.Root().Name()}
	}

	proc := vos.NewProc(&vos.ProcAttr{
		Dir:   wd,
		Env:   os.Environ(),
		Files: vos.NewOSIO(),
		Args:  argv,
	})

	ctx := cmd.Context()
	shell := core.NewShell(proc, vos.OSSpawner{}, cfg, opts)

	if opts.Login {
		if err := shell.RunLogin(ctx); err != nil {
			return 1, err
		}
		if shell.Exited() {
			return shell.Status(), nil
		}
	}

	switch {
	case cmd.Flags().Changed("command"):
		return shell.RunCommand(ctx, flagCommand)
	case len(args) > 0:
		return shell.RunFile(ctx, args[0])
	default:
		return shell.RunInteractive(ctx)
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.ExecuteContext(context.Background())

	var se *statusError
	switch {
	case errors.As(err, &se):
		os.Exit(se.status)
	case err != nil:
		os.Exit(1)
	}
	os.Exit(exitStatus)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "configuration directory, built in defaults if empty")

	flags := rootCmd.Flags()
	// Everything after the script name belongs to the script.
	flags.SetInterspersed(false)
	flags.StringVarP(&flagCommand, "command", "c", "", "run a single command string")
	flags.BoolVarP(&flagInteractive, "interactive", "i", false, "force an interactive shell")
	flags.BoolVarP(&flagLogin, "login", "l", false, "run the login script first")
	flags.BoolVarP(&flagRestricted, "restricted", "r", false, "restricted shell")
	flags.BoolVarP(&flagPosix, "posix", "p", false, "POSIX mode, sets POSIXLY_CORRECT")
	flags.StringVarP(&flagTest, "test", "t", "", "dump the output of a stage: lexer, parser or executor")
	flags.BoolVarP(&flagVerbose, "verbose", "V", false, "print input lines as they are read")

	rootCmd.SetVersionTemplate("tinysh version {{.Version}}\n")
}
