// Package core ties the shell pipeline together into interactive and
// scripted sessions.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/fatih/color"
	"github.com/josephlewis42/tinysh/commands"
	"github.com/josephlewis42/tinysh/core/config"
	"github.com/josephlewis42/tinysh/core/interp"
	"github.com/josephlewis42/tinysh/core/ir"
	"github.com/josephlewis42/tinysh/core/syntax"
	"github.com/josephlewis42/tinysh/core/vos"
	"github.com/spf13/afero"
	"golang.org/x/term"
)

const (
	EnvHome     = "HOME"
	EnvOldPWD   = "OLDPWD"
	EnvPWD      = "PWD"
	EnvPath     = "PATH"
	EnvPrompt   = "PS1"
	EnvPrompt2  = "PS2"
	EnvHostname = "HOSTNAME"
	EnvUser     = "USER"
	EnvPosix    = "POSIXLY_CORRECT"

	// Version is reported by -v and help.
	Version = "0.4.0"

	// StatusSyntaxError is returned for input that doesn't parse.
	StatusSyntaxError = 2
)

// TestMode selects the last pipeline stage to run, dumping its output.
type TestMode string

const (
	TestNone     TestMode = ""
	TestLexer    TestMode = "lexer"
	TestParser   TestMode = "parser"
	TestExecutor TestMode = "executor"
)

// ParseTestMode validates a -t argument.
func ParseTestMode(s string) (TestMode, error) {
	switch mode := TestMode(s); mode {
	case TestNone, TestLexer, TestParser, TestExecutor:
		return mode, nil
	default:
		return TestNone, fmt.Errorf("unknown test stage %q, expected lexer, parser or executor", s)
	}
}

// Options configure a Shell.
type Options struct {
	Interactive bool
	Login       bool
	Restricted  bool
	Posix       bool
	Verbose     bool
	TestMode    TestMode
}

type Shell struct {
	Proc    *vos.Proc
	Runner  *interp.Runner
	Config  *config.Configuration
	Options Options

	logger   *log.Logger
	trace    *log.Logger
	header   *color.Color
	history  []string
	readline *readline.Instance
}

// NewShell creates a shell over proc. Programs that aren't builtins are
// started with spawner.
func NewShell(proc *vos.Proc, spawner vos.Spawner, cfg *config.Configuration, opts Options) *Shell {
	if cfg == nil {
		cfg = config.Default()
	}

	s := &Shell{
		Proc:    proc,
		Config:  cfg,
		Options: opts,
	}

	useColor := s.shouldColor()
	errColor := color.New(color.FgRed, color.Bold)
	s.header = color.New(color.FgCyan, color.Bold)
	if useColor {
		errColor.EnableColor()
		s.header.EnableColor()
	} else {
		errColor.DisableColor()
		s.header.DisableColor()
	}

	s.logger = log.New(proc.Stderr(), errColor.Sprint("tinysh:")+" ", 0)
	s.trace = log.New(proc.Stderr(), "[trace] ", 0)

	s.Runner = interp.New(proc, spawner)
	s.Runner.Builtins = s.resolve
	s.Runner.Restricted = opts.Restricted
	if opts.TestMode == TestExecutor {
		s.Runner.Trace = s.trace
	}

	s.Init()
	return s
}

// Init sets up the environment similar to login + source ~/.bashrc.
func (s *Shell) Init() {
	env := s.Proc

	if _, ok := env.LookupEnv(EnvPath); !ok {
		env.Setenv(EnvPath, s.Config.DefaultPath)
	}
	for k, v := range s.Config.Env {
		if _, ok := env.LookupEnv(k); !ok {
			env.Setenv(k, v)
		}
	}
	if _, ok := env.LookupEnv(EnvHostname); !ok {
		if host, err := os.Hostname(); err == nil {
			env.Setenv(EnvHostname, host)
		}
	}
	if s.Options.Posix {
		env.Setenv(EnvPosix, "y")
	}
	env.Setenv(EnvPWD, s.Proc.Getwd())
}

func (s *Shell) shouldColor() bool {
	switch s.Config.Color {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	default:
		return isTerminal(s.Proc.Stderr())
	}
}

func isTerminal(stream interface{}) bool {
	f, ok := stream.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// resolve looks up shell builtins, then the in-process commands.
func (s *Shell) resolve(name string) vos.ProcessFunc {
	if s.Options.Restricted && s.Config.IsRestricted(name) {
		return func(virtOS vos.VOS) int {
			fmt.Fprintf(virtOS.Stderr(), "tinysh: %s: restricted\n", name)
			return 1
		}
	}

	if builtin, ok := AllBuiltins[name]; ok {
		return func(virtOS vos.VOS) int {
			return builtin.Main(s, virtOS)
		}
	}
	return commands.Resolve(name)
}

// Status returns the exit status of the last command.
func (s *Shell) Status() int {
	return s.Runner.Status()
}

// Exited reports whether the session ended with the exit builtin.
func (s *Shell) Exited() bool {
	_, exited := s.Proc.Exited()
	return exited
}

// RunCommand runs src through every stage of the pipeline up to the test
// mode. The error is non-nil only if the shell can't continue.
func (s *Shell) RunCommand(ctx context.Context, src string) (int, error) {
	if s.Options.Verbose {
		fmt.Fprintln(s.Proc.Stderr(), strings.TrimRight(src, "\n"))
	}

	lex := syntax.NewLexer(src, s.logger)
	tokens := lex.Analyze()
	if s.Options.TestMode == TestLexer {
		s.dumpHeader("Tokens")
		for _, tok := range tokens {
			s.trace.Println(tok)
		}
		return s.syntaxStatus(lex.Errors()), nil
	}

	seq, errs := syntax.Parse(tokens, s.logger)
	errs = append(lex.Errors(), errs...)
	if s.Options.TestMode == TestParser {
		s.dumpHeader("Syntax tree")
		if err := syntax.Print(s.Proc.Stderr(), seq); err != nil {
			return 1, err
		}
		return s.syntaxStatus(errs), nil
	}
	if syntax.IsFatal(errs) {
		s.Runner.SetStatus(StatusSyntaxError)
		return StatusSyntaxError, nil
	}

	prog := ir.Lower(seq)
	if s.Options.TestMode == TestExecutor {
		s.dumpHeader("Program")
		if err := ir.Dump(s.Proc.Stderr(), prog); err != nil {
			return 1, err
		}
	}

	return s.Runner.Run(ctx, prog)
}

func (s *Shell) dumpHeader(title string) {
	s.trace.Println(s.header.Sprintf("=== %s ===", title))
}

func (s *Shell) syntaxStatus(errs []error) int {
	if syntax.IsFatal(errs) {
		return StatusSyntaxError
	}
	return 0
}

// RunFile runs the script at path as a single program.
func (s *Shell) RunFile(ctx context.Context, path string) (int, error) {
	src, err := afero.ReadFile(s.Proc.Fs(), s.Proc.Abs(path))
	if err != nil {
		s.logger.Printf("%s: No such file or directory", path)
		return interp.StatusNotFound, nil
	}

	return s.RunCommand(ctx, string(src))
}

// RunLogin runs the login script if one is configured and present.
func (s *Shell) RunLogin(ctx context.Context) error {
	script := s.Config.LoginScriptPath(s.Proc.Getenv(EnvHome))
	if script == "" {
		return nil
	}
	if ok, _ := afero.Exists(s.Proc.Fs(), script); !ok {
		return nil
	}

	_, err := s.RunFile(ctx, script)
	return err
}

// LineReader supplies interactive input.
type LineReader interface {
	// ReadLine returns the next line, io.EOF when input is exhausted or
	// readline.ErrInterrupt if the line was abandoned.
	ReadLine(prompt string) (string, error)
}

type readlineReader struct {
	rl *readline.Instance
}

func (r *readlineReader) ReadLine(prompt string) (string, error) {
	r.rl.SetPrompt(prompt)
	return r.rl.Readline()
}

// RunInteractive reads commands with line editing until input ends or the
// exit builtin runs.
func (s *Shell) RunInteractive(ctx context.Context) (int, error) {
	home := s.Proc.Getenv(EnvHome)
	cfg := &readline.Config{
		Stdin:        readline.NewCancelableStdin(s.Proc.Stdin()),
		Stdout:       s.Proc.Stdout(),
		Stderr:       s.Proc.Stderr(),
		HistoryFile:  s.Config.HistoryPath(home),
		HistoryLimit: s.Config.HistoryLimit,
		FuncIsTerminal: func() bool {
			return isTerminal(s.Proc.Stdin()) && isTerminal(s.Proc.Stdout())
		},
	}
	if err := cfg.Init(); err != nil {
		return 1, err
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		return 1, err
	}
	defer rl.Close()
	s.readline = rl

	return s.RunLines(ctx, &readlineReader{rl: rl})
}

// RunLines runs commands from lines until input ends or the exit builtin
// runs. Errors in a single command don't end the loop.
func (s *Shell) RunLines(ctx context.Context, lines LineReader) (int, error) {
	for !s.Exited() {
		s.reapJobs()

		line, err := s.readCommand(lines)
		switch {
		case err == io.EOF:
			return s.Status(), nil

		case errors.Is(err, readline.ErrInterrupt):
			// Interrupt clears line.
			continue

		case err != nil:
			return s.Status(), err

		case strings.TrimSpace(line) == "":
			continue
		}

		s.history = append(s.history, line)
		if _, err := s.RunCommand(ctx, line); err != nil {
			return s.Status(), err
		}
	}

	return s.Status(), nil
}

// readCommand reads a line, then continuation lines while the input ends
// with an escaped newline or inside a construct more input could complete.
func (s *Shell) readCommand(lines LineReader) (string, error) {
	src, err := lines.ReadLine(s.Prompt())
	if err != nil {
		return "", err
	}

	for {
		sep := "\n"
		switch {
		case needsMore(src):
		case escapedNewline(src):
			src, sep = src[:len(src)-1], ""
		default:
			return src, nil
		}

		next, err := lines.ReadLine(s.continuationPrompt())
		switch {
		case err == io.EOF:
			// The parser reports what's missing.
			return src, nil
		case err != nil:
			return "", err
		}
		src += sep + next
	}
}

func needsMore(src string) bool {
	_, errs := syntax.ParseString(src, nil)
	return syntax.IsIncomplete(errs)
}

// escapedNewline reports whether src ends in an odd run of backslashes.
func escapedNewline(src string) bool {
	trimmed := strings.TrimRight(src, `\`)
	return (len(src)-len(trimmed))%2 == 1
}

func (s *Shell) continuationPrompt() string {
	if prompt, ok := s.Proc.LookupEnv(EnvPrompt2); ok {
		return prompt
	}
	return "> "
}

func (s *Shell) reapJobs() {
	for _, job := range s.Runner.Jobs.Reap() {
		fmt.Fprintf(s.Proc.Stderr(), "[%d] Done (%d)\n", job.ID, job.Status)
	}
}

// Prompt expands the prompt string.
func (s *Shell) Prompt() string {
	prompt, ok := s.Proc.LookupEnv(EnvPrompt)
	if !ok {
		prompt = s.Config.Prompt
	}

	user := s.Proc.Getenv(EnvUser)
	prompt = strings.ReplaceAll(prompt, `\u`, user)
	prompt = strings.ReplaceAll(prompt, `\h`, s.Proc.Getenv(EnvHostname))

	pwd := s.Proc.Getwd()
	if home := s.Proc.Getenv(EnvHome); home != "" && (pwd == home || strings.HasPrefix(pwd, home+"/")) {
		pwd = "~" + strings.TrimPrefix(pwd, home)
	}
	prompt = strings.ReplaceAll(prompt, `\w`, pwd)

	if user == "root" {
		prompt = strings.ReplaceAll(prompt, `\$`, "#")
	} else {
		prompt = strings.ReplaceAll(prompt, `\$`, "$")
	}

	return prompt
}

// History returns the lines entered interactively.
func (s *Shell) History() []string {
	return s.history
}

func (s *Shell) clearHistory() {
	s.history = nil
	if s.readline != nil {
		s.readline.Operation.ResetHistory()
	}
}
