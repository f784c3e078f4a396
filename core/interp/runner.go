// Package interp executes lowered shell programs.
package interp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"

	"github.com/josephlewis42/tinysh/core/ir"
	"github.com/josephlewis42/tinysh/core/vos"
)

// ErrSpawn is returned when a process couldn't be created. The shell can't
// continue after it.
var ErrSpawn = errors.New("process creation failed")

// Exit statuses for commands that never ran.
const (
	StatusNotExecutable = 126
	StatusNotFound      = 127
)

// restrictedVars can't be assigned in restricted mode.
var restrictedVars = map[string]bool{
	"PATH":  true,
	"SHELL": true,
	"ENV":   true,
}

// Runner executes programs against a process image. A Runner keeps the exit
// status of the last command between calls to Run.
type Runner struct {
	// Name prefixes diagnostics.
	Name string
	// Proc is the process image commands run against.
	Proc *vos.Proc
	// Builtins resolves names to in-process programs that run before any
	// lookup on the PATH.
	Builtins vos.ProcessResolver
	// Spawner starts everything else.
	Spawner vos.Spawner
	// Jobs tracks background jobs.
	Jobs *Jobs
	// Restricted disables cd, commands with a slash, output redirections
	// and changes to PATH, SHELL and ENV.
	Restricted bool
	// Trace, if set, logs every instruction as it runs.
	Trace *log.Logger

	last int
}

// New creates a Runner for proc that starts programs with spawner.
func New(proc *vos.Proc, spawner vos.Spawner) *Runner {
	return &Runner{
		Name:    "tinysh",
		Proc:    proc,
		Spawner: spawner,
		Jobs:    NewJobs(),
	}
}

// Status returns the exit status of the last command.
func (r *Runner) Status() int {
	return r.last
}

// SetStatus overrides the exit status of the last command, used for
// failures before a program runs.
func (r *Runner) SetStatus(code int) {
	r.last = code
}

// fork creates a runner for a child image sharing the configuration.
func (r *Runner) fork(proc *vos.Proc) *Runner {
	child := *r
	child.Proc = proc
	return &child
}

func (r *Runner) errorf(proc *vos.Proc, format string, args ...interface{}) {
	fmt.Fprintf(proc.Stderr(), "%s: %s\n", r.Name, fmt.Sprintf(format, args...))
}

// frame holds per-program execution state.
type frame struct {
	prog     *ir.Program
	expanded map[int]expansion
}

type expansion struct {
	argv   []string
	failed bool
}

// Run executes prog and returns the exit status of the last command. The
// error is non-nil only if a process couldn't be created or ctx ended.
func (r *Runner) Run(ctx context.Context, prog *ir.Program) (int, error) {
	f := &frame{prog: prog, expanded: make(map[int]expansion)}

	for pc := 0; pc < len(prog.Instrs); pc++ {
		if code, exited := r.Proc.Exited(); exited {
			r.last = code
			return code, nil
		}
		if err := ctx.Err(); err != nil {
			return r.last, err
		}

		in := prog.Instrs[pc]
		if r.Trace != nil {
			r.Trace.Printf("%d %s %d %d", pc, in.Op, in.Arg0, in.Arg1)
		}

		var err error
		switch in.Op {
		case ir.ExpandWords:
			err = r.expandWords(ctx, f, in.Arg0)
		case ir.Exec:
			err = r.exec(ctx, f, in.Arg0, in.Arg1)
		case ir.GetVar:
			err = r.getVar(ctx, f, in.Arg0)
		case ir.SetVar:
			err = r.setVar(ctx, f, in.Arg0, in.Arg1)
		case ir.JumpIfNonZero:
			if r.last != 0 {
				pc += in.Arg0
			}
		case ir.JumpIfZero:
			if r.last == 0 {
				pc += in.Arg0
			}
		case ir.Subshell:
			err = r.subshell(ctx, prog.Subprograms[in.Arg0])
		case ir.Background:
			r.background(ctx, prog.Subprograms[in.Arg0])
		case ir.Pipeline:
			err = r.pipeline(ctx, prog.Subprograms[in.Arg0:in.Arg0+in.Arg1])
		default:
			err = fmt.Errorf("unknown instruction %v", in.Op)
		}

		if err != nil {
			return r.last, err
		}
	}

	if code, exited := r.Proc.Exited(); exited {
		r.last = code
	}
	return r.last, nil
}

// recoverable reports failures that end a single command, rather than the
// whole shell. The message is printed and the status set to 1.
func (r *Runner) recoverable(proc *vos.Proc, err error) error {
	if errors.Is(err, ErrSpawn) {
		return err
	}

	r.errorf(proc, "%v", err)
	r.last = 1
	return nil
}

func (r *Runner) expandWords(ctx context.Context, f *frame, word int) error {
	argv, err := r.expandArgs(ctx, f.prog, f.prog.Words[word])
	if err != nil {
		f.expanded[word] = expansion{failed: true}
		return r.recoverable(r.Proc, err)
	}

	f.expanded[word] = expansion{argv: argv}
	return nil
}

func (r *Runner) exec(ctx context.Context, f *frame, word, redirs int) error {
	if _, ok := f.expanded[word]; !ok {
		if err := r.expandWords(ctx, f, word); err != nil {
			return err
		}
	}
	exp := f.expanded[word]
	delete(f.expanded, word)
	if exp.failed {
		return nil
	}
	argv := exp.argv

	files := r.Proc.VIO
	if redirs >= 0 {
		opened, closeFiles, err := r.redirect(ctx, f.prog, f.prog.Redirects[redirs])
		if err != nil {
			return r.recoverable(r.Proc, err)
		}
		defer closeFiles()
		files = opened
	}

	if len(argv) == 0 {
		r.last = 0
		return nil
	}

	code, err := r.call(r.Proc.WithIO(files).WithArgs(argv))
	r.last = code
	return err
}

// call runs a command against proc, whose arguments are the argv.
func (r *Runner) call(proc *vos.Proc) (int, error) {
	name := proc.Args()[0]

	if r.Restricted && (name == "cd" || strings.Contains(name, "/")) {
		r.errorf(proc, "%s: restricted", name)
		return 1, nil
	}

	if r.Builtins != nil {
		if builtin := r.Builtins(name); builtin != nil {
			return builtin(proc), nil
		}
	}

	p, err := r.Spawner.Spawn(proc, proc.Args())
	switch {
	case err == nil:
		code, err := p.Wait()
		if err != nil {
			r.errorf(proc, "%s: %v", name, err)
		}
		return code, nil

	case errors.Is(err, vos.ErrNoResources):
		return 1, fmt.Errorf("%w: %s: %v", ErrSpawn, name, err)

	case errors.Is(err, vos.ErrNotFound):
		r.errorf(proc, "%s: command not found", name)
		return StatusNotFound, nil

	case errors.Is(err, fs.ErrPermission):
		r.errorf(proc, "%s: Permission denied", name)
		return StatusNotExecutable, nil

	default:
		r.errorf(proc, "%s: %v", name, err)
		return StatusNotExecutable, nil
	}
}

func (r *Runner) getVar(ctx context.Context, f *frame, word int) error {
	name, err := r.expandString(ctx, f.prog, f.prog.Words[word])
	if err != nil {
		return r.recoverable(r.Proc, err)
	}

	if _, ok := r.Proc.LookupEnv(name); ok {
		r.last = 0
	} else {
		r.last = 1
	}
	return nil
}

func (r *Runner) setVar(ctx context.Context, f *frame, nameWord, valueWord int) error {
	name, err := r.expandString(ctx, f.prog, f.prog.Words[nameWord])
	if err != nil {
		return r.recoverable(r.Proc, err)
	}
	value, err := r.expandString(ctx, f.prog, f.prog.Words[valueWord])
	if err != nil {
		return r.recoverable(r.Proc, err)
	}

	if r.Restricted && restrictedVars[name] {
		r.errorf(r.Proc, "%s: readonly variable", name)
		r.last = 1
		return nil
	}

	if err := r.Proc.Setenv(name, value); err != nil {
		r.errorf(r.Proc, "%s: %v", name, err)
		r.last = 1
		return nil
	}

	r.last = 0
	return nil
}
