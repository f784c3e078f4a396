package vos

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
)

// ErrNoResources is returned when the operating system refuses to create a
// new process. The shell can't recover from it.
var ErrNoResources = errors.New("cannot create process")

// Process is a handle on a started program.
type Process interface {
	// Wait blocks until the program exits and returns its exit status.
	Wait() (int, error)
}

// Spawner starts programs that aren't shell builtins.
type Spawner interface {
	// Spawn starts argv against the image p. Errors matching ErrNotFound or
	// fs.ErrPermission mean the program couldn't be found or executed.
	Spawn(p *Proc, argv []string) (Process, error)
}

// OSSpawner starts host programs found on the image's PATH.
type OSSpawner struct{}

var _ Spawner = OSSpawner{}

// Spawn implements Spawner.Spawn.
func (OSSpawner) Spawn(p *Proc, argv []string) (Process, error) {
	path, err := LookPath(p, argv[0])
	if err != nil {
		return nil, err
	}

	cmd := &exec.Cmd{
		Path:   path,
		Args:   argv,
		Env:    p.Environ(),
		Dir:    p.Getwd(),
		Stdin:  hostReader(p.Stdin()),
		Stdout: hostWriter(p.Stdout()),
		Stderr: hostWriter(p.Stderr()),
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.ENOMEM) {
			return nil, fmt.Errorf("%w: %v", ErrNoResources, err)
		}
		return nil, err
	}

	return &osProcess{cmd: cmd}, nil
}

// hostReader maps the /dev/null placeholder to nil so exec opens the real
// null device instead of copying from it.
func hostReader(r io.Reader) io.Reader {
	if IsNull(r) {
		return nil
	}
	return r
}

func hostWriter(w io.Writer) io.Writer {
	if IsNull(w) {
		return nil
	}
	return w
}

type osProcess struct {
	cmd *exec.Cmd
}

func (o *osProcess) Wait() (int, error) {
	err := o.cmd.Wait()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal()), nil
		}
		return exitErr.ExitCode(), nil
	default:
		return 1, err
	}
}

// StartFunc runs an in-process program on its own goroutine. done, if set, is
// called after the program returns and before Wait unblocks.
func StartFunc(p *Proc, fn ProcessFunc, done func()) Process {
	out := &funcProcess{done: make(chan struct{})}

	go func() {
		defer close(out.done)
		if done != nil {
			defer done()
		}
		defer func() {
			if r := recover(); r != nil {
				fmt.Fprintf(p.Stderr(), "%s: panic: %v\n", programName(p), r)
				out.code = 2
			}
		}()

		out.code = fn(p)
	}()

	return out
}

func programName(p *Proc) string {
	if args := p.Args(); len(args) > 0 {
		return args[0]
	}
	return "sh"
}

type funcProcess struct {
	done chan struct{}
	code int
}

func (f *funcProcess) Wait() (int, error) {
	<-f.done
	return f.code, nil
}
