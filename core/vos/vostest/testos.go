// Package vostest holds in-memory process images and spawners for tests.
package vostest

import (
	"bytes"
	"io"

	"github.com/josephlewis42/tinysh/core/vos"
	"github.com/spf13/afero"
)

// FuncSpawner starts in-process programs picked by a resolver instead of
// host executables.
type FuncSpawner struct {
	Resolver vos.ProcessResolver
}

var _ vos.Spawner = (*FuncSpawner)(nil)

// Spawn implements vos.Spawner.Spawn.
func (f *FuncSpawner) Spawn(p *vos.Proc, argv []string) (vos.Process, error) {
	var fn vos.ProcessFunc
	if f.Resolver != nil {
		fn = f.Resolver(argv[0])
	}
	if fn == nil {
		return nil, vos.ErrNotFound
	}

	return vos.StartFunc(p.Fork().WithArgs(argv), fn, nil), nil
}

// SingleProcessResolver resolves every name to process.
func SingleProcessResolver(process vos.ProcessFunc) vos.ProcessResolver {
	return func(path string) vos.ProcessFunc {
		return process
	}
}

// MapResolver resolves names using a fixed table.
func MapResolver(table map[string]vos.ProcessFunc) vos.ProcessResolver {
	return func(name string) vos.ProcessFunc {
		return table[name]
	}
}

// NewDeterministicProc creates an image backed by an empty in-memory
// filesystem with a fixed environment.
func NewDeterministicProc(files vos.VIO) *vos.Proc {
	fs := afero.NewMemMapFs()
	fs.MkdirAll("/home/tester", 0755)
	fs.MkdirAll("/tmp", 0777)

	return vos.NewProc(&vos.ProcAttr{
		Dir: "/home/tester",
		Env: []string{
			"HOME=/home/tester",
			"PATH=/bin:/usr/bin",
			"PWD=/home/tester",
			"USER=tester",
		},
		Files: files,
		Fs:    fs,
		Args:  []string{"tinysh"},
	})
}

// Cmd is similar to exec.Cmd.
type Cmd struct {
	// Process function
	Process vos.ProcessFunc
	// Process arguments, the first argument should be the process name.
	Argv []string
	// If Dir is non-empty, the child changes into the directory before
	// creating the process.
	Dir string
	// If Env is non-empty, the variables are added to the deterministic
	// environment.
	Env []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	ExitStatus int

	Setup func(*vos.Proc) error
}

// Command returns the Cmd struct to execute the process with the given
// arguments.
func Command(process vos.ProcessFunc, name string, arg ...string) *Cmd {
	return &Cmd{
		Process: process,
		Argv:    append([]string{name}, arg...),
	}
}

// CombinedOutput runs the command and returns its combined stdout and
// stderr.
func (c *Cmd) CombinedOutput() ([]byte, error) {
	buf := &bytes.Buffer{}
	c.Stdout = buf
	c.Stderr = buf

	if err := c.Run(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Run starts the comand and waits for it to complete.
func (c *Cmd) Run() error {
	proc := NewDeterministicProc(vos.NewVIOAdapter(c.Stdin, c.Stdout, c.Stderr)).WithArgs(c.Argv)

	if err := vos.CopyEnv(proc, c.Env); err != nil {
		return err
	}

	if c.Dir != "" {
		if err := proc.Fs().MkdirAll(c.Dir, 0755); err != nil {
			return err
		}
		if err := proc.Chdir(c.Dir); err != nil {
			return err
		}
	}

	if c.Setup != nil {
		if err := c.Setup(proc); err != nil {
			return err
		}
	}

	c.ExitStatus, _ = vos.StartFunc(proc, c.Process, nil).Wait()
	return nil
}
