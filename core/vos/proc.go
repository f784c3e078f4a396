package vos

import (
	"fmt"
	"os"
	"path"
	"sync"
)

// Proc is a process image: the environment, working directory, standard
// streams and arguments a piece of shell code runs against.
//
// Images made with WithIO and WithArgs share their environment, working
// directory and exit state with the original. Fork makes an isolated copy the
// way a child process would get one.
type Proc struct {
	VEnv
	VIO

	fs   VFS
	args []string
	pid  int
	dir  *string
	exit *exitState
}

type exitState struct {
	mu     sync.Mutex
	code   int
	exited bool
}

var _ VOS = (*Proc)(nil)

// ProcAttr holds the attributes of a new process image.
type ProcAttr struct {
	// Dir is the working directory, "/" if empty.
	Dir string
	// If Env is non-nil, it gives the environment variables for the
	// new image in the form returned by Environ.
	Env []string
	// Files specifies the standard streams, NewNullIO if nil.
	Files VIO
	// Fs is the filesystem, the host filesystem if nil.
	Fs VFS
	// Args holds the arguments, including the program name.
	Args []string
}

// NewProc creates the root process image of a shell.
func NewProc(attr *ProcAttr) *Proc {
	if attr == nil {
		attr = &ProcAttr{}
	}

	dir := attr.Dir
	if dir == "" {
		dir = "/"
	}

	out := &Proc{
		VEnv: NewMapEnvFromEnvList(attr.Env),
		VIO:  attr.Files,
		fs:   attr.Fs,
		args: attr.Args,
		pid:  os.Getpid(),
		dir:  &dir,
		exit: &exitState{},
	}

	if out.VIO == nil {
		out.VIO = NewNullIO()
	}
	if out.fs == nil {
		out.fs = NewOsFs()
	}

	return out
}

// Args implements VOS.Args.
func (p *Proc) Args() []string {
	return p.args
}

// Getpid implements VOS.Getpid.
func (p *Proc) Getpid() int {
	return p.pid
}

// Getwd implements VOS.Getwd.
func (p *Proc) Getwd() string {
	return *p.dir
}

// Fs implements VOS.Fs.
func (p *Proc) Fs() VFS {
	return p.fs
}

// Abs implements VOS.Abs.
func (p *Proc) Abs(name string) string {
	if path.IsAbs(name) {
		return path.Clean(name)
	}
	return path.Join(*p.dir, name)
}

// Chdir implements VOS.Chdir.
func (p *Proc) Chdir(dir string) error {
	dir = p.Abs(dir)

	stat, err := p.fs.Stat(dir)
	switch {
	case err != nil:
		return fmt.Errorf("%s: No such file or directory", dir)
	case !stat.IsDir():
		return fmt.Errorf("%s: Not a directory", dir)
	}

	*p.dir = dir
	return p.Setenv("PWD", dir)
}

// Exit implements VOS.Exit.
func (p *Proc) Exit(code int) {
	p.exit.mu.Lock()
	defer p.exit.mu.Unlock()

	p.exit.code = code
	p.exit.exited = true
}

// Exited reports whether Exit was called and with which code.
func (p *Proc) Exited() (int, bool) {
	p.exit.mu.Lock()
	defer p.exit.mu.Unlock()

	return p.exit.code, p.exit.exited
}

// Fork creates an isolated copy of the image. Changes to the copy's
// environment, directory or exit state never reach the original.
func (p *Proc) Fork() *Proc {
	dir := *p.dir
	return &Proc{
		VEnv: NewMapEnvFrom(p.VEnv),
		VIO:  p.VIO,
		fs:   p.fs,
		args: p.args,
		pid:  p.pid,
		dir:  &dir,
		exit: &exitState{},
	}
}

// WithIO returns an image sharing everything but the standard streams.
func (p *Proc) WithIO(files VIO) *Proc {
	out := *p
	out.VIO = files
	return &out
}

// WithArgs returns an image sharing everything but the arguments.
func (p *Proc) WithArgs(args []string) *Proc {
	out := *p
	out.args = args
	return &out
}
