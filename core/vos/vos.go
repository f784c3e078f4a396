package vos

import "github.com/spf13/afero"

// VFS is the filesystem a process image sees.
type VFS = afero.Fs

// VOS is the view of a process image handed to in-process programs such as
// shell builtins.
type VOS interface {
	VEnv
	VIO

	// Args holds the program arguments, including the program name as Args()[0].
	Args() []string
	// Getpid returns the process ID of the shell that owns the image.
	Getpid() int
	// Getwd returns the working directory of the image.
	Getwd() string
	// Chdir changes the working directory of the image.
	Chdir(dir string) error
	// Fs returns the filesystem, relative paths should be resolved with Abs.
	Fs() VFS
	// Abs resolves name against the working directory.
	Abs(name string) string
	// Exit marks the image as finished with the given code.
	Exit(code int)
}

// ProcessFunc is a program that runs inside the shell process.
type ProcessFunc func(VOS) int

// ProcessResolver looks up an in-process program by name, it returns nil if
// no program was found.
type ProcessResolver func(name string) ProcessFunc
