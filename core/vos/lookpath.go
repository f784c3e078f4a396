package vos

import (
	"errors"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrNotFound is the error resulting if a path search failed to find an executable file.
var ErrNotFound = exec.ErrNotFound

// NewOsFs returns the host filesystem.
func NewOsFs() VFS {
	return afero.NewOsFs()
}

func findExecutable(vfs VFS, file string) error {
	d, err := vfs.Stat(file)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case err != nil:
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0111 != 0 {
		return nil
	}
	return fs.ErrPermission
}

// LookPath searches for an executable named file in the directories named by
// the PATH environment variable of the image. If file contains a slash, it is
// tried directly and the PATH is not consulted. The result is an absolute
// path.
func LookPath(p VOS, file string) (string, error) {
	if strings.Contains(file, "/") {
		path := p.Abs(file)
		if err := findExecutable(p.Fs(), path); err != nil {
			return "", err
		}
		return path, nil
	}

	for _, dir := range filepath.SplitList(p.Getenv("PATH")) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		path := p.Abs(filepath.Join(dir, file))
		if err := findExecutable(p.Fs(), path); err == nil {
			return path, nil
		}
	}
	return "", ErrNotFound
}
