package interp

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/josephlewis42/tinysh/core/ir"
	"github.com/josephlewis42/tinysh/core/syntax"
	"github.com/josephlewis42/tinysh/core/vos"
	"github.com/spf13/afero"
)

// redirect builds the standard streams for a single command. The returned
// function closes any files that were opened.
func (r *Runner) redirect(ctx context.Context, prog *ir.Program, redirs []ir.Redirect) (vos.VIO, func(), error) {
	streams := [3]interface{}{r.Proc.Stdin(), r.Proc.Stdout(), r.Proc.Stderr()}

	var opened []io.Closer
	closeAll := func() {
		for _, c := range opened {
			c.Close()
		}
	}

	for _, rd := range redirs {
		stream, err := r.openRedirect(ctx, prog, rd, streams)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		if f, ok := stream.(afero.File); ok && opensFile(rd.Kind) {
			opened = append(opened, f)
		}
		streams[rd.Fd] = stream
	}

	files := &vos.VIOAdapter{}
	var ok bool
	if files.IStdin, ok = streams[0].(io.ReadCloser); !ok {
		closeAll()
		return nil, nil, fmt.Errorf("0: Bad file descriptor")
	}
	for fd, dst := range []*io.WriteCloser{&files.IStdout, &files.IStderr} {
		if *dst, ok = streams[fd+1].(io.WriteCloser); !ok {
			closeAll()
			return nil, nil, fmt.Errorf("%d: Bad file descriptor", fd+1)
		}
	}

	return files, closeAll, nil
}

func (r *Runner) openRedirect(ctx context.Context, prog *ir.Program, rd ir.Redirect, streams [3]interface{}) (interface{}, error) {
	if rd.Fd < 0 || rd.Fd > 2 {
		return nil, fmt.Errorf("%d: Bad file descriptor", rd.Fd)
	}
	if r.Restricted && rd.Kind.IsOutput() {
		return nil, fmt.Errorf("restricted: cannot redirect output")
	}

	if rd.Kind == syntax.RedirHereDoc {
		body := rd.Body
		if rd.Expand {
			expanded, err := r.expandText(ctx, body)
			if err != nil {
				return nil, err
			}
			body = expanded
		}
		return io.NopCloser(strings.NewReader(body)), nil
	}

	args, err := r.expandArgs(ctx, prog, prog.Words[rd.Target])
	if err != nil {
		return nil, err
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("%s: ambiguous redirect", prog.Words[rd.Target])
	}
	target := args[0]

	vfs := r.Proc.Fs()
	switch rd.Kind {
	case syntax.RedirInput:
		f, err := vfs.Open(r.Proc.Abs(target))
		if err != nil {
			return nil, fmt.Errorf("%s: No such file or directory", target)
		}
		return f, nil

	case syntax.RedirOutput, syntax.RedirAppend:
		flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if rd.Kind == syntax.RedirAppend {
			flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		}
		f, err := vfs.OpenFile(r.Proc.Abs(target), flags, 0644)
		if err != nil {
			return nil, fmt.Errorf("%s: cannot open: %v", target, unwrapPathError(err))
		}
		return f, nil

	default:
		// <& and >&
		if target == "-" {
			null := vos.NewNullIO()
			if rd.Fd == 0 {
				return null.Stdin(), nil
			}
			return null.Stdout(), nil
		}

		n, err := strconv.Atoi(target)
		if err != nil || n < 0 || n > 2 {
			return nil, fmt.Errorf("%s: Bad file descriptor", target)
		}
		return streams[n], nil
	}
}

func opensFile(kind syntax.RedirKind) bool {
	return kind == syntax.RedirInput || kind == syntax.RedirOutput || kind == syntax.RedirAppend
}

func unwrapPathError(err error) error {
	if pe, ok := err.(*os.PathError); ok {
		return pe.Err
	}
	return err
}
