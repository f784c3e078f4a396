package interp

import (
	"context"
	"fmt"
	"os"

	"github.com/josephlewis42/tinysh/core/ir"
	"github.com/josephlewis42/tinysh/core/vos"
	"golang.org/x/sync/errgroup"
)

// subshell runs sub to completion in a copy of the process image and adopts
// its exit status.
func (r *Runner) subshell(ctx context.Context, sub *ir.Program) error {
	child := r.fork(r.Proc.Fork())

	var runErr error
	code, _ := vos.StartFunc(child.Proc, func(vos.VOS) int {
		code, err := child.Run(ctx, sub)
		runErr = err
		return code
	}, nil).Wait()

	r.last = code
	return runErr
}

// background starts sub in a copy of the process image without waiting.
// Its standard input is empty so it can't compete with the terminal.
func (r *Runner) background(ctx context.Context, sub *ir.Program) {
	files := &vos.VIOAdapter{
		IStdin:  vos.NewNullIO().Stdin(),
		IStdout: r.Proc.Stdout(),
		IStderr: r.Proc.Stderr(),
	}
	child := r.fork(r.Proc.Fork().WithIO(files))
	ctx = context.WithoutCancel(ctx)

	r.Jobs.Start(child.Proc, func(vos.VOS) int {
		code, err := child.Run(ctx, sub)
		if err != nil {
			child.errorf(child.Proc, "%v", err)
		}
		return code
	})

	r.last = 0
}

// pipeline runs stages concurrently, each in its own copy of the process
// image, with the standard output of each connected to the standard input
// of the next. The exit status is the status of the last stage.
func (r *Runner) pipeline(ctx context.Context, stages []*ir.Program) error {
	n := len(stages)
	readers := make([]*os.File, n)
	writers := make([]*os.File, n)

	closePipes := func() {
		for i := range stages {
			if readers[i] != nil {
				readers[i].Close()
			}
			if writers[i] != nil {
				writers[i].Close()
			}
		}
	}

	for i := 0; i < n-1; i++ {
		pr, pw, err := os.Pipe()
		if err != nil {
			closePipes()
			return fmt.Errorf("%w: pipe: %v", ErrSpawn, err)
		}
		writers[i], readers[i+1] = pw, pr
	}

	// A fatal error in one stage cancels the others.
	g, gctx := errgroup.WithContext(ctx)
	codes := make([]int, n)
	for i, stage := range stages {
		files := &vos.VIOAdapter{
			IStdin:  r.Proc.Stdin(),
			IStdout: r.Proc.Stdout(),
			IStderr: r.Proc.Stderr(),
		}
		if readers[i] != nil {
			files.IStdin = readers[i]
		}
		if writers[i] != nil {
			files.IStdout = writers[i]
		}

		child := r.fork(r.Proc.Fork().WithIO(files))
		i, stage := i, stage
		in, out := readers[i], writers[i]

		g.Go(func() error {
			// Each stage owns its pipe ends and closes them when it's done so
			// readers further down see EOF.
			defer func() {
				if in != nil {
					in.Close()
				}
				if out != nil {
					out.Close()
				}
			}()

			code, err := child.Run(gctx, stage)
			codes[i] = code
			return err
		})
	}

	err := g.Wait()
	r.last = codes[n-1]
	return err
}
