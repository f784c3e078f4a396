package interp

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/josephlewis42/tinysh/core/ir"
	"github.com/josephlewis42/tinysh/core/vos"
)

// expandArgs resolves a word into arguments. Unquoted arguments that expand
// to nothing are dropped.
func (r *Runner) expandArgs(ctx context.Context, prog *ir.Program, word ir.Word) ([]string, error) {
	var argv []string
	var cur strings.Builder
	keep := false

	flush := func() {
		if cur.Len() > 0 || keep {
			argv = append(argv, cur.String())
		}
		cur.Reset()
		keep = false
	}

	for i, atom := range word {
		if i > 0 && !atom.Join {
			flush()
		}

		val, err := r.expandAtom(ctx, prog, atom)
		if err != nil {
			return nil, err
		}
		cur.WriteString(val)
		keep = keep || atom.Quoted
	}
	if len(word) > 0 {
		flush()
	}

	return argv, nil
}

// expandString resolves a word into a single string.
func (r *Runner) expandString(ctx context.Context, prog *ir.Program, word ir.Word) (string, error) {
	var sb strings.Builder
	for i, atom := range word {
		if i > 0 && !atom.Join {
			sb.WriteByte(' ')
		}

		val, err := r.expandAtom(ctx, prog, atom)
		if err != nil {
			return "", err
		}
		sb.WriteString(val)
	}
	return sb.String(), nil
}

func (r *Runner) expandAtom(ctx context.Context, prog *ir.Program, atom ir.WordAtom) (string, error) {
	switch atom.Kind {
	case ir.Variable:
		return r.lookupVar(ctx, atom.Value)

	case ir.Command:
		out, err := r.substitute(ctx, prog.Subprograms[atom.Sub])
		return strings.TrimRight(out, "\n"), err

	case ir.Arith:
		n, err := r.evalArith(ctx, atom.Value)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(n), nil

	default:
		return atom.Value, nil
	}
}

// substitute runs sub in a child image and returns its output.
func (r *Runner) substitute(ctx context.Context, sub *ir.Program) (string, error) {
	out := &bytes.Buffer{}
	files := &vos.VIOAdapter{
		IStdin:  r.Proc.Stdin(),
		IStdout: vos.NopCloser(out),
		IStderr: r.Proc.Stderr(),
	}

	child := r.fork(r.Proc.Fork().WithIO(files))
	if _, err := child.Run(ctx, sub); err != nil {
		return "", err
	}

	return out.String(), nil
}
