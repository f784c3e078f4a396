package interp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/josephlewis42/tinysh/core/ir"
	"github.com/josephlewis42/tinysh/core/syntax"
	"mvdan.cc/sh/v3/expand"
	shsyntax "mvdan.cc/sh/v3/syntax"
)

// runnerEnviron exposes the variables and special parameters of a Runner to
// the expand package.
type runnerEnviron struct {
	r *Runner
}

var _ expand.WriteEnviron = runnerEnviron{}

func stringVar(val string) expand.Variable {
	return expand.Variable{Exported: true, Kind: expand.String, Str: val}
}

func (e runnerEnviron) Get(name string) expand.Variable {
	if name == "@" || name == "*" {
		var list []string
		if args := e.r.Proc.Args(); len(args) > 1 {
			list = args[1:]
		}
		return expand.Variable{Kind: expand.Indexed, List: list}
	}

	val, ok := e.r.lookupParam(name)
	if !ok {
		return expand.Variable{}
	}
	return stringVar(val)
}

func (e runnerEnviron) Set(name string, vr expand.Variable) error {
	if e.r.Restricted && restrictedVars[name] {
		return fmt.Errorf("%s: readonly variable", name)
	}
	if !vr.IsSet() {
		return e.r.Proc.Unsetenv(name)
	}
	return e.r.Proc.Setenv(name, vr.String())
}

func (e runnerEnviron) Each(fn func(name string, vr expand.Variable) bool) {
	for _, kv := range e.r.Proc.Environ() {
		name, val, _ := strings.Cut(kv, "=")
		if !fn(name, stringVar(val)) {
			return
		}
	}
}

// expandConfig builds the expansion settings for one word. Command
// substitutions found by the expand package are run as tinysh programs.
func (r *Runner) expandConfig(ctx context.Context) *expand.Config {
	return &expand.Config{
		Env: runnerEnviron{r},
		CmdSubst: func(w io.Writer, cs *shsyntax.CmdSubst) error {
			src := &bytes.Buffer{}
			printer := shsyntax.NewPrinter()
			for _, stmt := range cs.Stmts {
				if err := printer.Print(src, stmt); err != nil {
					return err
				}
				src.WriteByte('\n')
			}

			seq, errs := syntax.ParseString(src.String(), nil)
			if syntax.IsFatal(errs) {
				return fmt.Errorf("%v", errs[0])
			}

			out, err := r.substitute(ctx, ir.Lower(seq))
			if err != nil {
				return err
			}
			_, err = io.WriteString(w, out)
			return err
		},
	}
}

// expandText expands s as if it were the body of a here-document:
// parameters, arithmetic and command substitutions, no field splitting.
func (r *Runner) expandText(ctx context.Context, s string) (string, error) {
	word, err := shsyntax.NewParser().Document(strings.NewReader(s))
	if err != nil {
		return "", err
	}
	return expand.Document(r.expandConfig(ctx), word)
}

// evalArith evaluates the body of $((...)).
func (r *Runner) evalArith(ctx context.Context, expr string) (int, error) {
	if strings.TrimSpace(expr) == "" {
		return 0, nil
	}

	x, err := shsyntax.NewParser().Arithmetic(strings.NewReader(expr))
	if err != nil {
		return 0, fmt.Errorf("arithmetic: %v", err)
	}
	n, err := expand.Arithm(r.expandConfig(ctx), x)
	if err != nil {
		return 0, fmt.Errorf("arithmetic: %v", err)
	}
	return n, nil
}

// lookupVar resolves the contents of $name or ${...}. Plain names and
// special parameters are looked up directly, operator forms such as
// ${name:-default} go through the expand package.
func (r *Runner) lookupVar(ctx context.Context, name string) (string, error) {
	if isParamName(name) {
		val, _ := r.lookupParam(name)
		return val, nil
	}
	return r.expandText(ctx, "${"+name+"}")
}

func isParamName(name string) bool {
	if len(name) == 1 && strings.IndexByte("?$#@*!-", name[0]) >= 0 {
		return true
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c == '_' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return name != ""
}

// lookupParam resolves a variable or special parameter. The second return
// value reports whether it is set.
func (r *Runner) lookupParam(name string) (string, bool) {
	args := r.Proc.Args()
	switch name {
	case "?":
		return strconv.Itoa(r.last), true
	case "$":
		return strconv.Itoa(r.Proc.Getpid()), true
	case "#":
		if len(args) == 0 {
			return "0", true
		}
		return strconv.Itoa(len(args) - 1), true
	case "@", "*":
		if len(args) < 2 {
			return "", true
		}
		return strings.Join(args[1:], " "), true
	}

	if n, err := strconv.Atoi(name); err == nil {
		if n >= 0 && n < len(args) {
			return args[n], true
		}
		return "", false
	}

	return r.Proc.LookupEnv(name)
}
