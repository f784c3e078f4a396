package ir

import (
	"fmt"
	"io"
	"strings"

	"github.com/josephlewis42/tinysh/core/syntax"
)

func (a WordAtom) String() string {
	switch a.Kind {
	case Variable:
		return "${" + a.Value + "}"
	case Command:
		return fmt.Sprintf("$(#%d)", a.Sub)
	case Arith:
		return "$((" + a.Value + "))"
	default:
		if a.Quoted {
			return fmt.Sprintf("%q", a.Value)
		}
		return a.Value
	}
}

// String renders the arguments of the word separated by spaces.
func (w Word) String() string {
	var sb strings.Builder
	for i, atom := range w {
		if i > 0 && !atom.Join {
			sb.WriteByte(' ')
		}
		sb.WriteString(atom.String())
	}
	return sb.String()
}

func (r Redirect) format(words []Word) string {
	if r.Kind == syntax.RedirHereDoc {
		mode := "expand"
		if !r.Expand {
			mode = "literal"
		}
		return fmt.Sprintf("%d%s %q %s", r.Fd, r.Kind, r.Body, mode)
	}

	target := "?"
	if r.Target >= 0 && r.Target < len(words) {
		target = words[r.Target].String()
	}
	return fmt.Sprintf("%d%s %s", r.Fd, r.Kind, target)
}

// Dump writes a listing of the program and its sub-programs.
func Dump(w io.Writer, prog *Program) error {
	d := &dumper{w: w}
	d.dump(prog, "")
	return d.err
}

type dumper struct {
	w   io.Writer
	err error
}

func (d *dumper) printf(format string, args ...interface{}) {
	if d.err == nil {
		_, d.err = fmt.Fprintf(d.w, format, args...)
	}
}

func (d *dumper) dump(prog *Program, indent string) {
	d.printf("%s=== Words ===\n", indent)
	for i, word := range prog.Words {
		d.printf("%s[%d]: %s\n", indent, i, word)
	}

	d.printf("%s=== Redirects ===\n", indent)
	for i, set := range prog.Redirects {
		var items []string
		for _, r := range set {
			items = append(items, r.format(prog.Words))
		}
		d.printf("%s[%d]: %s\n", indent, i, strings.Join(items, ", "))
	}

	d.printf("%s=== Instructions ===\n", indent)
	for i, in := range prog.Instrs {
		d.printf("%s[%d] Op: %s Arg0: %d Arg1: %d\n", indent, i, in.Op, in.Arg0, in.Arg1)
	}

	for i, sub := range prog.Subprograms {
		d.printf("%s=== Subprogram %d ===\n", indent, i)
		d.dump(sub, indent+"  ")
	}
}
