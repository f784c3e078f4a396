package ir

import (
	"fmt"

	"github.com/josephlewis42/tinysh/core/syntax"
)

// Lower compiles the tree rooted at n into a Program. Lowering is pure, the
// same tree always produces an identical Program.
func Lower(n syntax.Node) *Program {
	prog := &Program{}
	lowerNode(prog, n)
	return prog
}

func lowerSub(prog *Program, n syntax.Node) int {
	prog.Subprograms = append(prog.Subprograms, Lower(n))
	return len(prog.Subprograms) - 1
}

func lowerNode(prog *Program, n syntax.Node) {
	switch n := n.(type) {
	case nil:

	case *syntax.Sequence:
		for _, stmt := range n.Stmts {
			lowerNode(prog, stmt)
		}

	case *syntax.Block:
		lowerNode(prog, n.Body)

	case *syntax.Subshell:
		prog.emit(Subshell, lowerSub(prog, n.Body), 0)

	case *syntax.Background:
		prog.emit(Background, lowerSub(prog, n.Body), 0)

	case *syntax.Pipeline:
		first := len(prog.Subprograms)
		for _, stage := range n.Stages {
			lowerSub(prog, stage)
		}
		prog.emit(Pipeline, first, len(n.Stages))

	case *syntax.Conditional:
		lowerNode(prog, n.Left)

		op := JumpIfNonZero
		if n.Kind == syntax.Or {
			op = JumpIfZero
		}
		jump := prog.emit(op, 0, 0)

		lowerNode(prog, n.Right)
		prog.Instrs[jump].Arg0 = len(prog.Instrs) - jump - 1

	case *syntax.Assignment:
		name := prog.addWord(Word{{Kind: Literal, Value: n.Name}})
		value := prog.addWord(lowerWord(prog, n.Value))
		prog.emit(SetVar, name, value)

	case *syntax.Command:
		argv := lowerWord(prog, n.Name)
		for _, arg := range n.Args {
			argv = append(argv, lowerWord(prog, arg)...)
		}
		word := prog.addWord(argv)

		redirs := -1
		if len(n.Redirs) > 0 {
			var set []Redirect
			for _, r := range n.Redirs {
				set = append(set, lowerRedirect(prog, r))
			}
			prog.Redirects = append(prog.Redirects, set)
			redirs = len(prog.Redirects) - 1
		}

		prog.emit(ExpandWords, word, 0)
		prog.emit(Exec, word, redirs)

	default:
		panic(fmt.Sprintf("ir: can't lower %T as a statement", n))
	}
}

func lowerRedirect(prog *Program, r *syntax.Redirection) Redirect {
	out := Redirect{Kind: r.Kind, Fd: r.TargetFd(), Target: -1}
	if r.Kind == syntax.RedirHereDoc {
		out.Body = r.Body
		out.Expand = r.Expand
	} else {
		out.Target = prog.addWord(lowerWord(prog, r.Target))
	}
	return out
}

// lowerWord converts a single argument to atoms. The first atom starts a new
// argument, the rest join it.
func lowerWord(prog *Program, w *syntax.Word) Word {
	var out Word
	if len(w.Parts) == 0 {
		out = Word{{Kind: Literal, Value: w.Text, Quoted: w.Quoted}}
	}

	for _, part := range w.Parts {
		switch part := part.(type) {
		case *syntax.Word:
			out = append(out, lowerWord(prog, part)...)
		case *syntax.ParamExp:
			out = append(out, WordAtom{Kind: Variable, Value: part.Name, Quoted: part.Quoted})
		case *syntax.ArithExp:
			out = append(out, WordAtom{Kind: Arith, Value: part.Expr, Quoted: part.Quoted})
		case *syntax.CmdSubst:
			out = append(out, WordAtom{Kind: Command, Sub: lowerSub(prog, part.Body), Quoted: part.Quoted})
		default:
			panic(fmt.Sprintf("ir: can't lower %T as part of a word", part))
		}
	}

	for i := range out {
		out[i].Join = i > 0
	}
	return out
}
