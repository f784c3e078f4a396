package syntax

import (
	"fmt"
	"io"
	"strings"
)

// Print writes an indented rendering of the tree rooted at n.
func Print(w io.Writer, n Node) error {
	p := &printer{w: w}
	p.node(n)
	return p.err
}

type printer struct {
	w     io.Writer
	depth int
	err   error
}

func (p *printer) line(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, "%s%s\n", strings.Repeat("  ", p.depth), fmt.Sprintf(format, args...))
}

func (p *printer) children(nodes ...Node) {
	p.depth++
	for _, n := range nodes {
		p.node(n)
	}
	p.depth--
}

func (p *printer) node(n Node) {
	switch n := n.(type) {
	case nil:
		p.line("<nil>")

	case *Sequence:
		p.line("Sequence")
		p.children(n.Stmts...)

	case *Background:
		p.line("Background")
		p.children(n.Body)

	case *Conditional:
		p.line("Conditional %s", n.Kind)
		p.children(n.Left, n.Right)

	case *Pipeline:
		p.line("Pipeline")
		p.children(n.Stages...)

	case *Subshell:
		p.line("Subshell")
		p.children(n.Body)

	case *Block:
		p.line("Block")
		p.children(n.Body)

	case *Word:
		if len(n.Parts) == 0 {
			quoted := ""
			if n.Quoted {
				quoted = " quoted"
			}
			p.line("Lit %q%s", n.Text, quoted)
			return
		}
		p.line("Word %q", n.Text)
		if lit, ok := n.Parts[0].(*Word); ok && len(n.Parts) == 1 && !lit.Quoted && lit.Text == n.Text {
			return
		}
		p.children(n.Parts...)

	case *Assignment:
		p.line("Assignment %s", n.Name)
		p.children(n.Value)

	case *ParamExp:
		braced := ""
		if n.Braced {
			braced = " braced"
		}
		p.line("ParamExp %s%s", n.Name, braced)

	case *ArithExp:
		p.line("ArithExp %q", n.Expr)

	case *CmdSubst:
		p.line("CmdSubst")
		p.children(n.Body)

	case *Command:
		p.line("Command")
		p.depth++
		p.node(n.Name)
		for _, arg := range n.Args {
			p.node(arg)
		}
		for _, r := range n.Redirs {
			p.node(r)
		}
		p.depth--

	case *Redirection:
		if n.Kind == RedirHereDoc {
			p.line("Redirection %s fd=%d body=%q expand=%t", n.Kind, n.TargetFd(), n.Body, n.Expand)
		} else {
			p.line("Redirection %s fd=%d", n.Kind, n.TargetFd())
		}
		p.children(n.Target)

	default:
		panic(fmt.Sprintf("syntax: unknown node %T", n))
	}
}
