package syntax

// Node is a parsed shell construct. The set of implementations is closed;
// consumers switch over the concrete types.
type Node interface {
	// Pos returns the offset of the first byte of the node in the source.
	Pos() int
	node()
}

// Sequence is a list of statements run one after another.
type Sequence struct {
	Offset int
	Stmts  []Node
}

// Background runs its body without waiting for it.
type Background struct {
	Offset int
	Body   Node
}

// CondKind is the operator of a Conditional.
type CondKind int

const (
	And CondKind = iota // &&
	Or                  // ||
)

func (k CondKind) String() string {
	if k == Or {
		return "||"
	}
	return "&&"
}

// Conditional runs Right depending on the exit status of Left.
type Conditional struct {
	Kind  CondKind
	Left  Node
	Right Node
}

// Pipeline connects the standard output of each stage to the standard
// input of the next.
type Pipeline struct {
	Stages []Node
}

// Subshell runs its body in a copy of the process image.
type Subshell struct {
	Lparen int
	Body   *Sequence
}

// Block runs its body in the current process image.
type Block struct {
	Lbrace int
	Body   *Sequence
}

// Word is a single shell argument. A Word without Parts is a literal piece
// of text; otherwise Parts holds the literals and expansions that are joined
// to form the argument.
type Word struct {
	Offset int
	End    int
	// Text is the source text of the word, or the value of a literal piece.
	Text  string
	Parts []Node
	// Quoted is set on literal pieces that came from quotes.
	Quoted bool
}

// Lit creates a literal word piece.
func Lit(offset int, value string, quoted bool) *Word {
	return &Word{Offset: offset, End: offset + len(value), Text: value, Quoted: quoted}
}

// Literal returns the value of w if it contains no expansions.
func (w *Word) Literal() (string, bool) {
	if len(w.Parts) == 0 {
		return w.Text, true
	}

	out := ""
	for _, part := range w.Parts {
		lit, ok := part.(*Word)
		if !ok {
			return "", false
		}
		val, ok := lit.Literal()
		if !ok {
			return "", false
		}
		out += val
	}
	return out, true
}

// Assignment binds a variable in the current process image.
type Assignment struct {
	Offset int
	Name   string
	Value  *Word
}

// ParamExp is a variable expansion, $name or ${name}.
type ParamExp struct {
	Offset int
	// Name is everything between the braces for braced expansions, so it
	// may carry an operator like "x:-default".
	Name   string
	Braced bool
	Quoted bool
}

// ArithExp is an arithmetic expansion, $((expr)).
type ArithExp struct {
	Offset int
	Expr   string
	Quoted bool
}

// CmdSubst is a command substitution, $(cmd) or `cmd`.
type CmdSubst struct {
	Offset   int
	Body     *Sequence
	Backtick bool
	Quoted   bool
}

// Command runs a program with arguments.
type Command struct {
	Name   *Word
	Args   []*Word
	Redirs []*Redirection
}

// RedirKind is the operation of a Redirection.
type RedirKind int

const (
	RedirInput    RedirKind = iota // <
	RedirOutput                    // > and >|
	RedirAppend                    // >>
	RedirInputFd                   // <&
	RedirOutputFd                  // >&
	RedirHereDoc                   // << and <<-
)

var redirOps = [...]string{
	RedirInput:    "<",
	RedirOutput:   ">",
	RedirAppend:   ">>",
	RedirInputFd:  "<&",
	RedirOutputFd: ">&",
	RedirHereDoc:  "<<",
}

func (k RedirKind) String() string {
	return redirOps[k]
}

// DefaultFd is the descriptor the redirection applies to when none is given.
func (k RedirKind) DefaultFd() int {
	switch k {
	case RedirInput, RedirInputFd, RedirHereDoc:
		return 0
	default:
		return 1
	}
}

// IsOutput reports whether the redirection writes to its target.
func (k RedirKind) IsOutput() bool {
	return k == RedirOutput || k == RedirAppend || k == RedirOutputFd
}

// Redirection remaps a file descriptor for a single command.
type Redirection struct {
	Offset int
	Kind   RedirKind
	// Fd is the explicit descriptor, -1 if none was given.
	Fd     int
	Target *Word
	// Body and Expand are set for here-documents. Expand is false when the
	// delimiter was quoted.
	Body   string
	Expand bool
}

// TargetFd is the descriptor the redirection applies to.
func (r *Redirection) TargetFd() int {
	if r.Fd >= 0 {
		return r.Fd
	}
	return r.Kind.DefaultFd()
}

func (s *Sequence) Pos() int    { return s.Offset }
func (b *Background) Pos() int  { return b.Offset }
func (c *Conditional) Pos() int { return c.Left.Pos() }
func (p *Pipeline) Pos() int    { return p.Stages[0].Pos() }
func (s *Subshell) Pos() int    { return s.Lparen }
func (b *Block) Pos() int       { return b.Lbrace }
func (w *Word) Pos() int        { return w.Offset }
func (a *Assignment) Pos() int  { return a.Offset }
func (p *ParamExp) Pos() int    { return p.Offset }
func (a *ArithExp) Pos() int    { return a.Offset }
func (c *CmdSubst) Pos() int    { return c.Offset }
func (c *Command) Pos() int     { return c.Name.Offset }
func (r *Redirection) Pos() int { return r.Offset }

func (*Sequence) node()    {}
func (*Background) node()  {}
func (*Conditional) node() {}
func (*Pipeline) node()    {}
func (*Subshell) node()    {}
func (*Block) node()       {}
func (*Word) node()        {}
func (*Assignment) node()  {}
func (*ParamExp) node()    {}
func (*ArithExp) node()    {}
func (*CmdSubst) node()    {}
func (*Command) node()     {}
func (*Redirection) node() {}
