package syntax

import (
	"fmt"
	"log"
	"strconv"
	"strings"
)

// Parser builds an AST from a token stream by recursive descent.
type Parser struct {
	tokens   []Token
	hereDocs []Token
	pos      int
	logger   *log.Logger
	errs     []error
	// braces counts the blocks being parsed, a '}' inside one ends the
	// command instead of being an argument.
	braces int
}

// NewParser creates a parser over tokens produced by a Lexer. If logger is
// non-nil, diagnostics are printed to it as they're found.
func NewParser(tokens []Token, logger *log.Logger) *Parser {
	p := &Parser{logger: logger}

	// Here-document bodies are claimed by << redirections in the order they
	// appear, so they're pulled out of the main stream.
	for _, tok := range tokens {
		if tok.Kind == HereDoc {
			p.hereDocs = append(p.hereDocs, tok)
		} else {
			p.tokens = append(p.tokens, tok)
		}
	}

	if n := len(p.tokens); n == 0 || (p.tokens[n-1].Kind != EOF && p.tokens[n-1].Kind != Unknown) {
		end := 0
		if n > 0 {
			end = p.tokens[n-1].End
		}
		p.tokens = append(p.tokens, Token{Kind: EOF, Offset: end, End: end})
	}

	return p
}

// Parse parses tokens into a Sequence and returns it with any diagnostics.
func Parse(tokens []Token, logger *log.Logger) (*Sequence, []error) {
	p := NewParser(tokens, logger)
	seq := p.Parse()
	return seq, p.Errors()
}

// ParseString lexes and parses src.
func ParseString(src string, logger *log.Logger) (*Sequence, []error) {
	return parseAt(src, 0, logger)
}

func parseAt(src string, base int, logger *log.Logger) (*Sequence, []error) {
	lex := newLexerAt(src, base, logger)
	tokens := lex.Analyze()
	seq, errs := Parse(tokens, logger)
	return seq, append(lex.Errors(), errs...)
}

// Errors returns the diagnostics found so far.
func (p *Parser) Errors() []error {
	return p.errs
}

// Parse parses the whole stream. Tokens left over after the top level
// sequence are reported as warnings.
func (p *Parser) Parse() *Sequence {
	seq := p.sequence()

	for ; p.pos < len(p.tokens) && p.tokens[p.pos].Kind != EOF; p.pos++ {
		tok := p.tokens[p.pos]
		p.warnf(tok.Offset, "unconsumed token %s %q", tok.Kind, tok.Text)
	}

	return seq
}

func (p *Parser) errorf(offset int, format string, args ...interface{}) {
	p.addError(&Error{
		Offset:     offset,
		Msg:        fmt.Sprintf(format, args...),
		Incomplete: p.atEnd(),
	})
}

// atEnd reports whether the stream is exhausted, the lexer stops at its
// first Unknown token.
func (p *Parser) atEnd() bool {
	kind := p.peek().Kind
	return kind == EOF || kind == Unknown
}

func (p *Parser) warnf(offset int, format string, args ...interface{}) {
	p.addError(&Error{Offset: offset, Msg: fmt.Sprintf(format, args...), Warning: true})
}

func (p *Parser) addError(err *Error) {
	p.errs = append(p.errs, err)
	if p.logger != nil {
		p.logger.Println(err)
	}
}

func (p *Parser) peek() Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) peekAt(n int) Token {
	if p.pos+n < len(p.tokens) {
		return p.tokens[p.pos+n]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) next() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) skipNewlines() {
	for p.peek().Kind == Newline {
		p.pos++
	}
}

// isWordPart reports whether tokens of the kind can make up a word.
func isWordPart(k TokenKind) bool {
	switch k {
	case Identifier, GlobWord, Keyword, String, Variable, CommandSubst, Arithmetic, Comma, Assign:
		return true
	}
	return false
}

func isRedirOp(k TokenKind) bool {
	switch k {
	case Less, Greater, Clobber, DGreat, LessAnd, GreatAnd, DLess, DLessDash,
		LessGreat, AndGreat, AndGreatPipe, DGreatAnd, DGreatAndPipe, DGreatPipe, TLess:
		return true
	}
	return false
}

func (p *Parser) startsStatement() bool {
	k := p.peek().Kind
	return k == LeftParen || k == LeftBrace || isWordPart(k) || isRedirOp(k)
}

// sequence parses statements until a token that can't start one.
func (p *Parser) sequence() *Sequence {
	p.skipNewlines()
	seq := &Sequence{Offset: p.peek().Offset}

	for {
		p.skipNewlines()
		if !p.startsStatement() {
			return seq
		}

		stmt := p.conditional()
		if stmt == nil {
			return seq
		}

		if tok := p.peek(); tok.Kind == Ampersand {
			p.pos++
			stmt = &Background{Offset: stmt.Pos(), Body: stmt}
		}
		seq.Stmts = append(seq.Stmts, stmt)

		switch p.peek().Kind {
		case Semicolon, Newline:
			p.pos++
		}
	}
}

func (p *Parser) conditional() Node {
	left := p.pipeline()
	if left == nil {
		return nil
	}

	for {
		var kind CondKind
		switch tok := p.peek(); tok.Kind {
		case AndIf:
			kind = And
		case OrIf:
			kind = Or
		default:
			return left
		}
		op := p.next()
		p.skipNewlines()

		if !p.startsStatement() {
			p.errorf(op.Offset, "expected a command after %q", op.Text)
			return nil
		}
		right := p.pipeline()
		if right == nil {
			return nil
		}

		left = &Conditional{Kind: kind, Left: left, Right: right}
	}
}

func (p *Parser) pipeline() Node {
	first := p.statement()
	if first == nil {
		return nil
	}

	stages := []Node{first}
	for {
		op := p.peek()
		if op.Kind != Pipe && op.Kind != PipeAmp {
			break
		}
		p.pos++

		// |& is shorthand for 2>&1 |
		if cmd, ok := stages[len(stages)-1].(*Command); ok && op.Kind == PipeAmp {
			cmd.Redirs = append(cmd.Redirs, &Redirection{
				Offset: op.Offset,
				Kind:   RedirOutputFd,
				Fd:     2,
				Target: &Word{Offset: op.Offset, End: op.End, Text: "1", Parts: []Node{Lit(op.Offset, "1", false)}},
			})
		}

		p.skipNewlines()
		if !p.startsStatement() {
			p.errorf(op.Offset, "expected a command after %q", op.Text)
			return nil
		}
		stage := p.statement()
		if stage == nil {
			return nil
		}
		stages = append(stages, stage)
	}

	if len(stages) == 1 {
		return first
	}
	return &Pipeline{Stages: stages}
}

func (p *Parser) statement() Node {
	switch tok := p.peek(); tok.Kind {
	case LeftParen:
		p.pos++
		body := p.sequence()
		if p.peek().Kind != RightParen {
			p.errorf(p.peek().Offset, "expected ')' to close '(' at offset %d", tok.Offset)
			return nil
		}
		p.pos++
		return &Subshell{Lparen: tok.Offset, Body: body}

	case LeftBrace:
		p.pos++
		p.braces++
		body := p.sequence()
		p.braces--
		if p.peek().Kind != RightBrace {
			p.errorf(p.peek().Offset, "expected '}' to close '{' at offset %d", tok.Offset)
			return nil
		}
		p.pos++
		return &Block{Lbrace: tok.Offset, Body: body}
	}

	if p.atAssignment() {
		return p.assignment()
	}
	return p.command()
}

func isName(s string) bool {
	if s == "" || ('0' <= s[0] && s[0] <= '9') {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isNameChar(s[i]) {
			return false
		}
	}
	return true
}

func (p *Parser) atAssignment() bool {
	name, eq := p.peek(), p.peekAt(1)
	return name.Kind == Identifier && isName(name.Text) && eq.Kind == Assign && name.End == eq.Offset
}

func (p *Parser) assignment() Node {
	name := p.next()
	eq := p.next()

	value := &Word{Offset: eq.End, End: eq.End}
	if tok := p.peek(); tok.Offset == eq.End && p.continuesWord(tok) {
		value = p.word()
	}

	return &Assignment{Offset: name.Offset, Name: name.Text, Value: value}
}

func (p *Parser) atFdRedirect() bool {
	tok, op := p.peek(), p.peekAt(1)
	if tok.Kind != Identifier || !isRedirOp(op.Kind) || tok.End != op.Offset {
		return false
	}
	for i := 0; i < len(tok.Text); i++ {
		if tok.Text[i] < '0' || tok.Text[i] > '9' {
			return false
		}
	}
	return true
}

func (p *Parser) command() Node {
	start := p.peek()
	cmd := &Command{}

	for {
		tok := p.peek()
		switch {
		case p.atFdRedirect():
			p.pos++
			fd, err := strconv.Atoi(tok.Text)
			if err != nil {
				p.errorf(tok.Offset, "bad file descriptor %q", tok.Text)
				return nil
			}
			redirs := p.redirection(fd, tok.Offset)
			if redirs == nil {
				return nil
			}
			cmd.Redirs = append(cmd.Redirs, redirs...)

		case isRedirOp(tok.Kind):
			redirs := p.redirection(-1, tok.Offset)
			if redirs == nil {
				return nil
			}
			cmd.Redirs = append(cmd.Redirs, redirs...)

		case isWordPart(tok.Kind),
			cmd.Name != nil && tok.Kind == LeftBrace,
			cmd.Name != nil && tok.Kind == RightBrace && p.braces == 0:
			w := p.word()
			if cmd.Name == nil {
				cmd.Name = w
			} else {
				cmd.Args = append(cmd.Args, w)
			}

		default:
			if cmd.Name == nil {
				p.errorf(start.Offset, "expected a command name")
				return nil
			}
			return cmd
		}
	}
}

func (p *Parser) redirection(fd, offset int) []*Redirection {
	op := p.next()

	var kind RedirKind
	switch op.Kind {
	case Less, LessGreat:
		kind = RedirInput
	case Greater, Clobber, AndGreat, AndGreatPipe:
		kind = RedirOutput
	case DGreat:
		kind = RedirAppend
	case LessAnd:
		kind = RedirInputFd
	case GreatAnd:
		kind = RedirOutputFd
	case DLess, DLessDash:
		kind = RedirHereDoc
	default:
		p.errorf(op.Offset, "unsupported redirection %q", op.Text)
		return nil
	}

	target := p.peek()
	if !isWordPart(target.Kind) {
		// A missing target is an error even at the end of input.
		p.addError(&Error{Offset: op.Offset, Msg: fmt.Sprintf("expected a word after %q", op.Text)})
		return nil
	}

	r := &Redirection{Offset: offset, Kind: kind, Fd: fd, Target: p.word()}
	if kind == RedirHereDoc {
		if len(p.hereDocs) == 0 {
			p.errorf(op.Offset, "missing here-document body")
			return nil
		}
		r.Body = p.hereDocs[0].Text
		r.Expand = target.Kind != String
		p.hereDocs = p.hereDocs[1:]
	}

	out := []*Redirection{r}
	if op.Kind == AndGreat || op.Kind == AndGreatPipe {
		out = append(out, &Redirection{
			Offset: op.Offset,
			Kind:   RedirOutputFd,
			Fd:     2,
			Target: &Word{Offset: op.Offset, End: op.End, Text: "1", Parts: []Node{Lit(op.Offset, "1", false)}},
		})
	}
	return out
}

// continuesWord reports whether tok can be glued to the word before it.
func (p *Parser) continuesWord(tok Token) bool {
	return isWordPart(tok.Kind) || tok.Kind == LeftBrace || tok.Kind == RightBrace
}

// word glues the current token and every token directly adjacent to it into
// a single Word.
func (p *Parser) word() *Word {
	first := p.next()
	w := &Word{Offset: first.Offset}

	var text strings.Builder
	prev := first
	for tok := first; ; tok = p.next() {
		text.WriteString(tok.Raw())
		for _, part := range p.wordParts(tok) {
			w.appendPart(part)
		}
		prev = tok

		if next := p.peek(); next.Offset != prev.End || !p.continuesWord(next) {
			break
		}
	}

	w.End = prev.End
	w.Text = text.String()
	return w
}

func (w *Word) appendPart(part Node) {
	if lit, ok := part.(*Word); ok && len(w.Parts) > 0 {
		if last, ok := w.Parts[len(w.Parts)-1].(*Word); ok && last.Quoted == lit.Quoted && len(last.Parts) == 0 {
			last.Text += lit.Text
			last.End = lit.End
			return
		}
	}
	w.Parts = append(w.Parts, part)
}

func (p *Parser) wordParts(tok Token) []Node {
	switch tok.Kind {
	case String:
		if tok.Quote == '"' {
			return p.splitDoubleQuoted(tok)
		}
		return []Node{Lit(tok.Offset, tok.Text, true)}

	case Variable:
		return []Node{p.paramExp(tok, false)}

	case CommandSubst:
		return []Node{p.cmdSubst(tok, false)}

	case Arithmetic:
		return []Node{&ArithExp{Offset: tok.Offset, Expr: tok.Text}}

	default:
		return []Node{Lit(tok.Offset, unescape(tok.Text), false)}
	}
}

// unescape drops the backslash from escaped characters outside quotes.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var out strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		out.WriteByte(s[i])
	}
	return out.String()
}

func (p *Parser) paramExp(tok Token, quoted bool) Node {
	switch {
	case tok.Text == "":
		return Lit(tok.Offset, "$", quoted)
	case strings.HasPrefix(tok.Text, "{"):
		name := strings.TrimSuffix(strings.TrimPrefix(tok.Text, "{"), "}")
		return &ParamExp{Offset: tok.Offset, Name: name, Braced: true, Quoted: quoted}
	default:
		return &ParamExp{Offset: tok.Offset, Name: tok.Text, Quoted: quoted}
	}
}

var backtickEscapes = strings.NewReplacer("\\`", "`", `\$`, `$`, `\\`, `\`)

func (p *Parser) cmdSubst(tok Token, quoted bool) Node {
	src, base := tok.Text, tok.Offset+2
	if tok.Quote == '`' {
		src, base = backtickEscapes.Replace(tok.Text), tok.Offset+1
	}

	// Nested parses log their own diagnostics.
	body, errs := parseAt(src, base, p.logger)
	p.errs = append(p.errs, errs...)

	return &CmdSubst{Offset: tok.Offset, Body: body, Backtick: tok.Quote == '`', Quoted: quoted}
}

// splitDoubleQuoted breaks the body of a double-quoted string into literal
// text and expansions.
func (p *Parser) splitDoubleQuoted(tok Token) []Node {
	text, base := tok.Text, tok.Offset+1

	var parts []Node
	var lit strings.Builder
	litStart := base
	flush := func(next int) {
		if lit.Len() > 0 {
			parts = append(parts, Lit(litStart, lit.String(), true))
			lit.Reset()
		}
		litStart = next
	}

	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '\\' && i+1 < len(text):
			switch n := text[i+1]; n {
			case '$', '`', '"', '\\':
				lit.WriteByte(n)
			case '\n':
			default:
				lit.WriteByte('\\')
				lit.WriteByte(n)
			}
			i += 2

		case c == '$' || c == '`':
			sub := newLexerAt(text[i:], base+i, p.logger)
			inner := sub.next()
			p.errs = append(p.errs, sub.Errors()...)
			inner.Offset += base + i
			inner.End += base + i

			flush(inner.End)
			switch inner.Kind {
			case Variable:
				parts = append(parts, p.paramExp(inner, true))
			case CommandSubst:
				parts = append(parts, p.cmdSubst(inner, true))
			case Arithmetic:
				parts = append(parts, &ArithExp{Offset: inner.Offset, Expr: inner.Text, Quoted: true})
			}
			i = inner.End - base

		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush(base + len(text))

	if len(parts) == 0 {
		parts = append(parts, Lit(base, "", true))
	}

	// Merge "$" literals from bare dollars into the surrounding text.
	out := &Word{}
	for _, part := range parts {
		out.appendPart(part)
	}
	return out.Parts
}
