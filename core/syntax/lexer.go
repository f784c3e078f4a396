package syntax

import (
	"fmt"
	"log"
	"strings"
	"unicode/utf8"
)

type lexState int

const (
	stateNormal lexState = iota
	stateSingleQuote
	stateDoubleQuote
	stateCommandSubst
	stateBacktick
	stateArithmetic
	stateHereDoc
)

type operator struct {
	lexeme string
	kind   TokenKind
}

// operators is searched longest match first, ties go to the earlier entry.
var operators = []operator{
	{">>&|", DGreatAndPipe},
	{">>&", DGreatAnd},
	{">>|", DGreatPipe},
	{">>", DGreat},
	{"<<<", TLess},
	{"<<-", DLessDash},
	{"<<", DLess},
	{"<>", LessGreat},
	{"<|", Less},
	{"<&", LessAnd},
	{"&>|", AndGreatPipe},
	{"&>", AndGreat},
	{"&|", AndPipe},
	{"|&", PipeAmp},
	{"||", OrIf},
	{"&&", AndIf},
	{";;", DoubleSemi},
	{";|", SemiPipe},
	{";&", SemiAnd},
	{"(", LeftParen},
	{")", RightParen},
	{"{", LeftBrace},
	{"}", RightBrace},
	{";", Semicolon},
	{"|", Pipe},
	{"&", Ampersand},
	{"<", Less},
	{">", Greater},
	{">|", Clobber},
	{">&", GreatAnd},
	{"=", Assign},
}

var keywords = map[string]bool{
	"if":       true,
	"then":     true,
	"else":     true,
	"elif":     true,
	"fi":       true,
	"for":      true,
	"while":    true,
	"until":    true,
	"do":       true,
	"done":     true,
	"case":     true,
	"esac":     true,
	"in":       true,
	"function": true,
	"select":   true,
}

type pendingHereDoc struct {
	delim string
	strip bool
}

// Lexer turns shell source into tokens. Errors never stop the scan, they're
// collected and available from Errors once Analyze returns.
type Lexer struct {
	input  string
	base   int
	pos    int
	state  lexState
	logger *log.Logger

	pending []pendingHereDoc
	queue   []Token
	errs    []error
}

// NewLexer creates a lexer over input. If logger is non-nil, errors are
// printed to it as they're found.
func NewLexer(input string, logger *log.Logger) *Lexer {
	return &Lexer{input: input, logger: logger}
}

// newLexerAt creates a lexer over a slice of a larger source starting at
// base so offsets point into the original text.
func newLexerAt(input string, base int, logger *log.Logger) *Lexer {
	return &Lexer{input: input, base: base, logger: logger}
}

// Analyze scans the whole input. The last token is always EOF or Unknown.
func (l *Lexer) Analyze() []Token {
	var out []Token
	for {
		tok := l.next()
		tok.Offset += l.base
		tok.End += l.base
		out = append(out, tok)

		if tok.Kind == EOF || tok.Kind == Unknown {
			return out
		}
	}
}

// Errors returns the diagnostics found so far.
func (l *Lexer) Errors() []error {
	return l.errs
}

func (l *Lexer) report(offset int, format string, args ...interface{}) {
	l.addError(&Error{Offset: l.base + offset, Msg: fmt.Sprintf(format, args...)})
}

// unterminated reports a construct cut off by the end of input.
func (l *Lexer) unterminated(offset int, what string) {
	l.addError(&Error{Offset: l.base + offset, Msg: "unterminated " + what, Incomplete: true})
}

func (l *Lexer) addError(err *Error) {
	l.errs = append(l.errs, err)
	if l.logger != nil {
		l.logger.Println(err)
	}
}

func (l *Lexer) peekAt(n int) byte {
	if l.pos+n < len(l.input) {
		return l.input[l.pos+n]
	}
	return 0
}

func (l *Lexer) skipBlanks() {
	for l.pos < len(l.input) && (l.input[l.pos] == ' ' || l.input[l.pos] == '\t' || l.input[l.pos] == '\r') {
		l.pos++
	}
}

func (l *Lexer) next() Token {
	if len(l.queue) > 0 {
		tok := l.queue[0]
		l.queue = l.queue[1:]
		return tok
	}

	l.skipBlanks()
	if l.pos >= len(l.input) {
		if len(l.pending) > 0 {
			l.pending = nil
			l.unterminated(l.pos, "here-document")
			return Token{Kind: Unknown, Offset: l.pos, End: l.pos}
		}
		return Token{Kind: EOF, Offset: l.pos, End: l.pos}
	}

	switch l.state {
	case stateSingleQuote:
		return l.lexSingleQuote()
	case stateDoubleQuote:
		return l.lexDoubleQuote()
	case stateCommandSubst:
		return l.lexCommandSubst()
	case stateBacktick:
		return l.lexBacktick()
	case stateArithmetic:
		return l.lexArithmetic()
	default:
		return l.lexNormal()
	}
}

func (l *Lexer) lexNormal() Token {
	start := l.pos
	c := l.input[l.pos]

	switch {
	case c == '\\' && l.peekAt(1) == '\n':
		l.pos += 2
		return l.next()

	case c == '\n':
		return l.lexNewline()

	case c == '#':
		for l.pos < len(l.input) && l.input[l.pos] != '\n' {
			l.pos++
		}
		return l.next()

	case c == '\'':
		l.pos++
		l.state = stateSingleQuote
		return l.lexSingleQuote()

	case c == '"':
		l.pos++
		l.state = stateDoubleQuote
		return l.lexDoubleQuote()

	case c == '$' && l.peekAt(1) == '(' && l.peekAt(2) == '(':
		l.pos += 3
		l.state = stateArithmetic
		return l.lexArithmetic()

	case c == '$' && l.peekAt(1) == '(':
		l.pos += 2
		l.state = stateCommandSubst
		return l.lexCommandSubst()

	case c == '`':
		l.pos++
		l.state = stateBacktick
		return l.lexBacktick()

	case c == '$':
		return l.lexVariable()
	}

	if tok, ok := l.matchOperator(); ok {
		if tok.Kind == DLess || tok.Kind == DLessDash {
			l.lexHereDocDelimiter(tok.Kind == DLessDash)
		}
		return tok
	}

	if isWordStart(c) {
		return l.lexWord()
	}

	l.pos++
	if c == ',' {
		return Token{Kind: Comma, Text: ",", Offset: start, End: l.pos}
	}

	l.report(start, "unexpected character %q", c)
	return Token{Kind: Unknown, Text: string(c), Offset: start, End: l.pos}
}

func (l *Lexer) matchOperator() (Token, bool) {
	var best *operator
	for i, op := range operators {
		if best != nil && len(op.lexeme) <= len(best.lexeme) {
			continue
		}
		if strings.HasPrefix(l.input[l.pos:], op.lexeme) {
			best = &operators[i]
		}
	}

	if best == nil {
		return Token{}, false
	}

	start := l.pos
	l.pos += len(best.lexeme)
	return Token{Kind: best.kind, Text: best.lexeme, Offset: start, End: l.pos}, true
}

func isWordChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c >= utf8.RuneSelf || strings.IndexByte("_-./:%~^#", c) >= 0
}

func isGlobChar(c byte) bool {
	return strings.IndexByte("*?[]!@+", c) >= 0
}

func isWordStart(c byte) bool {
	return (isWordChar(c) && c != '#') || isGlobChar(c) || c == '\\'
}

func (l *Lexer) lexWord() Token {
	start := l.pos
	glob := false
	depth := 0

scan:
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case c == '\\':
			if l.peekAt(1) == '\n' {
				break scan
			}
			l.pos += 2
		case isWordChar(c):
			l.pos++
		case isGlobChar(c):
			glob = true
			l.pos++
		case glob && c == '(':
			depth++
			l.pos++
		case depth > 0 && (c == ')' || c == '|'):
			if c == ')' {
				depth--
			}
			l.pos++
		default:
			break scan
		}
	}

	if l.pos > len(l.input) {
		l.pos = len(l.input)
	}

	text := l.input[start:l.pos]
	kind := Identifier
	switch {
	case keywords[text]:
		kind = Keyword
	case glob:
		kind = GlobWord
	}

	return Token{Kind: kind, Text: text, Offset: start, End: l.pos}
}

func (l *Lexer) lexSingleQuote() Token {
	l.state = stateNormal
	start := l.pos
	end := strings.IndexByte(l.input[l.pos:], '\'')
	if end < 0 {
		l.pos = len(l.input)
		l.unterminated(start-1, "single-quoted string")
		return Token{Kind: Unknown, Text: l.input[start:], Offset: start - 1, End: l.pos}
	}

	l.pos += end + 1
	return Token{Kind: String, Text: l.input[start : start+end], Offset: start - 1, End: l.pos, Quote: '\''}
}

func (l *Lexer) lexDoubleQuote() Token {
	l.state = stateNormal
	start := l.pos
	for l.pos < len(l.input) && l.input[l.pos] != '"' {
		switch {
		case l.input[l.pos] == '\\':
			l.pos += 2
		case l.input[l.pos] == '$' && l.peekAt(1) == '(':
			l.skipParens()
		case l.input[l.pos] == '`':
			l.skipBacktick()
		default:
			l.pos++
		}
	}

	if l.pos >= len(l.input) {
		l.pos = len(l.input)
		l.unterminated(start-1, "double-quoted string")
		return Token{Kind: Unknown, Text: l.input[start:], Offset: start - 1, End: l.pos}
	}

	l.pos++
	return Token{Kind: String, Text: l.input[start : l.pos-1], Offset: start - 1, End: l.pos, Quote: '"'}
}

func (l *Lexer) lexVariable() Token {
	start := l.pos
	l.pos++

	switch c := l.peekAt(0); {
	case c == '{':
		end := strings.IndexAny(l.input[l.pos:], "}\n")
		if end < 0 || l.input[l.pos+end] != '}' {
			l.unterminated(start, "variable expansion")
			l.pos++
			for l.pos < len(l.input) && isNameChar(l.input[l.pos]) {
				l.pos++
			}
		} else {
			l.pos += end + 1
		}
	case strings.IndexByte("?$#@*!-0123456789", c) >= 0:
		l.pos++
	default:
		for l.pos < len(l.input) && isNameChar(l.input[l.pos]) {
			l.pos++
		}
	}

	return Token{Kind: Variable, Text: l.input[start+1 : l.pos], Offset: start, End: l.pos}
}

func isNameChar(c byte) bool {
	return c == '_' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9'
}

// skipQuoted moves past a quoted string starting at the current position,
// used while depth counting substitutions.
func (l *Lexer) skipQuoted() {
	quote := l.input[l.pos]
	l.pos++
	for l.pos < len(l.input) && l.input[l.pos] != quote {
		if quote == '"' && l.input[l.pos] == '\\' {
			l.pos++
		}
		l.pos++
	}
	l.pos++
}

// skipParens moves past a $( or $(( group starting at the current position,
// including any quotes nested inside it.
func (l *Lexer) skipParens() {
	l.pos++
	depth := 0
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case '\'', '"':
			l.skipQuoted()
			continue
		case '\\':
			l.pos++
		case '(':
			depth++
		case ')':
			depth--
		}
		l.pos++
		if depth == 0 {
			return
		}
	}
}

// skipBacktick moves past a backtick substitution starting at the current
// position.
func (l *Lexer) skipBacktick() {
	l.pos++
	for l.pos < len(l.input) && l.input[l.pos] != '`' {
		if l.input[l.pos] == '\\' {
			l.pos++
		}
		l.pos++
	}
	l.pos++
}

func (l *Lexer) lexCommandSubst() Token {
	l.state = stateNormal
	tokStart := l.pos - 2
	start := l.pos
	depth := 1

	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case '\'', '"':
			l.skipQuoted()
			continue
		case '\\':
			l.pos++
		case '(':
			depth++
		case ')':
			depth--
		}
		l.pos++
		if depth == 0 {
			break
		}
	}

	if depth != 0 {
		l.pos = len(l.input)
		l.unterminated(tokStart, "command substitution")
		return Token{Kind: CommandSubst, Text: l.input[start:], Offset: tokStart, End: l.pos}
	}

	return Token{Kind: CommandSubst, Text: l.input[start : l.pos-1], Offset: tokStart, End: l.pos}
}

func (l *Lexer) lexBacktick() Token {
	l.state = stateNormal
	start := l.pos
	for l.pos < len(l.input) && l.input[l.pos] != '`' {
		if l.input[l.pos] == '\\' {
			l.pos++
		}
		l.pos++
	}

	if l.pos >= len(l.input) {
		l.pos = len(l.input)
		l.unterminated(start-1, "backtick command substitution")
		return Token{Kind: CommandSubst, Text: l.input[start:], Offset: start - 1, End: l.pos, Quote: '`'}
	}

	l.pos++
	return Token{Kind: CommandSubst, Text: l.input[start : l.pos-1], Offset: start - 1, End: l.pos, Quote: '`'}
}

func (l *Lexer) lexArithmetic() Token {
	l.state = stateNormal
	tokStart := l.pos - 3
	start := l.pos
	depth := 2

	for l.pos < len(l.input) && depth > 0 {
		switch l.input[l.pos] {
		case '(':
			depth++
		case ')':
			depth--
		}
		l.pos++
	}

	if depth != 0 {
		l.pos = len(l.input)
		l.unterminated(tokStart, "arithmetic expression")
		return Token{Kind: Arithmetic, Text: l.input[start:], Offset: tokStart, End: l.pos}
	}

	return Token{Kind: Arithmetic, Text: l.input[start : l.pos-2], Offset: tokStart, End: l.pos}
}

// lexHereDocDelimiter reads the word after a here-document operator, queues
// it as a token and registers the body to be read after the next newline.
func (l *Lexer) lexHereDocDelimiter(strip bool) {
	l.skipBlanks()
	start := l.pos

	var delim strings.Builder
	var quote byte
	quoted := false

scan:
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				delim.WriteByte(c)
			}
			l.pos++
		case c == '\'' || c == '"':
			quote = c
			quoted = true
			l.pos++
		case c == '\\' && l.peekAt(1) != 0:
			quoted = true
			delim.WriteByte(l.input[l.pos+1])
			l.pos += 2
		case strings.IndexByte(" \t\n;&|<>()", c) >= 0:
			break scan
		default:
			delim.WriteByte(c)
			l.pos++
		}
	}

	switch {
	case quote != 0:
		l.unterminated(start, "here-document delimiter")
	case l.pos == start:
		l.report(start, "missing here-document delimiter")
		return
	}

	tok := Token{Kind: Identifier, Text: delim.String(), Offset: start, End: l.pos}
	if quoted {
		tok.Kind = String
		tok.Quote = '\''
	}

	l.queue = append(l.queue, tok)
	l.pending = append(l.pending, pendingHereDoc{delim: delim.String(), strip: strip})
}

// lexNewline emits the bodies of pending here-documents followed by the
// newline token itself.
func (l *Lexer) lexNewline() Token {
	nl := Token{Kind: Newline, Text: "\n", Offset: l.pos, End: l.pos + 1}
	l.pos++

	if len(l.pending) == 0 {
		return nl
	}

	l.state = stateHereDoc
	for _, hd := range l.pending {
		tok := l.lexHereDoc(hd)
		l.queue = append(l.queue, tok)
		if tok.Kind == Unknown {
			break
		}
	}
	l.pending = nil
	l.state = stateNormal

	l.queue = append(l.queue, nl)
	return l.next()
}

func (l *Lexer) lexHereDoc(hd pendingHereDoc) Token {
	start := l.pos

	var body strings.Builder
	for l.pos < len(l.input) {
		var line string
		if end := strings.IndexByte(l.input[l.pos:], '\n'); end < 0 {
			line = l.input[l.pos:]
			l.pos = len(l.input)
		} else {
			line = l.input[l.pos : l.pos+end+1]
			l.pos += end + 1
		}

		if hd.strip {
			line = strings.TrimLeft(line, "\t")
		}

		if strings.TrimSpace(line) == hd.delim {
			return Token{Kind: HereDoc, Text: body.String(), Offset: start, End: l.pos}
		}
		body.WriteString(line)
	}

	l.unterminated(start, "here-document")
	return Token{Kind: Unknown, Text: body.String(), Offset: start, End: l.pos}
}
