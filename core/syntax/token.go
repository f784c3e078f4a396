package syntax

import (
	"errors"
	"fmt"
)

// TokenKind identifies the lexical class of a Token.
type TokenKind int

const (
	Unknown TokenKind = iota
	EOF
	Newline

	// Literals
	Identifier
	GlobWord
	Keyword
	String
	Variable
	CommandSubst
	Arithmetic
	HereDoc
	Comma
	Assign

	// Operators
	Semicolon     // ;
	Ampersand     // &
	Pipe          // |
	LeftParen     // (
	RightParen    // )
	LeftBrace     // {
	RightBrace    // }
	DoubleSemi    // ;;
	OrIf          // ||
	AndIf         // &&
	Less          // <
	Greater       // >
	Clobber       // >|
	DLess         // <<
	DGreat        // >>
	PipeAmp       // |&
	DGreatPipe    // >>|
	LessGreat     // <>
	DLessDash     // <<-
	LessAnd       // <&
	GreatAnd      // >&
	AndGreat      // &>
	AndGreatPipe  // &>|
	DGreatAnd     // >>&
	DGreatAndPipe // >>&|
	TLess         // <<<
	AndPipe       // &|
	SemiAnd       // ;&
	SemiPipe      // ;|
)

var kindNames = map[TokenKind]string{
	Unknown:       "unknown",
	EOF:           "end-of-file",
	Newline:       "newline",
	Identifier:    "identifier",
	GlobWord:      "glob-word",
	Keyword:       "keyword",
	String:        "string",
	Variable:      "variable",
	CommandSubst:  "command-substitution",
	Arithmetic:    "arithmetic",
	HereDoc:       "here-doc",
	Comma:         "comma",
	Assign:        "=",
	Semicolon:     ";",
	Ampersand:     "&",
	Pipe:          "|",
	LeftParen:     "(",
	RightParen:    ")",
	LeftBrace:     "{",
	RightBrace:    "}",
	DoubleSemi:    ";;",
	OrIf:          "||",
	AndIf:         "&&",
	Less:          "<",
	Greater:       ">",
	Clobber:       ">|",
	DLess:         "<<",
	DGreat:        ">>",
	PipeAmp:       "|&",
	DGreatPipe:    ">>|",
	LessGreat:     "<>",
	DLessDash:     "<<-",
	LessAnd:       "<&",
	GreatAnd:      ">&",
	AndGreat:      "&>",
	AndGreatPipe:  "&>|",
	DGreatAnd:     ">>&",
	DGreatAndPipe: ">>&|",
	TLess:         "<<<",
	AndPipe:       "&|",
	SemiAnd:       ";&",
	SemiPipe:      ";|",
}

func (k TokenKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// IsOperator reports whether the kind is punctuation from the operator
// table.
func (k TokenKind) IsOperator() bool {
	return k >= Semicolon
}

// Token is a lexical unit of shell source.
type Token struct {
	Kind TokenKind
	// Text is the lexeme without its sigil or quotes: the name of a
	// variable, the body of a string, substitution or here-document.
	Text string
	// Offset is the byte offset where the lexeme starts, including any
	// sigil or opening quote.
	Offset int
	// End is the byte offset just past the lexeme.
	End int
	// Quote is the quote character of a String token, '`' for backtick
	// substitutions and 0 otherwise.
	Quote byte
}

func (t Token) String() string {
	return fmt.Sprintf("%d %s %q", t.Offset, t.Kind, t.Text)
}

// ErrSyntax is matched by every lexer and parser error.
var ErrSyntax = errors.New("syntax error")

// Error is a diagnostic tied to a source offset.
type Error struct {
	Offset int
	Msg    string
	// Warning is set for diagnostics that don't invalidate the parse.
	Warning bool
	// Incomplete is set when the input ended inside a construct, so more
	// input could still make it valid.
	Incomplete bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Offset, e.Msg)
}

func (e *Error) Unwrap() error {
	return ErrSyntax
}

// IsFatal reports whether errs holds anything other than warnings.
func IsFatal(errs []error) bool {
	for _, err := range errs {
		var synErr *Error
		if errors.As(err, &synErr) && synErr.Warning {
			continue
		}
		return true
	}
	return false
}

// IsIncomplete reports whether errs is non-empty and every fatal error in
// it could be resolved by reading more input.
func IsIncomplete(errs []error) bool {
	incomplete := false
	for _, err := range errs {
		var synErr *Error
		if !errors.As(err, &synErr) {
			return false
		}
		if synErr.Warning {
			continue
		}
		if !synErr.Incomplete {
			return false
		}
		incomplete = true
	}
	return incomplete
}

// Raw reconstructs the source text of the token.
func (t Token) Raw() string {
	switch t.Kind {
	case String:
		return string(t.Quote) + t.Text + string(t.Quote)
	case Variable:
		return "$" + t.Text
	case CommandSubst:
		if t.Quote == '`' {
			return "`" + t.Text + "`"
		}
		return "$(" + t.Text + ")"
	case Arithmetic:
		return "$((" + t.Text + "))"
	case EOF:
		return ""
	default:
		return t.Text
	}
}
