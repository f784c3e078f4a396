// Package ir holds the linear program shell syntax is lowered into.
package ir

import (
	"fmt"

	"github.com/josephlewis42/tinysh/core/syntax"
)

// OpCode is the operation of an Instruction.
type OpCode int

const (
	// ExpandWords resolves word Arg0 into an argument vector.
	ExpandWords OpCode = iota
	// Exec runs word Arg0 as a command with the redirections at index Arg1
	// of Program.Redirects, -1 if it has none.
	Exec
	// GetVar sets the exit status to 0 if the variable named by word Arg0
	// is set and 1 otherwise.
	GetVar
	// SetVar binds the variable named by word Arg0 to word Arg1.
	SetVar
	// JumpIfNonZero skips Arg0 instructions if the exit status is nonzero.
	JumpIfNonZero
	// JumpIfZero skips Arg0 instructions if the exit status is zero.
	JumpIfZero
	// Subshell runs sub-program Arg0 in a copy of the process image.
	Subshell
	// Background starts sub-program Arg0 in a copy of the process image
	// without waiting for it.
	Background
	// Pipeline runs Arg1 sub-programs starting at Arg0 with their standard
	// streams chained together.
	Pipeline
)

var opNames = [...]string{
	ExpandWords:   "ExpandWords",
	Exec:          "Exec",
	GetVar:        "GetVar",
	SetVar:        "SetVar",
	JumpIfNonZero: "JumpIfNonZero",
	JumpIfZero:    "JumpIfZero",
	Subshell:      "Subshell",
	Background:    "Background",
	Pipeline:      "Pipeline",
}

func (o OpCode) String() string {
	if o >= 0 && int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("OpCode(%d)", int(o))
}

// Instruction is a single step of a Program.
type Instruction struct {
	Op   OpCode
	Arg0 int
	Arg1 int
}

// AtomKind is the type of a WordAtom.
type AtomKind int

const (
	// Literal atoms are used as is.
	Literal AtomKind = iota
	// Variable atoms are looked up in the environment.
	Variable
	// Command atoms are replaced by the output of sub-program Sub.
	Command
	// Arith atoms are evaluated as integer expressions.
	Arith
)

// WordAtom is a piece of a Word.
type WordAtom struct {
	Kind AtomKind
	// Value is the text of a literal, the name of a variable or the
	// arithmetic expression.
	Value string
	// Sub indexes Program.Subprograms for Command atoms.
	Sub int
	// Join is set when the atom continues the previous argument rather
	// than starting a new one.
	Join bool
	// Quoted atoms are never dropped when they expand to nothing.
	Quoted bool
}

// Word is a list of atoms that expand to zero or more arguments.
type Word []WordAtom

// Redirect is a single file descriptor remapping.
type Redirect struct {
	Kind syntax.RedirKind
	Fd   int
	// Target indexes Program.Words; -1 for here-documents.
	Target int
	Body   string
	Expand bool
}

// Program is the lowered form of a parsed command line.
type Program struct {
	Instrs      []Instruction
	Words       []Word
	Redirects   [][]Redirect
	Subprograms []*Program
}

func (p *Program) addWord(w Word) int {
	p.Words = append(p.Words, w)
	return len(p.Words) - 1
}

func (p *Program) emit(op OpCode, arg0, arg1 int) int {
	p.Instrs = append(p.Instrs, Instruction{Op: op, Arg0: arg0, Arg1: arg1})
	return len(p.Instrs) - 1
}
