package ir

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/josephlewis42/tinysh/core/syntax"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *syntax.Sequence {
	t.Helper()

	seq, errs := syntax.ParseString(src, nil)
	require.Empty(t, errs)
	return seq
}

func TestLower_conditionals(t *testing.T) {
	cases := map[string]struct {
		input string
		want  []Instruction
	}{
		"and": {
			input: "echo a && echo b",
			want: []Instruction{
				{ExpandWords, 0, 0},
				{Exec, 0, -1},
				{JumpIfNonZero, 2, 0},
				{ExpandWords, 1, 0},
				{Exec, 1, -1},
			},
		},
		"or": {
			input: "true || echo b",
			want: []Instruction{
				{ExpandWords, 0, 0},
				{Exec, 0, -1},
				{JumpIfZero, 2, 0},
				{ExpandWords, 1, 0},
				{Exec, 1, -1},
			},
		},
		"chain": {
			input: "a && b || c",
			want: []Instruction{
				{ExpandWords, 0, 0},
				{Exec, 0, -1},
				{JumpIfNonZero, 2, 0},
				{ExpandWords, 1, 0},
				{Exec, 1, -1},
				{JumpIfZero, 2, 0},
				{ExpandWords, 2, 0},
				{Exec, 2, -1},
			},
		},
		"block on the right": {
			input: "a || { b; c; }",
			want: []Instruction{
				{ExpandWords, 0, 0},
				{Exec, 0, -1},
				{JumpIfZero, 4, 0},
				{ExpandWords, 1, 0},
				{Exec, 1, -1},
				{ExpandWords, 2, 0},
				{Exec, 2, -1},
			},
		},
		"assignment": {
			input: "A=1 && echo $A",
			want: []Instruction{
				{SetVar, 0, 1},
				{JumpIfNonZero, 2, 0},
				{ExpandWords, 2, 0},
				{Exec, 2, -1},
			},
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			prog := Lower(mustParse(t, tc.input))

			assert.Equal(t, tc.want, prog.Instrs)
		})
	}
}

func TestLower_emptyRightSide(t *testing.T) {
	left := mustParse(t, "true").Stmts[0]
	prog := Lower(&syntax.Conditional{Kind: syntax.And, Left: left, Right: &syntax.Sequence{}})

	assert.Equal(t, []Instruction{
		{ExpandWords, 0, 0},
		{Exec, 0, -1},
		{JumpIfNonZero, 0, 0},
	}, prog.Instrs)
}

func TestLower_jumpsInRange(t *testing.T) {
	inputs := []string{
		"a && b && c && d",
		"a || b || c",
		"a && { b || c; } && d",
		"a && (b || c) | d || e &",
		"x=$(a && b) || y=`c || d`",
	}

	var check func(t *testing.T, prog *Program)
	check = func(t *testing.T, prog *Program) {
		for pc, in := range prog.Instrs {
			if in.Op == JumpIfNonZero || in.Op == JumpIfZero {
				assert.GreaterOrEqual(t, in.Arg0, 0)
				assert.LessOrEqual(t, pc+1+in.Arg0, len(prog.Instrs))
			}
		}
		for _, sub := range prog.Subprograms {
			check(t, sub)
		}
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			check(t, Lower(mustParse(t, input)))
		})
	}
}

func TestLower_idempotent(t *testing.T) {
	seq := mustParse(t, "FOO=bar; (cd /tmp && ls \"$FOO\") | wc -l > out & echo $((1+2)) $(pwd) <<EOF\nbody $HOME\nEOF\n")

	first, second := Lower(seq), Lower(seq)
	assert.Equal(t, first, second)

	var a, b bytes.Buffer
	require.NoError(t, Dump(&a, first))
	require.NoError(t, Dump(&b, second))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestLower_words(t *testing.T) {
	prog := Lower(mustParse(t, `echo pre${X}post "$Y" '' $(pwd)`))

	require.Len(t, prog.Words, 1)
	assert.Equal(t, Word{
		{Kind: Literal, Value: "echo"},
		{Kind: Literal, Value: "pre"},
		{Kind: Variable, Value: "X", Join: true},
		{Kind: Literal, Value: "post", Join: true},
		{Kind: Variable, Value: "Y", Quoted: true},
		{Kind: Literal, Value: "", Quoted: true},
		{Kind: Command, Sub: 0},
	}, prog.Words[0])
	require.Len(t, prog.Subprograms, 1)
}

func TestDump(t *testing.T) {
	cases := map[string]string{
		"conditional": `FOO=bar && echo $FOO > out.txt || echo "failed $?"`,
		"processes":   "(cd /tmp && pwd) | cat; sleep 1 & echo $(date)",
		"heredoc":     "cat <<EOF >out\nhi $USER\nEOF\n",
	}

	g := goldie.New(
		t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithDiffEngine(goldie.ColoredDiff),
		goldie.WithTestNameForDir(true),
	)

	for tn, input := range cases {
		t.Run(tn, func(t *testing.T) {
			buf := &bytes.Buffer{}
			require.NoError(t, Dump(buf, Lower(mustParse(t, input))))

			g.Assert(t, tn, buf.Bytes())
		})
	}
}
