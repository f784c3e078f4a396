package interp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"testing"

	"github.com/josephlewis42/tinysh/core/ir"
	"github.com/josephlewis42/tinysh/core/syntax"
	"github.com/josephlewis42/tinysh/core/vos"
	"github.com/josephlewis42/tinysh/core/vos/vostest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPrograms = map[string]vos.ProcessFunc{
	"echo": func(v vos.VOS) int {
		fmt.Fprintln(v.Stdout(), strings.Join(v.Args()[1:], " "))
		return 0
	},
	"cat": func(v vos.VOS) int {
		io.Copy(v.Stdout(), v.Stdin())
		return 0
	},
	"wc": func(v vos.VOS) int {
		n, _ := io.Copy(io.Discard, v.Stdin())
		fmt.Fprintln(v.Stdout(), n)
		return 0
	},
	"warn": func(v vos.VOS) int {
		fmt.Fprintln(v.Stderr(), strings.Join(v.Args()[1:], " "))
		return 0
	},
	"pwd": func(v vos.VOS) int {
		fmt.Fprintln(v.Stdout(), v.Getwd())
		return 0
	},
	"true":  func(vos.VOS) int { return 0 },
	"false": func(vos.VOS) int { return 1 },
}

var testBuiltins = map[string]vos.ProcessFunc{
	"exit": func(v vos.VOS) int {
		code := 0
		if len(v.Args()) > 1 {
			code, _ = strconv.Atoi(v.Args()[1])
		}
		v.Exit(code)
		return code
	},
	"cd": func(v vos.VOS) int {
		if err := v.Chdir(v.Args()[1]); err != nil {
			fmt.Fprintln(v.Stderr(), err)
			return 1
		}
		return 0
	},
}

type testShell struct {
	*Runner
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestShell(stdin string) *testShell {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	proc := vostest.NewDeterministicProc(vos.NewVIOAdapter(strings.NewReader(stdin), stdout, stderr))

	r := New(proc, &vostest.FuncSpawner{Resolver: vostest.MapResolver(testPrograms)})
	r.Builtins = vostest.MapResolver(testBuiltins)

	return &testShell{Runner: r, stdout: stdout, stderr: stderr}
}

func (s *testShell) run(t *testing.T, src string) int {
	t.Helper()

	seq, errs := syntax.ParseString(src, nil)
	require.False(t, syntax.IsFatal(errs), "parse errors: %v", errs)

	code, err := s.Run(context.Background(), ir.Lower(seq))
	require.NoError(t, err)
	return code
}

func TestRunner_scripts(t *testing.T) {
	cases := map[string]struct {
		script string
		stdin  string
		stdout string
		stderr string
		status int
	}{
		"and both":                {script: "echo a && echo b", stdout: "a\nb\n"},
		"and short circuit":       {script: "false && echo b", status: 1},
		"or short circuit":        {script: "true || echo b"},
		"or fallback":             {script: "false || echo b", stdout: "b\n"},
		"chained":                 {script: "false && echo a || echo b", stdout: "b\n"},
		"sequence":                {script: "echo a; false", stdout: "a\n", status: 1},
		"assignment":              {script: "FOO=bar; echo $FOO", stdout: "bar\n"},
		"assignment before cmd":   {script: "FOO=bar echo $FOO", stdout: "bar\n"},
		"default value":           {script: `echo "${UNSET:-dflt}"`, stdout: "dflt\n"},
		"last status":             {script: "false; echo $?", stdout: "1\n"},
		"empty unquoted dropped":  {script: "echo a $UNSET b", stdout: "a b\n"},
		"quoted empty kept":       {script: `echo a "" b`, stdout: "a  b\n"},
		"arithmetic":              {script: "X=4; echo $((X * 2 + 1))", stdout: "9\n"},
		"arithmetic ternary":      {script: "echo $((1 ? 2 : 3)) $((2 ** 4))", stdout: "2 16\n"},
		"arithmetic assignment":   {script: "echo $((N = 5)); echo $N", stdout: "5\n5\n"},
		"parameter length":        {script: "echo ${#USER}", stdout: "6\n"},
		"quotes in substitution":  {script: `echo "$(echo "a  b")"`, stdout: "a  b\n"},
		"non-ascii words":         {script: "echo ok; echo café", stdout: "ok\ncafé\n"},
		"carriage returns":        {script: "echo a\r\necho b\r\n", stdout: "a\nb\n"},
		"closing brace argument":  {script: "echo }", stdout: "}\n"},
		"parameter suffix":        {script: "F=report.txt; echo ${F%.txt}", stdout: "report\n"},
		"heredoc substitution":    {script: "cat <<EOF\n[$(echo inner)] $((1 + 1))\nEOF\n", stdout: "[inner] 2\n"},
		"command substitution":    {script: "echo x$(echo inner)y", stdout: "xinnery\n"},
		"backtick substitution":   {script: "echo `echo tick`", stdout: "tick\n"},
		"nested substitution":     {script: `echo "$(echo $(echo deep))"`, stdout: "deep\n"},
		"pipeline":                {script: "echo hello | cat | wc", stdout: "6\n"},
		"pipeline last status":    {script: "echo x | false", status: 1},
		"pipeline ignores first":  {script: "false | true"},
		"pipeline stdin":          {script: "cat | cat", stdin: "from stdin", stdout: "from stdin"},
		"pipe stderr":             {script: "warn oops |& wc", stdout: "5\n"},
		"subshell status":         {script: "(exit 3); echo $?", stdout: "3\n"},
		"subshell isolates vars":  {script: `(FOO=x); echo "[$FOO]"`, stdout: "[]\n"},
		"subshell isolates cwd":   {script: "(cd /tmp; pwd); pwd", stdout: "/tmp\n/home/tester\n"},
		"block shares state":      {script: "{ cd /tmp; }; pwd", stdout: "/tmp\n"},
		"exit stops":              {script: "echo a; exit 4; echo b", stdout: "a\n", status: 4},
		"not found":               {script: "nosuch", stderr: "tinysh: nosuch: command not found\n", status: StatusNotFound},
		"not found then continue": {script: "nosuch || echo recovered", stdout: "recovered\n", stderr: "tinysh: nosuch: command not found\n"},
		"heredoc":                 {script: "cat <<EOF\nhello $USER\nEOF\n", stdout: "hello tester\n"},
		"heredoc literal":         {script: "cat <<'EOF'\nhello $USER\nEOF\n", stdout: "hello $USER\n"},
		"stderr to stdout":        {script: "warn x 2>&1 | wc", stdout: "2\n"},
		"closed stdout":           {script: "echo gone >&-"},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			s := newTestShell(tc.stdin)
			status := s.run(t, tc.script)

			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.stdout, s.stdout.String())
			assert.Equal(t, tc.stderr, s.stderr.String())
		})
	}
}

func TestRunner_statusPersists(t *testing.T) {
	s := newTestShell("")

	assert.Equal(t, 1, s.run(t, "false"))
	assert.Equal(t, 1, s.Status())

	s.run(t, "echo $?")
	assert.Equal(t, "1\n", s.stdout.String())
}

func TestRunner_redirects(t *testing.T) {
	s := newTestShell("")

	s.run(t, "echo one > out.txt; echo two >> out.txt; warn err 2> /tmp/err.txt")

	content, err := afero.ReadFile(s.Proc.Fs(), "/home/tester/out.txt")
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(content))

	content, err = afero.ReadFile(s.Proc.Fs(), "/tmp/err.txt")
	require.NoError(t, err)
	assert.Equal(t, "err\n", string(content))

	s.run(t, "cat < out.txt")
	assert.Equal(t, "one\ntwo\n", s.stdout.String())

	status := s.run(t, "cat < missing.txt")
	assert.Equal(t, 1, status)
	assert.Equal(t, "tinysh: missing.txt: No such file or directory\n", s.stderr.String())
}

func TestRunner_redirectTruncates(t *testing.T) {
	s := newTestShell("")

	s.run(t, "echo first > f; echo second > f")

	content, err := afero.ReadFile(s.Proc.Fs(), "/home/tester/f")
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(content))
}

func TestRunner_ambiguousRedirect(t *testing.T) {
	s := newTestShell("")

	status := s.run(t, "echo x > $UNSET")
	assert.Equal(t, 1, status)
	assert.Contains(t, s.stderr.String(), "ambiguous redirect")
}

func TestRunner_background(t *testing.T) {
	s := newTestShell("ignored")

	status := s.run(t, "cat &")
	assert.Equal(t, 0, status)

	ids := s.Jobs.IDs()
	require.Len(t, ids, 1)

	code, ok := s.Jobs.Wait(ids[0])
	assert.True(t, ok)
	assert.Equal(t, 0, code)

	// Background jobs don't read the terminal.
	assert.Equal(t, "", s.stdout.String())
	assert.Empty(t, s.Jobs.IDs())
}

func TestRunner_backgroundStatus(t *testing.T) {
	s := newTestShell("")

	s.run(t, "false & echo started")
	s.Jobs.WaitAll()

	assert.Equal(t, "started\n", s.stdout.String())
	assert.Equal(t, 0, s.Status())
}

func TestRunner_restricted(t *testing.T) {
	cases := map[string]struct {
		script string
		stderr string
	}{
		"cd":          {script: "cd /tmp", stderr: "tinysh: cd: restricted\n"},
		"slash":       {script: "/bin/echo hi", stderr: "tinysh: /bin/echo: restricted\n"},
		"path":        {script: "PATH=/tmp", stderr: "tinysh: PATH: readonly variable\n"},
		"redirection": {script: "echo hi > out", stderr: "tinysh: restricted: cannot redirect output\n"},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			s := newTestShell("")
			s.Restricted = true

			assert.Equal(t, 1, s.run(t, tc.script))
			assert.Equal(t, tc.stderr, s.stderr.String())
			assert.Equal(t, "/home/tester", s.Proc.Getwd())
			assert.Equal(t, "/bin:/usr/bin", s.Proc.Getenv("PATH"))
		})
	}
}

func TestRunner_getVar(t *testing.T) {
	prog := &ir.Program{
		Words: []ir.Word{
			{{Kind: ir.Literal, Value: "HOME"}},
			{{Kind: ir.Literal, Value: "UNSET"}},
		},
		Instrs: []ir.Instruction{{Op: ir.GetVar, Arg0: 0}},
	}

	s := newTestShell("")
	code, err := s.Run(context.Background(), prog)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	prog.Instrs[0].Arg0 = 1
	code, err = s.Run(context.Background(), prog)
	require.NoError(t, err)
	assert.Equal(t, 1, code)
}

func TestRunner_canceled(t *testing.T) {
	s := newTestShell("")

	seq, _ := syntax.ParseString("echo a", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Run(ctx, ir.Lower(seq))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.stdout.String())
}

type failingSpawner struct{}

func (failingSpawner) Spawn(*vos.Proc, []string) (vos.Process, error) {
	return nil, vos.ErrNoResources
}

func TestRunner_spawnFailureIsFatal(t *testing.T) {
	s := newTestShell("")
	s.Spawner = failingSpawner{}

	seq, _ := syntax.ParseString("echo a; echo b", nil)
	_, err := s.Run(context.Background(), ir.Lower(seq))
	assert.ErrorIs(t, err, ErrSpawn)
}

func TestRunner_pipelineSpawnFailureIsFatal(t *testing.T) {
	s := newTestShell("")
	s.Spawner = failingSpawner{}

	seq, _ := syntax.ParseString("echo a | cat | wc; echo after", nil)
	_, err := s.Run(context.Background(), ir.Lower(seq))
	assert.ErrorIs(t, err, ErrSpawn)
	assert.Empty(t, s.stdout.String())
}

func TestRunner_trace(t *testing.T) {
	s := newTestShell("")
	buf := &bytes.Buffer{}
	s.Trace = log.New(buf, "", 0)

	s.run(t, "true")
	assert.Equal(t, "0 ExpandWords 0 0\n1 Exec 0 -1\n", buf.String())
}
