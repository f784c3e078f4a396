package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/abiosoft/readline"
	"github.com/josephlewis42/tinysh/core/config"
	"github.com/josephlewis42/tinysh/core/interp"
	"github.com/josephlewis42/tinysh/core/vos"
	"github.com/josephlewis42/tinysh/core/vos/vostest"
	"github.com/sebdah/goldie/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSession struct {
	*Shell
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestSession(opts Options, configure ...func(*config.Configuration)) *testSession {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	proc := vostest.NewDeterministicProc(vos.NewVIOAdapter(nil, stdout, stderr))

	cfg := config.Default()
	cfg.Color = config.ColorNever
	for _, fn := range configure {
		fn(cfg)
	}

	spawner := &vostest.FuncSpawner{Resolver: vostest.MapResolver(map[string]vos.ProcessFunc{
		"wc": func(v vos.VOS) int {
			n, _ := io.Copy(io.Discard, v.Stdin())
			fmt.Fprintln(v.Stdout(), n)
			return 0
		},
	})}

	return &testSession{
		Shell:  NewShell(proc, spawner, cfg, opts),
		stdout: stdout,
		stderr: stderr,
	}
}

func (ts *testSession) run(t *testing.T, src string) int {
	t.Helper()

	code, err := ts.RunCommand(context.Background(), src)
	require.NoError(t, err)
	return code
}

func TestShell_RunCommand(t *testing.T) {
	cases := map[string]struct {
		script string
		stdout string
		stderr string
		status int
	}{
		"and":              {script: "echo a && echo b", stdout: "a\nb\n"},
		"and short":        {script: "false && echo b", status: 1},
		"or short":         {script: "true || echo b"},
		"assignment":       {script: "FOO=bar; echo $FOO", stdout: "bar\n"},
		"pipeline":         {script: "echo hello | cat | wc", stdout: "6\n"},
		"cd":               {script: "cd /tmp; pwd", stdout: "/tmp\n"},
		"cd home":          {script: "cd /tmp; cd; pwd", stdout: "/home/tester\n"},
		"cd previous":      {script: "cd /tmp; cd -", stdout: "/home/tester\n"},
		"cd missing":       {script: "cd /nope", stderr: "cd: /nope: No such file or directory\n", status: 1},
		"cd in subshell":   {script: "(cd /tmp); pwd", stdout: "/home/tester\n"},
		"export":           {script: "export GREETING=hi; echo $GREETING", stdout: "hi\n"},
		"unset":            {script: `unset HOME; echo "[$HOME]"`, stdout: "[]\n"},
		"type":             {script: "type echo cd", stdout: "echo is a shell builtin\ncd is a shell builtin\n"},
		"type missing":     {script: "type nosuch", stderr: "type: nosuch: not found\n", status: 1},
		"exit":             {script: "exit 3; echo never", status: 3},
		"exit last status": {script: "false; exit", status: 1},
		"exit not numeric": {script: "exit foo", stderr: "exit: foo: numeric argument required\n", status: 2},
		"exit in subshell": {script: "(exit 5); echo $?", stdout: "5\n"},
		"wait":             {script: "true & wait; echo done", stdout: "done\n"},
		"wait unknown":     {script: "wait 99", stderr: "wait: %99: no such job\n", status: interp.StatusNotFound},
		"not found":        {script: "nosuch", stderr: "tinysh: nosuch: command not found\n", status: interp.StatusNotFound},
		"heredoc":          {script: "cat <<EOF\nhello $USER\nEOF\n", stdout: "hello tester\n"},
		"posix unset":      {script: `echo "[$POSIXLY_CORRECT]"`, stdout: "[]\n"},
		"config env":       {script: "echo $SHELL", stdout: "/bin/tinysh\n"},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			ts := newTestSession(Options{})
			status := ts.run(t, tc.script)

			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.stdout, ts.stdout.String())
			assert.Equal(t, tc.stderr, ts.stderr.String())
		})
	}
}

func TestShell_exitEndsSession(t *testing.T) {
	ts := newTestSession(Options{})

	assert.False(t, ts.Exited())
	ts.run(t, "exit 7")
	assert.True(t, ts.Exited())
	assert.Equal(t, 7, ts.Status())
}

func TestShell_syntaxError(t *testing.T) {
	ts := newTestSession(Options{})

	status := ts.run(t, `echo "unterminated`)
	assert.Equal(t, StatusSyntaxError, status)
	assert.Equal(t, StatusSyntaxError, ts.Status())
	assert.Empty(t, ts.stdout.String())
	assert.Contains(t, ts.stderr.String(), "tinysh: 5: unterminated double-quoted string\n")
}

func TestShell_testModes(t *testing.T) {
	g := goldie.New(
		t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithDiffEngine(goldie.ColoredDiff),
		goldie.WithTestNameForDir(true),
	)

	for _, mode := range []TestMode{TestParser, TestExecutor} {
		t.Run(string(mode), func(t *testing.T) {
			ts := newTestSession(Options{TestMode: mode})
			ts.run(t, "echo hi && false")

			g.Assert(t, string(mode), ts.stderr.Bytes())
		})
	}
}

func TestShell_lexerMode(t *testing.T) {
	ts := newTestSession(Options{TestMode: TestLexer})

	status := ts.run(t, "echo hi > out")
	assert.Equal(t, 0, status)
	assert.Empty(t, ts.stdout.String())
	assert.Contains(t, ts.stderr.String(), "[trace] === Tokens ===\n")
	assert.Contains(t, ts.stderr.String(), "[trace] 0 identifier \"echo\"\n")
	assert.Contains(t, ts.stderr.String(), "[trace] 8 > \">\"\n")

	exists, err := afero.Exists(ts.Proc.Fs(), "/home/tester/out")
	require.NoError(t, err)
	assert.False(t, exists, "lexer mode must not execute")
}

func TestParseTestMode(t *testing.T) {
	for _, valid := range []string{"", "lexer", "parser", "executor"} {
		mode, err := ParseTestMode(valid)
		assert.NoError(t, err)
		assert.Equal(t, TestMode(valid), mode)
	}

	_, err := ParseTestMode("optimizer")
	assert.Error(t, err)
}

func TestShell_verbose(t *testing.T) {
	ts := newTestSession(Options{Verbose: true})

	ts.run(t, "echo a\n")
	assert.Equal(t, "a\n", ts.stdout.String())
	assert.Equal(t, "echo a\n", ts.stderr.String())
}

func TestShell_posix(t *testing.T) {
	ts := newTestSession(Options{Posix: true})

	assert.Equal(t, "y", ts.Proc.Getenv(EnvPosix))
}

func TestShell_restricted(t *testing.T) {
	restrictEnv := func(c *config.Configuration) {
		c.RestrictedCommands = []string{"env"}
	}

	cases := map[string]struct {
		script string
		stderr string
	}{
		"configured":   {script: "env", stderr: "tinysh: env: restricted\n"},
		"cd":           {script: "cd /tmp", stderr: "tinysh: cd: restricted\n"},
		"unset path":   {script: "unset PATH", stderr: "unset: PATH: readonly variable\n"},
		"export path":  {script: "export PATH=/tmp", stderr: "export: PATH: readonly variable\n"},
		"assign shell": {script: "SHELL=/bin/evil", stderr: "tinysh: SHELL: readonly variable\n"},
		"redirect":     {script: "echo hi > out", stderr: "tinysh: restricted: cannot redirect output\n"},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			ts := newTestSession(Options{Restricted: true}, restrictEnv)

			assert.Equal(t, 1, ts.run(t, tc.script))
			assert.Equal(t, tc.stderr, ts.stderr.String())
			assert.Equal(t, "/bin:/usr/bin", ts.Proc.Getenv(EnvPath))
		})
	}
}

func TestShell_Prompt(t *testing.T) {
	cases := map[string]struct {
		ps1  string
		user string
		dir  string
		want string
	}{
		"default": {ps1: `\u@\h:\w\$ `, user: "tester", dir: "/home/tester", want: "tester@box:~$ "},
		"subdir":  {ps1: `\u@\h:\w\$ `, user: "tester", dir: "/home/tester/src", want: "tester@box:~/src$ "},
		"outside": {ps1: `\w> `, user: "tester", dir: "/tmp", want: "/tmp> "},
		"root":    {ps1: `\u\$ `, user: "root", dir: "/tmp", want: "root# "},
		"sibling": {ps1: `\w`, user: "tester", dir: "/home/tester2", want: "/home/tester2"},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			ts := newTestSession(Options{})
			require.NoError(t, ts.Proc.Fs().MkdirAll(tc.dir, 0755))
			require.NoError(t, ts.Proc.Chdir(tc.dir))
			ts.Proc.Setenv(EnvPrompt, tc.ps1)
			ts.Proc.Setenv(EnvUser, tc.user)
			ts.Proc.Setenv(EnvHostname, "box")

			assert.Equal(t, tc.want, ts.Prompt())
		})
	}
}

func TestShell_PromptFromConfig(t *testing.T) {
	ts := newTestSession(Options{}, func(c *config.Configuration) {
		c.Prompt = "tiny> "
	})

	assert.Equal(t, "tiny> ", ts.Prompt())
}

type scriptedLines struct {
	lines   []interface{}
	prompts []string
}

func (s *scriptedLines) ReadLine(prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.lines) == 0 {
		return "", io.EOF
	}

	next := s.lines[0]
	s.lines = s.lines[1:]
	if err, ok := next.(error); ok {
		return "", err
	}
	return next.(string), nil
}

func TestShell_RunLines(t *testing.T) {
	ts := newTestSession(Options{Interactive: true})
	lines := &scriptedLines{lines: []interface{}{
		"echo one",
		"",
		readline.ErrInterrupt,
		"nosuch",
		"cd /tmp",
		"exit 4",
		"echo never",
	}}

	status, err := ts.RunLines(context.Background(), lines)
	require.NoError(t, err)

	assert.Equal(t, 4, status)
	assert.Equal(t, "one\n", ts.stdout.String())
	assert.Equal(t, "tinysh: nosuch: command not found\n", ts.stderr.String())
	assert.Equal(t, []string{"echo one", "nosuch", "cd /tmp", "exit 4"}, ts.History())
	assert.Len(t, lines.prompts, 6)
}

func TestShell_RunLinesEOF(t *testing.T) {
	ts := newTestSession(Options{Interactive: true})

	status, err := ts.RunLines(context.Background(), &scriptedLines{lines: []interface{}{"false"}})
	require.NoError(t, err)
	assert.Equal(t, 1, status)
}

func TestShell_RunLinesContinuation(t *testing.T) {
	cases := map[string]struct {
		lines   []interface{}
		stdout  string
		history []string
		prompts int
	}{
		"heredoc": {
			lines:   []interface{}{"cat <<EOF", "hi $USER", "EOF"},
			stdout:  "hi tester\n",
			history: []string{"cat <<EOF\nhi $USER\nEOF"},
			prompts: 4,
		},
		"trailing and": {
			lines:   []interface{}{"echo a &&", "echo b"},
			stdout:  "a\nb\n",
			history: []string{"echo a &&\necho b"},
			prompts: 3,
		},
		"trailing pipe": {
			lines:   []interface{}{"echo piped |", "cat"},
			stdout:  "piped\n",
			history: []string{"echo piped |\ncat"},
			prompts: 3,
		},
		"escaped newline": {
			lines:   []interface{}{`echo a \`, "b"},
			stdout:  "a b\n",
			history: []string{"echo a b"},
			prompts: 3,
		},
		"escaped backslash": {
			lines:   []interface{}{`echo 'a\\'`, "echo b"},
			stdout:  "a\\\\\nb\n",
			history: []string{`echo 'a\\'`, "echo b"},
			prompts: 3,
		},
		"open quote": {
			lines:   []interface{}{`echo "a`, `b"`},
			stdout:  "a\nb\n",
			history: []string{"echo \"a\nb\""},
			prompts: 3,
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			ts := newTestSession(Options{Interactive: true})
			lines := &scriptedLines{lines: tc.lines}

			status, err := ts.RunLines(context.Background(), lines)
			require.NoError(t, err)

			assert.Equal(t, 0, status)
			assert.Equal(t, tc.stdout, ts.stdout.String())
			assert.Empty(t, ts.stderr.String())
			assert.Equal(t, tc.history, ts.History())
			require.Len(t, lines.prompts, tc.prompts)
			if tc.prompts > 2 {
				assert.Equal(t, "> ", lines.prompts[1])
			}
		})
	}
}

func TestShell_RunLinesContinuationEOF(t *testing.T) {
	ts := newTestSession(Options{Interactive: true})
	ts.Proc.Setenv(EnvPrompt2, "more> ")
	lines := &scriptedLines{lines: []interface{}{"echo a &&"}}

	status, err := ts.RunLines(context.Background(), lines)
	require.NoError(t, err)

	assert.Equal(t, StatusSyntaxError, status)
	assert.Empty(t, ts.stdout.String())
	assert.Equal(t, []string{ts.Prompt(), "more> ", ts.Prompt()}, lines.prompts)
}

func TestShell_history(t *testing.T) {
	ts := newTestSession(Options{Interactive: true})
	lines := &scriptedLines{lines: []interface{}{"echo a", "history", "history -c", "history"}}

	_, err := ts.RunLines(context.Background(), lines)
	require.NoError(t, err)

	assert.Equal(t, "a\n    1  echo a\n    2  history\n    1  history\n", ts.stdout.String())
}

func TestShell_reapsJobs(t *testing.T) {
	ts := newTestSession(Options{Interactive: true})
	lines := &scriptedLines{lines: []interface{}{"false &", "wait 1"}}

	_, err := ts.RunLines(context.Background(), lines)
	require.NoError(t, err)

	// The job is either reported before the second prompt or collected
	// by wait.
	assert.Empty(t, ts.Runner.Jobs.IDs())
}

func TestShell_RunFile(t *testing.T) {
	ts := newTestSession(Options{})
	ts.Proc = ts.Proc.WithArgs([]string{"script.sh", "first"})
	ts.Runner.Proc = ts.Proc

	script := "echo $0 $1 $#\nFOO=bar\necho $FOO\n"
	require.NoError(t, afero.WriteFile(ts.Proc.Fs(), "/home/tester/script.sh", []byte(script), 0644))

	status, err := ts.RunFile(context.Background(), "script.sh")
	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assert.Equal(t, "script.sh first 1\nbar\n", ts.stdout.String())
}

func TestShell_RunFileMissing(t *testing.T) {
	ts := newTestSession(Options{})

	status, err := ts.RunFile(context.Background(), "nope.sh")
	require.NoError(t, err)
	assert.Equal(t, interp.StatusNotFound, status)
	assert.Equal(t, "tinysh: nope.sh: No such file or directory\n", ts.stderr.String())
}

func TestShell_RunLogin(t *testing.T) {
	ts := newTestSession(Options{Login: true})

	// No script is fine.
	require.NoError(t, ts.RunLogin(context.Background()))

	profile := "export GREETING=hello\ncd /tmp\n"
	require.NoError(t, afero.WriteFile(ts.Proc.Fs(), "/home/tester/.tinysh_profile", []byte(profile), 0644))
	require.NoError(t, ts.RunLogin(context.Background()))

	assert.Equal(t, "hello", ts.Proc.Getenv("GREETING"))
	assert.Equal(t, "/tmp", ts.Proc.Getwd())
}

func TestBuiltinNames(t *testing.T) {
	names := BuiltinNames()

	for _, want := range []string{"cd", "echo", "exit", "export", "help", "history", "type", "unset", "wait"} {
		assert.Contains(t, names, want)
	}
}

func TestHelp(t *testing.T) {
	ts := newTestSession(Options{})
	ts.run(t, "help")

	assert.Contains(t, ts.stdout.String(), "tinysh version "+Version+"\n")
	assert.Contains(t, ts.stdout.String(), "\nwait\n")
}
