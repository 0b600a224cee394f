package action

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/actiongrid/internal/localtarget"
	"github.com/vk/actiongrid/internal/runner"
	"github.com/vk/actiongrid/internal/testutil"
)

type testParams struct {
	Label string
}

// stagingCounter is a variant that records how often staging ran.
type stagingCounter struct {
	Base[testParams]
	mu     sync.Mutex
	staged int
	err    error
}

func (p *stagingCounter) Prefix(params testParams) string { return params.Label }

func (p *stagingCounter) Stage(ctx context.Context, s *Staging, _ testParams) error {
	p.mu.Lock()
	p.staged++
	p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	return s.WriteFile(ctx, "staged.txt", []byte("input"))
}

func (p *stagingCounter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.staged
}

func newLocal(t *testing.T) (*localtarget.Target, string) {
	t.Helper()
	dir := t.TempDir()
	return localtarget.New(dir), dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestAction_EchoSucceeds(t *testing.T) {
	ctx, _ := testutil.Context(t)
	lt, dir := newLocal(t)
	counter := &stagingCounter{}
	kind := MustDefine[testParams]("fc", counter, WithCommand(runner.NewCommand("echo", "hello")))

	a, err := kind.New(ctx, testParams{Label: "fc.6.0_5.0"}, nil, lt)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fc.6.0_5.0"), a.Path())
	assert.Equal(t, New, a.State())
	assert.Nil(t, a.Runner())

	require.NoError(t, a.Prepare(ctx))
	assert.Equal(t, Prepared, a.State())
	assert.Equal(t, 1, counter.count())
	assert.Equal(t, "input", readFile(t, filepath.Join(a.Path(), "staged.txt")))

	require.NoError(t, a.Run(ctx))
	assert.Equal(t, Succeeded, a.State())
	assert.Contains(t, readFile(t, a.File(OutLog)), "hello")
	assert.NoFileExists(t, a.File(ErrLog))
}

func TestAction_ExistingPathIsIgnored(t *testing.T) {
	ctx, logs := testutil.Context(t)
	lt, dir := newLocal(t)
	counter := &stagingCounter{}
	kind := MustDefine[testParams]("fc", counter, WithCommand(runner.NewCommand("echo", "hello")))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "fc.6.0_5.0"), 0o755))

	a, err := kind.New(ctx, testParams{Label: "fc.6.0_5.0"}, nil, lt)
	require.NoError(t, err)
	require.NoError(t, a.Prepare(ctx))

	assert.Equal(t, Ignored, a.State())
	assert.Equal(t, 0, counter.count(), "staging must never run on an existing path")
	assert.NoFileExists(t, filepath.Join(a.Path(), "staged.txt"))
	assert.Contains(t, logs.String(), "Path exists, skipping.")
	assert.Contains(t, logs.String(), "level=INFO")

	// Run outside Prepared is a no-op.
	require.NoError(t, a.Run(ctx))
	assert.Equal(t, Ignored, a.State())
	assert.Nil(t, a.Runner())
	assert.NoFileExists(t, a.File(OutLog))
}

func TestAction_NonZeroExitFails(t *testing.T) {
	ctx, _ := testutil.Context(t)
	lt, _ := newLocal(t)
	kind := MustDefine[testParams]("c", &stagingCounter{}, WithCommand(runner.NewCommand("sh", "-c", "exit 3")))

	a, err := kind.New(ctx, testParams{Label: "c"}, nil, lt)
	require.NoError(t, err)
	require.NoError(t, a.Prepare(ctx))
	require.NoError(t, a.Run(ctx))

	assert.Equal(t, Failed, a.State())
	assert.FileExists(t, a.File(ErrLog))
	assert.Equal(t, "", readFile(t, a.File(OutLog)))
	code, ok := a.Runner().ExitCode()
	require.True(t, ok)
	assert.Equal(t, 3, code)
}

func TestAction_FailurePersistsBothStreams(t *testing.T) {
	ctx, _ := testutil.Context(t)
	lt, _ := newLocal(t)
	script := "echo out-line; echo err-one >&2; echo err-two >&2; exit 1"
	kind := MustDefine[testParams]("c", &stagingCounter{}, WithCommand(runner.NewCommand("sh", "-c", script)))

	a, err := kind.New(ctx, testParams{Label: "both"}, nil, lt)
	require.NoError(t, err)
	require.NoError(t, a.Prepare(ctx))
	require.NoError(t, a.Run(ctx))

	assert.Equal(t, Failed, a.State())
	assert.Equal(t, "out-line\n", readFile(t, a.File(OutLog)))
	assert.Equal(t, "err-one\nerr-two\n", readFile(t, a.File(ErrLog)))
}

func TestAction_OutputLogIsByteIdentical(t *testing.T) {
	ctx, _ := testutil.Context(t)
	lt, _ := newLocal(t)
	text := "line one\n\n  indented\nlast without newline"
	kind := MustDefine[testParams]("p", &stagingCounter{}, WithCommand(runner.NewCommand("printf", "%s", text)))

	a, err := kind.New(ctx, testParams{Label: "p"}, nil, lt)
	require.NoError(t, err)
	require.NoError(t, a.Prepare(ctx))
	require.NoError(t, a.Run(ctx))

	assert.Equal(t, Succeeded, a.State())
	assert.Equal(t, text, readFile(t, a.File(OutLog)))
	assert.Equal(t, text, strings.Join(a.Runner().Stdout(), "\n"))
}

func TestAction_SecondRunIsNoop(t *testing.T) {
	ctx, _ := testutil.Context(t)
	ft := testutil.NewFakeTarget("/work")
	ft.Handler = testutil.Reply(0, "first", "")
	kind := MustDefine[testParams]("x", &stagingCounter{}, WithCommand(runner.NewCommand("echo")))

	a, err := kind.New(ctx, testParams{Label: "x"}, nil, ft)
	require.NoError(t, err)
	require.NoError(t, a.Prepare(ctx))
	require.NoError(t, a.Run(ctx))
	first := a.Runner()
	out, _ := ft.File(a.File(OutLog))

	ft.Handler = testutil.Reply(1, "second", "oops")
	require.NoError(t, a.Run(ctx))

	assert.Equal(t, Succeeded, a.State())
	assert.Same(t, first, a.Runner())
	assert.Equal(t, []string{"first"}, a.Runner().Stdout())
	again, _ := ft.File(a.File(OutLog))
	assert.Equal(t, out, again)
	_, hasErrLog := ft.File(a.File(ErrLog))
	assert.False(t, hasErrLog)

	runs := 0
	for _, c := range ft.Calls() {
		if c.Cmd == "echo" {
			runs++
		}
	}
	assert.Equal(t, 1, runs)
}

func TestAction_RunBeforePrepareIsNoop(t *testing.T) {
	ctx, logs := testutil.Context(t)
	ft := testutil.NewFakeTarget("/work")
	kind := MustDefine[testParams]("x", &stagingCounter{}, WithCommand(runner.NewCommand("echo")))

	a, err := kind.New(ctx, testParams{Label: "x"}, nil, ft)
	require.NoError(t, err)
	require.NoError(t, a.Run(ctx))

	assert.Equal(t, New, a.State())
	assert.Empty(t, ft.Calls())
	assert.Contains(t, logs.String(), "Run called outside PREPARED")
}

func TestAction_PrepareTwiceIsNoop(t *testing.T) {
	ctx, _ := testutil.Context(t)
	ft := testutil.NewFakeTarget("/work")
	counter := &stagingCounter{}
	kind := MustDefine[testParams]("x", counter, WithCommand(runner.NewCommand("echo")))

	a, err := kind.New(ctx, testParams{Label: "x"}, nil, ft)
	require.NoError(t, err)
	require.NoError(t, a.Prepare(ctx))
	require.NoError(t, a.Prepare(ctx))

	assert.Equal(t, Prepared, a.State())
	assert.Equal(t, 1, counter.count())
}

func TestAction_StagingErrorLeavesNew(t *testing.T) {
	ctx, _ := testutil.Context(t)
	ft := testutil.NewFakeTarget("/work")
	counter := &stagingCounter{err: errors.New("missing input")}
	kind := MustDefine[testParams]("x", counter, WithCommand(runner.NewCommand("echo")))

	a, err := kind.New(ctx, testParams{Label: "x"}, nil, ft)
	require.NoError(t, err)

	err = a.Prepare(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, counter.err)
	assert.Equal(t, New, a.State())

	// The half-staged directory now exists, so a retry treats it as done.
	exists, err := ft.Exists(ctx, a.Path())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAction_TargetErrorFails(t *testing.T) {
	ctx, _ := testutil.Context(t)
	ft := testutil.NewFakeTarget("/work")
	kind := MustDefine[testParams]("x", &stagingCounter{}, WithCommand(runner.NewCommand("echo")))

	a, err := kind.New(ctx, testParams{Label: "x"}, nil, ft)
	require.NoError(t, err)
	require.NoError(t, a.Prepare(ctx))

	ft.Err = errors.New("host unreachable")
	err = a.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ft.Err)
	assert.Equal(t, Failed, a.State())
}

func TestAction_ChildPath(t *testing.T) {
	ctx, _ := testutil.Context(t)
	ft := testutil.NewFakeTarget("/scratch")
	kind := MustDefine[testParams]("x", &stagingCounter{}, WithCommand(runner.NewCommand("echo")))

	parent, err := kind.New(ctx, testParams{Label: "fc.6.0_5.0"}, nil, ft)
	require.NoError(t, err)
	assert.Equal(t, "/scratch/fc.6.0_5.0", parent.Path())

	current := parent
	for depth := 1; depth <= 4; depth++ {
		child, err := kind.New(ctx, testParams{Label: "tc.20"}, current, nil)
		require.NoError(t, err)
		assert.Equal(t, current.Path()+"/tc.20", child.Path())
		assert.Same(t, current, child.Parent())
		assert.Same(t, ft, child.Target(), "a child inherits the parent's target")
		current = child
	}
}

func TestAction_ConstructionDoesNotTouchFilesystem(t *testing.T) {
	ctx, _ := testutil.Context(t)
	ft := testutil.NewFakeTarget("/scratch")
	kind := MustDefine[testParams]("x", &stagingCounter{}, WithCommand(runner.NewCommand("echo")))

	_, err := kind.New(ctx, testParams{Label: "a"}, nil, ft)
	require.NoError(t, err)
	assert.Empty(t, ft.Calls())
	exists, _ := ft.Exists(ctx, "/scratch/a")
	assert.False(t, exists)
}

func TestAction_SiblingsDoNotInterfere(t *testing.T) {
	ctx, _ := testutil.Context(t)
	lt, _ := newLocal(t)
	counter := &stagingCounter{}
	parentKind := MustDefine[testParams]("p", counter, WithCommand(runner.NewCommand("true")))
	childKind := MustDefine[testParams]("c", Funcs[testParams]{
		PrefixFunc: func(p testParams) string { return p.Label },
		ArgsFunc: func(p testParams, _ *Action) ([]string, error) {
			return []string{"-c", "echo " + p.Label + "; echo " + p.Label + "-err >&2; cat staged.txt; exit 2"}, nil
		},
		StageFunc: func(ctx context.Context, s *Staging, p testParams) error {
			return s.WriteFile(ctx, "staged.txt", []byte(p.Label))
		},
	}, WithCommand(runner.NewCommand("sh")))

	parent, err := parentKind.New(ctx, testParams{Label: "P"}, nil, lt)
	require.NoError(t, err)
	require.NoError(t, parent.Prepare(ctx))
	require.NoError(t, parent.Run(ctx))
	require.Equal(t, Succeeded, parent.State())

	a, err := childKind.New(ctx, testParams{Label: "left"}, parent, nil)
	require.NoError(t, err)
	b, err := childKind.New(ctx, testParams{Label: "right"}, parent, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, act := range []*Action{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, act.Prepare(ctx))
			assert.NoError(t, act.Run(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, Failed, a.State())
	assert.Equal(t, Failed, b.State())
	assert.Equal(t, "left\nleft", readFile(t, a.File(OutLog)))
	assert.Equal(t, "right\nright", readFile(t, b.File(OutLog)))
	assert.Equal(t, "left-err\n", readFile(t, a.File(ErrLog)))
	assert.Equal(t, "right-err\n", readFile(t, b.File(ErrLog)))
}

func TestAction_ObserverSeesTransitions(t *testing.T) {
	ctx, _ := testutil.Context(t)
	ft := testutil.NewFakeTarget("/work")

	var mu sync.Mutex
	var seen []string
	obs := ObserverFunc(func(_ context.Context, tr Transition) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, tr.From.String()+">"+tr.To.String())
		assert.Equal(t, "x", tr.Action.Prefix())
		assert.False(t, tr.At.IsZero())
	})
	kind := MustDefine[testParams]("x", &stagingCounter{}, WithCommand(runner.NewCommand("echo")), WithObserver(obs))

	a, err := kind.New(ctx, testParams{Label: "x"}, nil, ft)
	require.NoError(t, err)
	require.NoError(t, a.Prepare(ctx))
	require.NoError(t, a.Run(ctx))

	assert.Equal(t, []string{"NEW>PREPARED", "PREPARED>RUNNING", "RUNNING>SUCCEEDED"}, seen)
}

func TestAction_RanksWrapCommand(t *testing.T) {
	ctx, _ := testutil.Context(t)
	ft := testutil.NewFakeTarget("/work")
	kind := MustDefine[testParams]("x", Funcs[testParams]{
		PrefixFunc: func(testParams) string { return "x" },
		ArgsFunc:   func(testParams, *Action) ([]string, error) { return []string{"-a", "./"}, nil },
		StageFunc:  func(context.Context, *Staging, testParams) error { return nil },
	}, WithCommand(runner.NewCommand("ls", "-l")), WithRanks(2))

	a, err := kind.New(ctx, testParams{}, nil, ft)
	require.NoError(t, err)
	require.NoError(t, a.Prepare(ctx))
	require.NoError(t, a.Run(ctx))

	calls := ft.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "mpirun -np 2 ls -l -a ./", testutil.Joined(calls[0]))
	assert.Equal(t, "/work/x", calls[0].Dir)
}
