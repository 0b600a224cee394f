package testutil

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/vk/actiongrid/internal/target"
)

// Call records one FakeTarget.Run invocation.
type Call struct {
	Cmd  string
	Args []string
	Dir  string
}

// Argv returns the command followed by its arguments.
func (c Call) Argv() []string {
	return append([]string{c.Cmd}, c.Args...)
}

// FakeTarget is an in-memory target.Target. Directories and files live in
// maps; Run delegates to Handler, which defaults to a successful empty result.
type FakeTarget struct {
	Wd      string
	Handler func(c Call) (target.Result, error)
	// Err, when set, is returned by every operation to simulate an
	// unreachable host.
	Err error

	mu    sync.Mutex
	calls []Call
	dirs  map[string]bool
	files map[string][]byte
}

var _ target.Target = (*FakeTarget)(nil)

// NewFakeTarget creates a fake rooted at wd.
func NewFakeTarget(wd string) *FakeTarget {
	return &FakeTarget{
		Wd:    wd,
		dirs:  map[string]bool{wd: true},
		files: make(map[string][]byte),
	}
}

// Name implements target.Target.
func (f *FakeTarget) Name() string { return "fake" }

// Run implements target.Target.
func (f *FakeTarget) Run(_ context.Context, cmd string, args []string, dir string) (target.Result, error) {
	f.mu.Lock()
	c := Call{Cmd: cmd, Args: append([]string(nil), args...), Dir: dir}
	f.calls = append(f.calls, c)
	handler, err := f.Handler, f.Err
	f.mu.Unlock()

	if err != nil {
		return target.Result{}, err
	}
	if handler == nil {
		return target.Result{}, nil
	}
	return handler(c)
}

// Calls returns a copy of every Run invocation so far.
func (f *FakeTarget) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// MkdirAll implements target.Target.
func (f *FakeTarget) MkdirAll(_ context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	for dir := path.Clean(p); dir != "/" && dir != "."; dir = path.Dir(dir) {
		f.dirs[dir] = true
	}
	return nil
}

// Exists implements target.Target.
func (f *FakeTarget) Exists(_ context.Context, p string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	p = path.Clean(p)
	_, isFile := f.files[p]
	return f.dirs[p] || isFile, nil
}

// Getwd implements target.Target.
func (f *FakeTarget) Getwd(context.Context) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	return f.Wd, nil
}

// WriteFile implements target.Target.
func (f *FakeTarget) WriteFile(_ context.Context, p string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if !f.dirs[path.Dir(path.Clean(p))] {
		return fmt.Errorf("write %s: %w", p, fs.ErrNotExist)
	}
	f.files[path.Clean(p)] = append([]byte(nil), data...)
	return nil
}

// ReadFile implements target.Target.
func (f *FakeTarget) ReadFile(_ context.Context, p string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	data, ok := f.files[path.Clean(p)]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", p, fs.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

// Close implements target.Target.
func (f *FakeTarget) Close(context.Context) error { return nil }

// File returns the content of a file written through the fake.
func (f *FakeTarget) File(p string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path.Clean(p)]
	return string(data), ok
}

// Reply returns a Handler that answers every call with the given output.
func Reply(exitCode int, stdout, stderr string) func(Call) (target.Result, error) {
	return func(Call) (target.Result, error) {
		return target.Result{ExitCode: exitCode, Stdout: stdout, Stderr: stderr}, nil
	}
}

// Joined renders a call for assertions, e.g. "mpirun -np 2 ls -a".
func Joined(c Call) string {
	return strings.Join(c.Argv(), " ")
}
