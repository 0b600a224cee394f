// Package runner wraps a single external command invocation. A Runner is
// single-use: it executes at most once and keeps the exit code and the
// split output streams of that one execution.
package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vk/actiongrid/internal/ctxlog"
	"github.com/vk/actiongrid/internal/target"
)

// Messages returned by Run.
const (
	MsgLaunched        = "attempted command execution"
	MsgAlreadyExecuted = "command already executed, skipping"
)

// Runner executes one command against a target.
type Runner struct {
	command  Command
	args     []string
	dir      string
	ranks    int
	launcher string

	mu       sync.Mutex
	ran      bool
	hasCode  bool
	exitCode int
	stdout   []string
	stderr   []string
}

// Option configures a Runner.
type Option func(*Runner)

// WithDir sets the working directory of the command.
func WithDir(dir string) Option {
	return func(r *Runner) { r.dir = dir }
}

// WithRanks runs the command under the MPI launcher with n ranks. Zero
// disables the wrapper.
func WithRanks(n int) Option {
	return func(r *Runner) { r.ranks = n }
}

// WithLauncher overrides the MPI launcher executable.
func WithLauncher(path string) Option {
	return func(r *Runner) {
		if path != "" {
			r.launcher = path
		}
	}
}

// New creates a Runner for cmd followed by args.
func New(cmd Command, args []string, opts ...Option) *Runner {
	r := &Runner{
		command:  cmd,
		args:     append([]string(nil), args...),
		launcher: DefaultLauncher,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddArg appends a bare argument.
func (r *Runner) AddArg(arg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.args = append(r.args, arg)
}

// AddFlag appends an argument of the form arg=value.
func (r *Runner) AddFlag(arg, value string) {
	r.AddArg(fmt.Sprintf("%s=%s", arg, value))
}

// Program returns the command that is actually invoked: the bound command
// with the caller arguments appended, wrapped by the MPI launcher when a
// rank count is configured.
func (r *Runner) Program() Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.program()
}

func (r *Runner) program() Command {
	full := r.command.With(r.args...)
	if r.ranks > 0 {
		return MPI(r.launcher, r.ranks, full)
	}
	return full
}

// Dir returns the working directory the command runs in.
func (r *Runner) Dir() string {
	return r.dir
}

// Run executes the command once. The returned flag reports whether the
// command was launched by this call; a second call returns false with
// MsgAlreadyExecuted and leaves the captured results untouched. A non-zero
// exit code is not an error.
func (r *Runner) Run(ctx context.Context, t target.Target) (bool, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ran {
		return false, MsgAlreadyExecuted, nil
	}
	r.ran = true

	prog := r.program()
	ctxlog.FromContext(ctx).Debug("Running command.", "program", prog.String(), "dir", r.dir, "target", t.Name())

	res, err := t.Run(ctx, prog.Path, prog.Args, r.dir)
	if err != nil {
		return true, MsgLaunched, fmt.Errorf("running %s: %w", prog.Path, err)
	}

	r.hasCode = true
	r.exitCode = res.ExitCode
	r.stdout = splitLines(res.Stdout)
	r.stderr = splitLines(res.Stderr)
	return true, MsgLaunched, nil
}

// ExitCode returns the exit code and whether one was captured.
func (r *Runner) ExitCode() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exitCode, r.hasCode
}

// Stdout returns a copy of the captured stdout lines.
func (r *Runner) Stdout() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stdout...)
}

// Stderr returns a copy of the captured stderr lines.
func (r *Runner) Stderr() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stderr...)
}

// splitLines splits on "\n" only, so that strings.Join(lines, "\n")
// reproduces the original text exactly.
func splitLines(s string) []string {
	return strings.Split(s, "\n")
}
