// Package action implements the action execution engine: a stateful unit of
// work wrapping one external command invocation together with the directory
// it runs in.
//
// An action is created from a Kind, which validates the customization points
// of a variant once at definition time. Prepare allocates the directory and
// stages inputs, skipping actions whose directory already exists, so a
// workflow can be re-run after a partial failure without redoing work. Run
// executes the command once and resolves the final state from its exit code.
//
// Scheduled actions submit their command to a batch system and poll it until
// the job leaves the queue.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/looplab/fsm"
	"github.com/vk/actiongrid/internal/ctxlog"
	"github.com/vk/actiongrid/internal/runner"
	"github.com/vk/actiongrid/internal/target"
)

// Log files written under the action path by Run.
const (
	OutLog = "out.log"
	ErrLog = "err.log"
)

// Action is one external-process job and its working directory.
type Action struct {
	kind     string
	prefix   string
	path     string
	parent   *Action
	params   any
	target   target.Target
	command  runner.Command
	ranks    int
	launcher string

	buildArgs func(parent *Action) ([]string, error)
	stage     func(ctx context.Context, s *Staging) error

	// mu serializes Prepare and Run.
	mu      sync.Mutex
	machine *fsm.FSM
	state   atomic.Int32
	runner  atomic.Pointer[runner.Runner]

	obsMu     sync.RWMutex
	observers []Observer
}

// Kind returns the name of the kind the action was created from.
func (a *Action) Kind() string { return a.kind }

// Prefix returns the directory name of the action.
func (a *Action) Prefix() string { return a.prefix }

// Path returns the working directory of the action. It never changes.
func (a *Action) Path() string { return a.path }

// Parent returns the parent action, or nil.
func (a *Action) Parent() *Action { return a.parent }

// Params returns the typed parameter record.
func (a *Action) Params() any { return a.params }

// Target returns the execution target the action runs on.
func (a *Action) Target() target.Target { return a.target }

// Command returns the bound command.
func (a *Action) Command() runner.Command { return a.command }

// State returns the current lifecycle state.
func (a *Action) State() State { return State(a.state.Load()) }

// Runner returns the runner of the first Run call, or nil before it.
func (a *Action) Runner() *runner.Runner { return a.runner.Load() }

// File resolves name inside the action path.
func (a *Action) File(name string) string { return path.Join(a.path, name) }

func (a *Action) String() string { return a.kind + ":" + a.prefix }

// Observe registers an additional observer.
func (a *Action) Observe(o Observer) {
	a.obsMu.Lock()
	defer a.obsMu.Unlock()
	a.observers = append(a.observers, o)
}

func (a *Action) notify(ctx context.Context, tr Transition) {
	a.obsMu.RLock()
	obs := append([]Observer(nil), a.observers...)
	a.obsMu.RUnlock()
	for _, o := range obs {
		o.OnTransition(ctx, tr)
	}
}

func (a *Action) logger(ctx context.Context) *slog.Logger {
	return ctxlog.FromContext(ctx).With("action", a.prefix)
}

// Prepare moves a New action to Prepared, or to Ignored when its path
// already exists, in which case staging never runs. A staging error leaves
// the action in New with a half-staged directory on the target. Calling
// Prepare in any other state does nothing.
func (a *Action) Prepare(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	logger := a.logger(ctx)

	if st := a.State(); st != New {
		logger.Warn("Prepare called outside NEW, ignoring.", "state", st)
		return nil
	}

	exists, err := a.target.Exists(ctx, a.path)
	if err != nil {
		return fmt.Errorf("action %s: checking %s: %w", a.prefix, a.path, err)
	}
	if exists {
		logger.Info("Path exists, skipping.", "path", a.path, "state", Ignored)
		return a.fire(ctx, eventSkip)
	}

	if err := a.target.MkdirAll(ctx, a.path); err != nil {
		return fmt.Errorf("action %s: creating %s: %w", a.prefix, a.path, err)
	}
	if err := a.stage(ctx, &Staging{action: a}); err != nil {
		logger.Error("Staging failed, directory left half-staged.", "path", a.path, "error", err)
		return fmt.Errorf("action %s: staging: %w", a.prefix, err)
	}

	logger.Info("Action prepared.", "path", a.path, "state", Prepared)
	return a.fire(ctx, eventPrepare)
}

// Run executes the command of a Prepared action and resolves Succeeded or
// Failed from its exit code. Stdout always goes to out.log; stderr goes to
// err.log only on failure. Calling Run in any other state does nothing. A
// target error fails the action and is returned.
func (a *Action) Run(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if st := a.State(); st != Prepared {
		a.logger(ctx).Warn("Run called outside PREPARED, ignoring.", "state", st)
		return nil
	}

	code, err := a.execute(ctx)
	if err != nil {
		return a.failWith(ctx, err)
	}
	if code != 0 {
		a.logger(ctx).Info("Command failed.", "exit_code", code, "state", Failed)
		return a.fire(ctx, eventFail)
	}
	a.logger(ctx).Info("Command succeeded.", "state", Succeeded)
	return a.fire(ctx, eventSucceed)
}

// execute moves the action to Running, runs the command once and persists
// the logs. It is shared by Run and Scheduled.Submit.
func (a *Action) execute(ctx context.Context) (int, error) {
	logger := a.logger(ctx)
	if err := a.fire(ctx, eventStart); err != nil {
		return 0, err
	}

	args, err := a.buildArgs(a.parent)
	if err != nil {
		return 0, fmt.Errorf("action %s: building arguments: %w", a.prefix, err)
	}

	r := runner.New(a.command, args,
		runner.WithDir(a.path),
		runner.WithRanks(a.ranks),
		runner.WithLauncher(a.launcher),
	)
	a.runner.Store(r)

	launched, msg, err := r.Run(ctx, a.target)
	logger.Debug(msg, "launched", launched, "program", r.Program().String())
	if err != nil {
		return 0, fmt.Errorf("action %s: %w", a.prefix, err)
	}

	code, _ := r.ExitCode()
	if err := a.target.WriteFile(ctx, a.File(OutLog), []byte(strings.Join(r.Stdout(), "\n"))); err != nil {
		return code, fmt.Errorf("action %s: writing %s: %w", a.prefix, OutLog, err)
	}
	if code != 0 {
		if err := a.target.WriteFile(ctx, a.File(ErrLog), []byte(strings.Join(r.Stderr(), "\n"))); err != nil {
			return code, fmt.Errorf("action %s: writing %s: %w", a.prefix, ErrLog, err)
		}
	}
	return code, nil
}

// failWith moves the action to Failed and returns cause, joined with any
// transition error.
func (a *Action) failWith(ctx context.Context, cause error) error {
	a.logger(ctx).Error("Action failed.", "error", cause, "state", Failed)
	if err := a.fire(ctx, eventFail); err != nil {
		return fmt.Errorf("%w (and %v)", cause, err)
	}
	return cause
}
