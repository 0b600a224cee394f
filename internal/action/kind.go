package action

import (
	"context"
	"errors"
	"fmt"
	"path"
	"reflect"
	"strings"

	"github.com/vk/actiongrid/internal/runner"
	"github.com/vk/actiongrid/internal/target"
)

// ErrInvalidDefinition is wrapped by every error returned from Define.
var ErrInvalidDefinition = errors.New("invalid action definition")

// Variant is the set of customization points every action kind supplies.
// P is the kind's typed parameter record.
type Variant[P any] interface {
	// Prefix derives the directory name of an action from its parameters.
	Prefix(params P) string
	// BuildArgs builds the argument list passed to the command.
	BuildArgs(params P, parent *Action) ([]string, error)
	// Stage links or copies the inputs into the freshly created directory.
	Stage(ctx context.Context, s *Staging, params P) error
}

// Commander is implemented by variants whose executable depends on the
// parameters. It overrides the command bound with WithCommand.
type Commander[P any] interface {
	Command(params P) runner.Command
}

// RankCounter is implemented by variants whose MPI rank count depends on the
// parameters. It overrides the count bound with WithRanks.
type RankCounter[P any] interface {
	Ranks(params P) int
}

// Base supplies default customization points. Embed it and override only
// what the kind needs.
type Base[P any] struct{}

// Prefix returns "", which makes the action fall back to the kind name.
func (Base[P]) Prefix(P) string { return "" }

// BuildArgs returns no arguments.
func (Base[P]) BuildArgs(P, *Action) ([]string, error) { return nil, nil }

// Stage does nothing.
func (Base[P]) Stage(context.Context, *Staging, P) error { return nil }

// Funcs composes a variant out of plain functions. All three are required.
type Funcs[P any] struct {
	PrefixFunc func(params P) string
	ArgsFunc   func(params P, parent *Action) ([]string, error)
	StageFunc  func(ctx context.Context, s *Staging, params P) error
}

// Prefix implements Variant.
func (f Funcs[P]) Prefix(p P) string { return f.PrefixFunc(p) }

// BuildArgs implements Variant.
func (f Funcs[P]) BuildArgs(p P, parent *Action) ([]string, error) { return f.ArgsFunc(p, parent) }

// Stage implements Variant.
func (f Funcs[P]) Stage(ctx context.Context, s *Staging, p P) error { return f.StageFunc(ctx, s, p) }

// Kind is a validated action variant. Actions are created from it with New.
type Kind[P any] struct {
	name      string
	variant   Variant[P]
	command   runner.Command
	ranks     int
	launcher  string
	observers []Observer
}

// KindOption configures a Kind.
type KindOption func(*kindSettings)

type kindSettings struct {
	command   runner.Command
	ranks     int
	launcher  string
	observers []Observer
}

// WithCommand binds the executable and its fixed arguments.
func WithCommand(cmd runner.Command) KindOption {
	return func(s *kindSettings) { s.command = cmd }
}

// WithRanks runs the command under the MPI launcher with n ranks.
func WithRanks(n int) KindOption {
	return func(s *kindSettings) { s.ranks = n }
}

// WithLauncher overrides the MPI launcher.
func WithLauncher(path string) KindOption {
	return func(s *kindSettings) { s.launcher = path }
}

// WithObserver registers an observer for the transitions of every action of
// the kind.
func WithObserver(o Observer) KindOption {
	return func(s *kindSettings) { s.observers = append(s.observers, o) }
}

// Define validates a variant and returns its Kind. Every missing
// customization point is reported, joined into one error.
func Define[P any](name string, v Variant[P], opts ...KindOption) (*Kind[P], error) {
	var s kindSettings
	for _, opt := range opts {
		opt(&s)
	}

	var errs []error
	problem := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: kind %q: %s", ErrInvalidDefinition, name, fmt.Sprintf(format, args...)))
	}

	if strings.TrimSpace(name) == "" {
		problem("name must not be empty")
	}
	if isNil(v) {
		problem("missing variant: prefix derivation, argument-list construction and preparation staging are required")
	}
	if f, ok := v.(Funcs[P]); ok {
		if f.PrefixFunc == nil {
			problem("missing prefix derivation")
		}
		if f.ArgsFunc == nil {
			problem("missing argument-list construction")
		}
		if f.StageFunc == nil {
			problem("missing preparation staging")
		}
	}
	if _, ok := v.(Commander[P]); !ok && s.command.IsZero() {
		problem("missing command")
	}
	if s.ranks < 0 {
		problem("rank count must not be negative, got %d", s.ranks)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return &Kind[P]{
		name:      name,
		variant:   v,
		command:   s.command,
		ranks:     s.ranks,
		launcher:  s.launcher,
		observers: s.observers,
	}, nil
}

// MustDefine is Define that panics, for package-level kind declarations.
func MustDefine[P any](name string, v Variant[P], opts ...KindOption) *Kind[P] {
	k, err := Define(name, v, opts...)
	if err != nil {
		panic(err)
	}
	return k
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// Name returns the kind name.
func (k *Kind[P]) Name() string { return k.name }

// Command returns the executable bound at definition time.
func (k *Kind[P]) Command() runner.Command { return k.command }

// New constructs an action. The path is parent.Path()/prefix, or
// <target working directory>/prefix without a parent. A nil target inherits
// the parent's. Only Getwd touches the target.
func (k *Kind[P]) New(ctx context.Context, params P, parent *Action, t target.Target) (*Action, error) {
	if t == nil {
		if parent == nil {
			return nil, fmt.Errorf("kind %s: no execution target", k.name)
		}
		t = parent.Target()
	}

	prefix := k.variant.Prefix(params)
	if prefix == "" {
		prefix = strings.ToLower(k.name)
	}
	if path.IsAbs(prefix) || strings.Contains(prefix, "/") || prefix == "." || prefix == ".." {
		return nil, fmt.Errorf("kind %s: prefix %q must be a single relative path element", k.name, prefix)
	}

	var root string
	if parent != nil {
		root = parent.Path()
	} else {
		wd, err := t.Getwd(ctx)
		if err != nil {
			return nil, fmt.Errorf("kind %s: resolving working directory: %w", k.name, err)
		}
		root = wd
	}

	cmd := k.command
	if c, ok := k.variant.(Commander[P]); ok {
		cmd = c.Command(params)
	}
	if cmd.IsZero() {
		return nil, fmt.Errorf("kind %s: action %s has no command", k.name, prefix)
	}
	ranks := k.ranks
	if rc, ok := k.variant.(RankCounter[P]); ok {
		ranks = rc.Ranks(params)
	}
	if ranks < 0 {
		return nil, fmt.Errorf("kind %s: rank count must not be negative, got %d", k.name, ranks)
	}

	a := &Action{
		kind:      k.name,
		prefix:    prefix,
		path:      path.Join(root, prefix),
		parent:    parent,
		params:    params,
		target:    t,
		command:   cmd,
		ranks:     ranks,
		launcher:  k.launcher,
		observers: append([]Observer(nil), k.observers...),
		buildArgs: func(parent *Action) ([]string, error) { return k.variant.BuildArgs(params, parent) },
		stage:     func(ctx context.Context, s *Staging) error { return k.variant.Stage(ctx, s, params) },
	}
	a.machine = newMachine(a)
	return a, nil
}
