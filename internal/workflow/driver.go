// Package workflow drives the actions declared in a workflow model: it
// builds them in declaration order, prepares and runs direct actions,
// submits scheduled ones and waits for them before any child needs their
// output.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vk/actiongrid/internal/action"
	"github.com/vk/actiongrid/internal/config"
	"github.com/vk/actiongrid/internal/ctxlog"
	"github.com/vk/actiongrid/internal/registry"
	"github.com/vk/actiongrid/internal/target"
	"golang.org/x/sync/errgroup"
)

// Driver runs one workflow model against one execution target.
type Driver struct {
	reg       *registry.Registry
	target    target.Target
	scheduler action.Scheduler
	interval  time.Duration
	verify    action.VerifyFunc
	observers []action.Observer

	mu      sync.Mutex
	entries []*entry
	byName  map[string]*entry
}

type entry struct {
	decl      *config.Action
	act       *action.Action
	scheduled *action.Scheduled
	blockedBy string
	err       error
}

// Option configures a Driver.
type Option func(*Driver)

// WithScheduler sets the batch system used by scheduled actions.
func WithScheduler(s action.Scheduler, pollInterval time.Duration) Option {
	return func(d *Driver) {
		d.scheduler = s
		d.interval = pollInterval
	}
}

// WithVerify resolves finished scheduled jobs into Succeeded or Failed.
func WithVerify(fn action.VerifyFunc) Option {
	return func(d *Driver) { d.verify = fn }
}

// WithObserver attaches an observer to every action the driver builds.
func WithObserver(o action.Observer) Option {
	return func(d *Driver) { d.observers = append(d.observers, o) }
}

// NewDriver creates a Driver.
func NewDriver(reg *registry.Registry, t target.Target, opts ...Option) *Driver {
	d := &Driver{reg: reg, target: t, byName: make(map[string]*entry)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Check verifies that every action kind in m is registered and that
// scheduled actions have a scheduler, before anything runs.
func (d *Driver) Check(m *config.Model) error {
	var errs []error
	for _, decl := range m.Actions {
		if _, ok := d.reg.Kind(decl.Kind); !ok {
			errs = append(errs, fmt.Errorf("action '%s': unknown kind '%s' (known: %v)", decl.Name, decl.Kind, d.reg.Names()))
		}
		if decl.Scheduled && d.scheduler == nil {
			errs = append(errs, fmt.Errorf("action '%s': scheduled but no scheduler configured", decl.Name))
		}
	}
	return errors.Join(errs...)
}

// Run executes the workflow. Direct actions are prepared and, when
// Prepared, run. Scheduled actions are prepared and submitted; their polls
// are deferred until a later action needs one of them as parent, or until
// the end, so independent jobs sit in the queue together. Children of a
// parent that neither succeeded, finished nor was ignored are left New.
//
// Action failures are recorded in the report, not returned. The returned
// error is reserved for an invalid model or a cancelled context.
func (d *Driver) Run(ctx context.Context, m *config.Model) (*Report, error) {
	logger := ctxlog.FromContext(ctx)
	if err := d.Check(m); err != nil {
		return nil, err
	}

	var pending []*entry
	for _, decl := range m.Actions {
		if err := ctx.Err(); err != nil {
			return d.Snapshot(), err
		}

		e := &entry{decl: decl}
		var parent *action.Action
		if decl.Parent != "" {
			pe := d.lookup(decl.Parent)
			if pe == nil {
				return d.Snapshot(), fmt.Errorf("action '%s': unknown parent '%s'", decl.Name, decl.Parent)
			}
			if pe.act == nil {
				e.blockedBy = decl.Parent
				d.add(e)
				logger.Warn("Parent was never built, skipping child.", "name", decl.Name, "parent", decl.Parent)
				continue
			}
			if pe.scheduled != nil && pe.act.State() == action.Submitted {
				d.flush(ctx, pending)
				pending = nil
			}
			parent = pe.act
		}

		act, err := d.build(ctx, decl, parent)
		if err != nil {
			e.err = err
			d.add(e)
			logger.Error("Failed to build action.", "name", decl.Name, "error", err)
			continue
		}
		e.act = act
		if parent != nil && !usable(parent) {
			e.blockedBy = decl.Parent
		}
		d.add(e)

		if e.blockedBy != "" {
			logger.Warn("Parent did not complete, skipping child.", "name", decl.Name, "parent", decl.Parent, "parent_state", parent.State())
			continue
		}

		if err := act.Prepare(ctx); err != nil {
			d.setErr(e, err)
			continue
		}
		if act.State() != action.Prepared {
			continue
		}

		if !decl.Scheduled {
			d.setErr(e, act.Run(ctx))
			continue
		}

		opts := []action.ScheduledOption{action.WithPollInterval(d.interval)}
		if d.verify != nil {
			opts = append(opts, action.WithVerify(d.verify))
		}
		s := action.NewScheduled(act, d.scheduler, opts...)
		d.mu.Lock()
		e.scheduled = s
		d.mu.Unlock()
		if err := s.Submit(ctx); err != nil {
			d.setErr(e, err)
			continue
		}
		if s.State() == action.Submitted {
			pending = append(pending, e)
		}
	}
	d.flush(ctx, pending)

	return d.Snapshot(), ctx.Err()
}

// flush waits for all pending scheduled actions concurrently.
func (d *Driver) flush(ctx context.Context, pending []*entry) {
	if len(pending) == 0 {
		return
	}
	logger := ctxlog.FromContext(ctx)
	logger.Info("Waiting for scheduled actions.", "count", len(pending))

	var g errgroup.Group
	for _, e := range pending {
		g.Go(func() error {
			err := e.scheduled.Wait(ctx)
			d.setErr(e, err)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		logger.Warn("At least one scheduled action did not complete.", "error", err)
	}
}

func (d *Driver) build(ctx context.Context, decl *config.Action, parent *action.Action) (*action.Action, error) {
	bp, _ := d.reg.Kind(decl.Kind)
	var t target.Target
	if parent == nil {
		t = d.target
	}
	act, err := bp.NewFromValue(ctx, decl.Params, parent, t)
	if err != nil {
		return nil, fmt.Errorf("action '%s': %w", decl.Name, err)
	}
	for _, o := range d.observers {
		act.Observe(o)
	}
	return act, nil
}

// usable reports whether children may build on a parent's directory.
func usable(a *action.Action) bool {
	switch a.State() {
	case action.Succeeded, action.Ignored, action.Finished:
		return true
	}
	return false
}

func (d *Driver) add(e *entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, e)
	d.byName[e.decl.Name] = e
}

func (d *Driver) lookup(name string) *entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.byName[name]
}

func (d *Driver) setErr(e *entry, err error) {
	if err == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	e.err = err
}
