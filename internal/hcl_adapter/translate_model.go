// This file translates the HCL schema structs into the format-agnostic
// workflow model defined in the config package.

package hcl_adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/actiongrid/internal/config"
	"github.com/vk/actiongrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func parseDuration(attr string, s *string) (time.Duration, error) {
	if s == nil || *s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", attr, *s, err)
	}
	return d, nil
}

func translateTarget(t *Target) (*config.Target, error) {
	timeout, err := parseDuration("timeout", t.Timeout)
	if err != nil {
		return nil, fmt.Errorf("target '%s': %w", t.Kind, err)
	}
	return &config.Target{
		Kind:        t.Kind,
		Workdir:     deref(t.Workdir),
		Host:        deref(t.Host),
		Port:        deref(t.Port),
		User:        deref(t.User),
		KeyFile:     deref(t.KeyFile),
		PasswordEnv: deref(t.PasswordEnv),
		KnownHosts:  deref(t.KnownHosts),
		Insecure:    deref(t.Insecure),
		Timeout:     timeout,
	}, nil
}

func translateScheduler(s *Scheduler) (*config.Scheduler, error) {
	interval, err := parseDuration("poll_interval", s.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	return &config.Scheduler{
		PollInterval: interval,
		Squeue:       s.Squeue,
		User:         deref(s.User),
	}, nil
}

func translateNotify(n *Notify) *config.Notify {
	return &config.Notify{
		URL:       n.URL,
		Namespace: deref(n.Namespace),
		Event:     deref(n.Event),
	}
}

// translateAction evaluates the parameters expression without variables or
// functions; parameter objects are plain literals.
func translateAction(ctx context.Context, a *Action) (*config.Action, error) {
	logger := ctxlog.FromContext(ctx).With("action_kind", a.Kind, "action_name", a.Name)
	ctx = ctxlog.WithLogger(ctx, logger)

	params := cty.EmptyObjectVal
	if isExprDefined(ctx, a.Parameters, "parameters") {
		v, diags := a.Parameters.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("action '%s' (%s): invalid parameters: %w", a.Name, a.DeclRange, diags)
		}
		if !v.IsNull() {
			ty := v.Type()
			if !ty.IsObjectType() && !ty.IsMapType() {
				return nil, fmt.Errorf("action '%s' (%s): parameters must be an object, got %s", a.Name, a.DeclRange, ty.FriendlyName())
			}
			params = v
		}
	}

	logger.Debug("Translated HCL action.")
	return &config.Action{
		Kind:      a.Kind,
		Name:      a.Name,
		Parent:    deref(a.Parent),
		Scheduled: deref(a.Scheduled),
		Params:    params,
		Source:    a.DeclRange.String(),
	}, nil
}
