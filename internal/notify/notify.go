// Package notify publishes action state transitions: to the structured log,
// and optionally to a socket.io server watching the run.
package notify

import (
	"context"
	"time"

	"github.com/vk/actiongrid/internal/action"
	"github.com/vk/actiongrid/internal/ctxlog"
)

// Event is the wire form of one transition.
type Event struct {
	RunID  string `json:"run_id,omitempty"`
	Kind   string `json:"kind"`
	Prefix string `json:"prefix"`
	Path   string `json:"path"`
	From   string `json:"from"`
	To     string `json:"to"`
	At     string `json:"at"`
}

// NewEvent converts a transition.
func NewEvent(runID string, tr action.Transition) Event {
	return Event{
		RunID:  runID,
		Kind:   tr.Action.Kind(),
		Prefix: tr.Action.Prefix(),
		Path:   tr.Action.Path(),
		From:   tr.From.String(),
		To:     tr.To.String(),
		At:     tr.At.UTC().Format(time.RFC3339Nano),
	}
}

// Map returns the event as a generic map, the shape socket.io serializes.
func (e Event) Map() map[string]any {
	m := map[string]any{
		"kind":   e.Kind,
		"prefix": e.Prefix,
		"path":   e.Path,
		"from":   e.From,
		"to":     e.To,
		"at":     e.At,
	}
	if e.RunID != "" {
		m["run_id"] = e.RunID
	}
	return m
}

// Log writes every transition to the context logger.
type Log struct{}

// OnTransition implements action.Observer.
func (Log) OnTransition(ctx context.Context, tr action.Transition) {
	ctxlog.FromContext(ctx).Debug("Action state changed.",
		"action", tr.Action.Prefix(),
		"from", tr.From,
		"to", tr.To,
	)
}
