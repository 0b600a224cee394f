// Package slurm implements action.Scheduler for the Slurm batch system.
package slurm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/vk/actiongrid/internal/action"
	"github.com/vk/actiongrid/internal/ctxlog"
	"github.com/vk/actiongrid/internal/target"
)

// ErrNoJobID is returned when the submission output carries no job id.
var ErrNoJobID = errors.New("no slurm job id in submission output")

var (
	submittedLine = regexp.MustCompile(`^\s*Submitted\s+batch\s+job\s+(\S+)`)
	parsableID    = regexp.MustCompile(`^\s*(\d+)(;\S+)?\s*$`)
)

// Scheduler queries Slurm through commands run on the execution target.
type Scheduler struct {
	squeue []string
	user   string
}

var _ action.Scheduler = (*Scheduler)(nil)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSqueue replaces the queue listing command, e.g. {"squeue", "-h"}.
func WithSqueue(argv ...string) Option {
	return func(s *Scheduler) {
		if len(argv) > 0 {
			s.squeue = append([]string(nil), argv...)
		}
	}
}

// WithUser restricts the listing to one user's jobs.
func WithUser(user string) Option {
	return func(s *Scheduler) { s.user = user }
}

// New creates a Scheduler listing jobs with plain squeue.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{squeue: []string{"squeue"}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ParseJobID extracts the job id from sbatch output. It accepts the default
// "Submitted batch job N" line, whose fourth field is the id, and the
// --parsable form "N" or "N;cluster".
func ParseJobID(out string) (string, error) {
	for _, line := range strings.Split(out, "\n") {
		if m := submittedLine.FindStringSubmatch(line); m != nil {
			return m[1], nil
		}
	}
	for _, line := range strings.Split(out, "\n") {
		if m := parsableID.FindStringSubmatch(line); m != nil {
			return m[1], nil
		}
	}
	return "", ErrNoJobID
}

// JobID reads the submission output persisted in the action's out.log.
func (s *Scheduler) JobID(ctx context.Context, a *action.Action) (string, error) {
	data, err := a.Target().ReadFile(ctx, a.File(action.OutLog))
	if err != nil {
		return "", fmt.Errorf("reading submission output: %w", err)
	}
	id, err := ParseJobID(string(data))
	if err != nil {
		return "", fmt.Errorf("%s: %w", a.File(action.OutLog), err)
	}
	return id, nil
}

// Active returns the squeue listing.
func (s *Scheduler) Active(ctx context.Context, t target.Target) (string, error) {
	args := append([]string(nil), s.squeue[1:]...)
	if s.user != "" {
		args = append(args, "-u", s.user)
	}

	res, err := t.Run(ctx, s.squeue[0], args, "")
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.squeue[0], err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%s exited with code %d: %s", s.squeue[0], res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	ctxlog.FromContext(ctx).Debug("Queried slurm queue.", "lines", strings.Count(res.Stdout, "\n"))
	return res.Stdout, nil
}
