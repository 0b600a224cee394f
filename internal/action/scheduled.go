package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vk/actiongrid/internal/target"
	"golang.org/x/sync/errgroup"
)

// DefaultPollInterval is the delay between two scheduler queries.
const DefaultPollInterval = 5 * time.Second

// Scheduler is the batch system a scheduled action submits to.
type Scheduler interface {
	// JobID extracts the job identifier from the submission output of a.
	JobID(ctx context.Context, a *Action) (string, error)
	// Active returns the listing of jobs still known to the scheduler.
	Active(ctx context.Context, t target.Target) (string, error)
}

// VerifyFunc inspects the artifacts of a finished job and reports success.
type VerifyFunc func(ctx context.Context, a *Action) (bool, error)

// Scheduled is an action whose command submits a batch job.
type Scheduled struct {
	*Action
	scheduler Scheduler
	interval  time.Duration
	verify    VerifyFunc

	mu    sync.Mutex
	jobID string
}

// ScheduledOption configures a Scheduled action.
type ScheduledOption func(*Scheduled)

// WithPollInterval sets the delay between scheduler queries.
func WithPollInterval(d time.Duration) ScheduledOption {
	return func(s *Scheduled) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithVerify resolves Finished into Succeeded or Failed with fn.
func WithVerify(fn VerifyFunc) ScheduledOption {
	return func(s *Scheduled) { s.verify = fn }
}

// NewScheduled wraps a for submission to s.
func NewScheduled(a *Action, s Scheduler, opts ...ScheduledOption) *Scheduled {
	sa := &Scheduled{Action: a, scheduler: s, interval: DefaultPollInterval}
	for _, opt := range opts {
		opt(sa)
	}
	return sa
}

// JobID returns the identifier assigned at submission, or "".
func (s *Scheduled) JobID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobID
}

// Submit runs the submission command of a Prepared action and moves it to
// Submitted. A non-zero exit fails the action. Any other state is a no-op.
func (s *Scheduled) Submit(ctx context.Context) error {
	a := s.Action
	a.mu.Lock()
	defer a.mu.Unlock()
	logger := a.logger(ctx)

	if st := a.State(); st != Prepared {
		logger.Warn("Submit called outside PREPARED, ignoring.", "state", st)
		return nil
	}

	code, err := a.execute(ctx)
	if err != nil {
		return a.failWith(ctx, err)
	}
	if code != 0 {
		logger.Info("Submission failed.", "exit_code", code, "state", Failed)
		return a.fire(ctx, eventFail)
	}
	if err := a.fire(ctx, eventSubmit); err != nil {
		return err
	}

	id, err := s.scheduler.JobID(ctx, a)
	if err == nil && id == "" {
		err = errors.New("empty job id")
	}
	if err != nil {
		return a.failWith(ctx, fmt.Errorf("action %s: extracting job id: %w", a.prefix, err))
	}

	s.mu.Lock()
	s.jobID = id
	s.mu.Unlock()
	logger.Info("Job submitted.", "job_id", id, "state", Submitted)
	return nil
}

// Wait polls the scheduler until the job id no longer appears in the active
// listing, then moves the action to Finished, or to Succeeded/Failed when a
// verify hook is set. Cancelling ctx stops polling and leaves the action
// Submitted; the remote job keeps running. A failed query is returned and
// also leaves the action Submitted.
func (s *Scheduled) Wait(ctx context.Context) error {
	a := s.Action
	if st := a.State(); st != Submitted {
		a.logger(ctx).Warn("Wait called outside SUBMITTED, ignoring.", "state", st)
		return nil
	}
	id := s.JobID()
	logger := a.logger(ctx).With("job_id", id)

	for {
		listing, err := s.scheduler.Active(ctx, a.target)
		if err != nil {
			return fmt.Errorf("action %s: polling job %s: %w", a.prefix, id, err)
		}
		// Substring membership mirrors how the queue listing is read; an id
		// that is a prefix of another queued id keeps the loop waiting.
		if !strings.Contains(listing, id) {
			break
		}
		logger.Debug("Job still queued.", "interval", s.interval)

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn("Polling cancelled, job left on the scheduler.", "state", Submitted)
			return ctx.Err()
		case <-timer.C:
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// A concurrent Wait on the same job may have resolved it already.
	if st := a.State(); st != Submitted {
		logger.Debug("Job already resolved by another waiter.", "state", st)
		return nil
	}
	logger.Info("Job left the queue.", "state", Finished)
	if err := a.fire(ctx, eventFinish); err != nil {
		return err
	}
	if s.verify == nil {
		return nil
	}

	ok, err := s.verify(ctx, a)
	if err != nil {
		return a.failWith(ctx, fmt.Errorf("action %s: verifying job %s: %w", a.prefix, id, err))
	}
	if !ok {
		logger.Info("Job output rejected.", "state", Failed)
		return a.fire(ctx, eventFail)
	}
	logger.Info("Job output accepted.", "state", Succeeded)
	return a.fire(ctx, eventSucceed)
}

// Run submits the job and waits for it.
func (s *Scheduled) Run(ctx context.Context) error {
	if err := s.Submit(ctx); err != nil {
		return err
	}
	return s.Wait(ctx)
}

// SubmitAll submits jobs in slice order. It stops at the first error.
func SubmitAll(ctx context.Context, jobs []*Scheduled) error {
	for _, j := range jobs {
		if err := j.Submit(ctx); err != nil {
			return err
		}
	}
	return nil
}

// WaitAll waits for every job concurrently and returns the first error. One
// failing poll does not cancel the others.
func WaitAll(ctx context.Context, jobs []*Scheduled) error {
	var g errgroup.Group
	for _, j := range jobs {
		g.Go(func() error { return j.Wait(ctx) })
	}
	return g.Wait()
}

// RunAll submits every job in order before any polling starts, then waits
// for all of them.
func RunAll(ctx context.Context, jobs []*Scheduled) error {
	if err := SubmitAll(ctx, jobs); err != nil {
		return err
	}
	return WaitAll(ctx, jobs)
}
