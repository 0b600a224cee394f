package action

import (
	"context"
	"fmt"
	"time"

	"github.com/looplab/fsm"
)

// State is the lifecycle state of an Action.
type State int

const (
	New State = iota
	Prepared
	Running
	// Submitted and Finished are only reached by scheduled actions.
	Submitted
	Finished
	Succeeded
	Failed
	Ignored
)

var stateNames = [...]string{
	New:       "NEW",
	Prepared:  "PREPARED",
	Running:   "RUNNING",
	Submitted: "SUBMITTED",
	Finished:  "FINISHED",
	Succeeded: "SUCCEEDED",
	Failed:    "FAILED",
	Ignored:   "IGNORED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// IsTerminal reports whether no further transition can leave s.
func (s State) IsTerminal() bool {
	return s == Succeeded || s == Failed || s == Ignored
}

// ParseState is the inverse of State.String.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", name)
}

// Transition events.
const (
	eventPrepare = "prepare"
	eventSkip    = "skip"
	eventStart   = "start"
	eventSucceed = "succeed"
	eventFail    = "fail"
	eventSubmit  = "submit"
	eventFinish  = "finish"
)

var transitions = fsm.Events{
	{Name: eventPrepare, Src: []string{New.String()}, Dst: Prepared.String()},
	{Name: eventSkip, Src: []string{New.String()}, Dst: Ignored.String()},
	{Name: eventStart, Src: []string{Prepared.String()}, Dst: Running.String()},
	{Name: eventSubmit, Src: []string{Running.String()}, Dst: Submitted.String()},
	{Name: eventFinish, Src: []string{Submitted.String()}, Dst: Finished.String()},
	{Name: eventSucceed, Src: []string{Running.String(), Finished.String()}, Dst: Succeeded.String()},
	{Name: eventFail, Src: []string{Running.String(), Submitted.String(), Finished.String()}, Dst: Failed.String()},
}

// Transition describes one state change of an Action.
type Transition struct {
	Action *Action
	From   State
	To     State
	At     time.Time
}

// Observer is notified synchronously after every transition.
type Observer interface {
	OnTransition(ctx context.Context, tr Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, tr Transition)

// OnTransition implements Observer.
func (f ObserverFunc) OnTransition(ctx context.Context, tr Transition) { f(ctx, tr) }

// newMachine builds the state machine of a. The enter_state callback fans
// transitions out to the observers.
func newMachine(a *Action) *fsm.FSM {
	return fsm.NewFSM(
		New.String(),
		transitions,
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				from, _ := ParseState(e.Src)
				to, _ := ParseState(e.Dst)
				a.state.Store(int32(to))
				a.notify(ctx, Transition{Action: a, From: from, To: to, At: time.Now()})
			},
		},
	)
}

// fire moves the machine along event. The context passed to the machine is
// detached from cancellation so a cancelled caller cannot leave a transition
// half applied.
func (a *Action) fire(ctx context.Context, event string) error {
	if err := a.machine.Event(context.WithoutCancel(ctx), event); err != nil {
		return fmt.Errorf("action %s: %s from %s: %w", a.prefix, event, a.machine.Current(), err)
	}
	return nil
}
