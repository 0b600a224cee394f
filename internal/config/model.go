package config

import (
	"time"

	"github.com/zclconf/go-cty/cty"
)

// Target kinds.
const (
	TargetLocal = "local"
	TargetSSH   = "ssh"
)

// Model is the unified, format-agnostic representation of a workflow file.
type Model struct {
	Target    *Target
	Scheduler *Scheduler
	Notify    *Notify
	Actions   []*Action
}

// Target describes where commands run.
type Target struct {
	Kind string
	// Workdir is the root under which parentless actions are created. Empty
	// means the target's own working directory.
	Workdir string

	Host        string
	Port        int
	User        string
	KeyFile     string
	PasswordEnv string
	KnownHosts  string
	Insecure    bool
	Timeout     time.Duration
}

// Scheduler configures the Slurm poller used by scheduled actions.
type Scheduler struct {
	PollInterval time.Duration
	Squeue       []string
	User         string
}

// Notify configures the socket.io transition notifier.
type Notify struct {
	URL       string
	Namespace string
	Event     string
}

// Action is one declared action. Params holds the raw parameter object,
// decoded into the kind's typed record when the action is built.
type Action struct {
	Kind      string
	Name      string
	Parent    string
	Scheduled bool
	Params    cty.Value
	// Source is where the action was declared, for error messages.
	Source string
}

// Merge appends other into m. Singleton sections may only be set once.
func (m *Model) Merge(other *Model) error {
	if other.Target != nil {
		if m.Target != nil {
			return errDuplicate("target")
		}
		m.Target = other.Target
	}
	if other.Scheduler != nil {
		if m.Scheduler != nil {
			return errDuplicate("scheduler")
		}
		m.Scheduler = other.Scheduler
	}
	if other.Notify != nil {
		if m.Notify != nil {
			return errDuplicate("notify")
		}
		m.Notify = other.Notify
	}
	m.Actions = append(m.Actions, other.Actions...)
	return nil
}

// ApplyDefaults fills in the sections a workflow may omit.
func (m *Model) ApplyDefaults() {
	if m.Target == nil {
		m.Target = &Target{}
	}
	if m.Target.Kind == "" {
		m.Target.Kind = TargetLocal
	}
	if m.Target.Kind == TargetSSH && m.Target.Port == 0 {
		m.Target.Port = 22
	}
	if m.Scheduler == nil {
		m.Scheduler = &Scheduler{}
	}
	if len(m.Scheduler.Squeue) == 0 {
		m.Scheduler.Squeue = []string{"squeue"}
	}
	if m.Notify != nil && m.Notify.Event == "" {
		m.Notify.Event = "transition"
	}
	for _, a := range m.Actions {
		if a.Params.IsNull() {
			a.Params = cty.EmptyObjectVal
		}
	}
}
