package workflow

import (
	"github.com/vk/actiongrid/internal/action"
)

// Entry is the outcome of one declared action.
type Entry struct {
	Name      string       `json:"name"`
	Kind      string       `json:"kind"`
	Prefix    string       `json:"prefix,omitempty"`
	Path      string       `json:"path,omitempty"`
	State     action.State `json:"-"`
	StateName string       `json:"state"`
	Scheduled bool         `json:"scheduled"`
	JobID     string       `json:"job_id,omitempty"`
	BlockedBy string       `json:"blocked_by,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Report lists every declared action in declaration order.
type Report struct {
	Entries []Entry `json:"actions"`
}

// Failed reports whether any action failed or hit an error.
func (r *Report) Failed() bool {
	for _, e := range r.Entries {
		if e.State == action.Failed || e.Error != "" {
			return true
		}
	}
	return false
}

// Counts tallies entries per state name.
func (r *Report) Counts() map[string]int {
	counts := make(map[string]int)
	for _, e := range r.Entries {
		counts[e.StateName]++
	}
	return counts
}

// Snapshot returns the current report. It is safe to call while Run is in
// progress.
func (d *Driver) Snapshot() *Report {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := &Report{Entries: make([]Entry, 0, len(d.entries))}
	for _, e := range d.entries {
		en := Entry{
			Name:      e.decl.Name,
			Kind:      e.decl.Kind,
			Scheduled: e.decl.Scheduled,
			BlockedBy: e.blockedBy,
		}
		if e.act != nil {
			en.Prefix = e.act.Prefix()
			en.Path = e.act.Path()
			en.State = e.act.State()
		}
		en.StateName = en.State.String()
		if e.scheduled != nil {
			en.JobID = e.scheduled.JobID()
		}
		if e.err != nil {
			en.Error = e.err.Error()
		}
		r.Entries = append(r.Entries, en)
	}
	return r
}
