package config

import (
	"errors"
	"fmt"
	"strings"
)

func errDuplicate(section string) error {
	return fmt.Errorf("'%s' may only be declared once", section)
}

// Validate checks the structural rules of a workflow: a known target kind,
// unique action names, and parents that refer to an action declared
// earlier, which keeps dependencies to single-parent chains. Known action
// kinds are checked by the registry when actions are built.
func (m *Model) Validate() error {
	var errs []error

	if m.Target != nil {
		switch m.Target.Kind {
		case TargetLocal, "":
		case TargetSSH:
			if m.Target.Host == "" {
				errs = append(errs, errors.New("target 'ssh': host is required"))
			}
			if m.Target.User == "" {
				errs = append(errs, errors.New("target 'ssh': user is required"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown target kind '%s' (want %s or %s)", m.Target.Kind, TargetLocal, TargetSSH))
		}
	}
	if m.Scheduler != nil && m.Scheduler.PollInterval < 0 {
		errs = append(errs, errors.New("scheduler: poll_interval must not be negative"))
	}
	if m.Notify != nil && m.Notify.URL == "" {
		errs = append(errs, errors.New("notify: url is required"))
	}

	seen := make(map[string]bool, len(m.Actions))
	for _, a := range m.Actions {
		where := a.Name
		if a.Source != "" {
			where = fmt.Sprintf("%s (%s)", a.Name, a.Source)
		}
		switch {
		case strings.TrimSpace(a.Name) == "":
			errs = append(errs, fmt.Errorf("action of kind '%s' has no name", a.Kind))
		case seen[a.Name]:
			errs = append(errs, fmt.Errorf("action %s: duplicate name", where))
		}
		if a.Kind == "" {
			errs = append(errs, fmt.Errorf("action %s: kind is required", where))
		}
		if a.Parent != "" {
			if a.Parent == a.Name {
				errs = append(errs, fmt.Errorf("action %s: an action cannot be its own parent", where))
			} else if !seen[a.Parent] {
				errs = append(errs, fmt.Errorf("action %s: parent '%s' must be declared before its children", where, a.Parent))
			}
		}
		seen[a.Name] = true
	}

	return errors.Join(errs...)
}
