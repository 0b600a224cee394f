package shell

import (
	"context"
	"errors"
	"sort"

	"github.com/vk/actiongrid/internal/action"
	"github.com/vk/actiongrid/internal/registry"
	"github.com/vk/actiongrid/internal/runner"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Params defines the arguments for a shell action.
type Params struct {
	// Label is the directory name of the action.
	Label string `json:"label"`
	// Command is the executable followed by its arguments.
	Command []string `json:"command"`
	Ranks   int      `json:"ranks"`
	// Files are written into the action directory before it runs.
	Files map[string]string `json:"files"`
	// ParentFiles are linked from the parent's directory under the same name.
	ParentFiles []string `json:"parent_files"`
}

// Validate implements registry.Validator.
func (p *Params) Validate() error {
	var errs []error
	if p.Label == "" {
		errs = append(errs, errors.New("label is required"))
	}
	if len(p.Command) == 0 || p.Command[0] == "" {
		errs = append(errs, errors.New("command must name an executable"))
	}
	if p.Ranks < 0 {
		errs = append(errs, errors.New("ranks must not be negative"))
	}
	return errors.Join(errs...)
}

type variant struct {
	action.Base[Params]
}

func (variant) Prefix(p Params) string { return p.Label }

func (variant) Command(p Params) runner.Command {
	if len(p.Command) == 0 {
		return runner.Command{}
	}
	return runner.NewCommand(p.Command[0], p.Command[1:]...)
}

func (variant) Ranks(p Params) int { return p.Ranks }

func (variant) Stage(ctx context.Context, s *action.Staging, p Params) error {
	names := make([]string, 0, len(p.Files))
	for name := range p.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.WriteFile(ctx, name, []byte(p.Files[name])); err != nil {
			return err
		}
	}

	for _, name := range p.ParentFiles {
		src, err := s.ParentFile(name)
		if err != nil {
			return err
		}
		if err := s.Link(ctx, src, name); err != nil {
			return err
		}
	}
	return nil
}

// Kind runs an arbitrary command line in its own directory.
var Kind = action.MustDefine[Params]("shell", variant{})

// Register registers the shell kind.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterKind(registry.FromKind(Kind))
}
