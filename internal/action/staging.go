package action

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/vk/actiongrid/internal/target"
)

// Staging is handed to Variant.Stage to populate a freshly created action
// directory. Relative paths resolve under the action path.
type Staging struct {
	action *Action
}

// Path returns the directory being staged.
func (s *Staging) Path() string { return s.action.path }

// Parent returns the parent action, or nil.
func (s *Staging) Parent() *Action { return s.action.parent }

// Target returns the execution target.
func (s *Staging) Target() target.Target { return s.action.target }

// Resolve makes p absolute under the action path.
func (s *Staging) Resolve(p string) string {
	if path.IsAbs(p) || strings.HasPrefix(p, "~") {
		return p
	}
	return path.Join(s.action.path, p)
}

// ParentFile resolves name inside the parent's directory.
func (s *Staging) ParentFile(name string) (string, error) {
	if s.action.parent == nil {
		return "", fmt.Errorf("action %s has no parent", s.action.prefix)
	}
	return s.action.parent.File(name), nil
}

// Link creates a symbolic link dst pointing at src.
func (s *Staging) Link(ctx context.Context, src, dst string) error {
	return s.shell(ctx, "ln", "-sf", src, s.Resolve(dst))
}

// Copy copies src to dst recursively.
func (s *Staging) Copy(ctx context.Context, src, dst string) error {
	return s.shell(ctx, "cp", "-r", src, s.Resolve(dst))
}

// Edit rewrites name in place with a sed expression.
func (s *Staging) Edit(ctx context.Context, name, expr string) error {
	return s.shell(ctx, "sed", "-i", expr, s.Resolve(name))
}

// WriteFile writes data to name.
func (s *Staging) WriteFile(ctx context.Context, name string, data []byte) error {
	return s.action.target.WriteFile(ctx, s.Resolve(name), data)
}

func (s *Staging) shell(ctx context.Context, cmd string, args ...string) error {
	res, err := s.action.target.Run(ctx, cmd, args, s.action.path)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s %s: exit code %d: %s", cmd, strings.Join(args, " "), res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}
