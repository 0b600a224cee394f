package tdep

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/vk/actiongrid/internal/action"
	"github.com/vk/actiongrid/internal/runner"
)

// FCInputs are the infile.* files extract_forceconstants reads.
var FCInputs = []string{"forces", "meta", "positions", "ssposcar", "stat", "ucposcar"}

// FCParams parametrizes one extract_forceconstants run.
type FCParams struct {
	Rc2 float64 `json:"rc2"`
	Rc3 float64 `json:"rc3"`
	// InputRoot holds the infile.* files. Relative roots resolve against
	// the action directory; the default ".." is the directory the action
	// is created in.
	InputRoot string `json:"input_root"`
	Exec
}

// DefaultInputRoot is the directory holding the infile.* files when
// FCParams.InputRoot is empty.
const DefaultInputRoot = ".."

// Default implements registry.Defaulter.
func (p *FCParams) Default() {
	p.InputRoot = p.inputRoot()
}

func (p FCParams) inputRoot() string {
	if p.InputRoot == "" {
		return DefaultInputRoot
	}
	return p.InputRoot
}

// Validate implements registry.Validator.
func (p *FCParams) Validate() error {
	if p.Rc2 <= 0 {
		return errors.New("rc2 must be positive")
	}
	if p.Rc3 < 0 {
		return errors.New("rc3 must not be negative")
	}
	return nil
}

type fcVariant struct{}

func (fcVariant) Prefix(p FCParams) string {
	return fmt.Sprintf("fc.%s_%s", formatFloat(p.Rc2), formatFloat(p.Rc3))
}

func (fcVariant) BuildArgs(p FCParams, _ *action.Action) ([]string, error) {
	return []string{"-rc2", formatFloat(p.Rc2), "-rc3", formatFloat(p.Rc3)}, nil
}

func (fcVariant) Stage(ctx context.Context, s *action.Staging, p FCParams) error {
	for _, name := range FCInputs {
		src := path.Join(p.inputRoot(), "infile."+name)
		if err := s.Link(ctx, src, "infile."+name); err != nil {
			return err
		}
	}
	return nil
}

func (fcVariant) Command(p FCParams) runner.Command { return p.command("extract_forceconstants") }

func (fcVariant) Ranks(p FCParams) int { return p.Ranks }

// ForceConstants is the "fc" kind.
var ForceConstants = action.MustDefine[FCParams]("fc", fcVariant{})
