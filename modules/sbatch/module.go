// Package sbatch provides the "sbatch" kind: a batch script staged into the
// action directory and submitted to Slurm. Actions of this kind are meant to
// be declared scheduled so the driver polls the queue for them.
package sbatch

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/vk/actiongrid/internal/action"
	"github.com/vk/actiongrid/internal/registry"
	"github.com/vk/actiongrid/internal/runner"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Params defines the arguments for a batch submission.
type Params struct {
	Label string `json:"label"`
	// Script is copied into the action directory. Relative paths resolve
	// against the action directory.
	Script string `json:"script"`
	// Replace maps placeholders in the copied script to their values.
	Replace map[string]string `json:"replace"`
	// Inputs are linked from InputRoot under the same name.
	Inputs    []string `json:"inputs"`
	InputRoot string   `json:"input_root"`
	// Args follow the script name on the sbatch command line.
	Args []string `json:"args"`
}

// Default implements registry.Defaulter.
func (p *Params) Default() {
	p.InputRoot = p.inputRoot()
}

func (p Params) inputRoot() string {
	if p.InputRoot == "" {
		return ".."
	}
	return p.InputRoot
}

// Validate implements registry.Validator.
func (p *Params) Validate() error {
	var errs []error
	if p.Label == "" {
		errs = append(errs, errors.New("label is required"))
	}
	if p.Script == "" {
		errs = append(errs, errors.New("script is required"))
	}
	for k := range p.Replace {
		if k == "" {
			errs = append(errs, errors.New("replace keys must not be empty"))
			break
		}
	}
	return errors.Join(errs...)
}

func (p Params) scriptName() string { return path.Base(p.Script) }

type variant struct{}

func (variant) Prefix(p Params) string { return p.Label }

func (variant) BuildArgs(p Params, _ *action.Action) ([]string, error) {
	return append([]string{p.scriptName()}, p.Args...), nil
}

func (variant) Stage(ctx context.Context, s *action.Staging, p Params) error {
	for _, name := range p.Inputs {
		if err := s.Link(ctx, path.Join(p.inputRoot(), name), name); err != nil {
			return err
		}
	}

	script := p.scriptName()
	if err := s.Copy(ctx, p.Script, script); err != nil {
		return err
	}

	keys := make([]string, 0, len(p.Replace))
	for k := range p.Replace {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.Edit(ctx, script, substitution(k, p.Replace[k])); err != nil {
			return fmt.Errorf("replacing %s: %w", k, err)
		}
	}
	return nil
}

// Kind submits a batch script with sbatch.
var Kind = action.MustDefine[Params]("sbatch", variant{}, action.WithCommand(runner.NewCommand("sbatch")))

// Register registers the sbatch kind.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterKind(registry.FromKind(Kind))
}

// substitution builds a global sed substitution of old by repl, both taken
// literally.
func substitution(old, repl string) string {
	return "s/" + escape(old, `\/.[]*^$`) + "/" + escape(repl, `\/&`) + "/g"
}

func escape(s, special string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\n':
			b.WriteString(`\n`)
			continue
		case strings.ContainsRune(special, r):
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
