// Package tdep provides action kinds for the TDEP lattice dynamics tools:
// "fc" runs extract_forceconstants for one pair of cutoffs, and "tc" runs
// thermal_conductivity on a q-point grid against the force constants of its
// parent.
package tdep

import (
	"strconv"
	"strings"

	"github.com/vk/actiongrid/internal/registry"
	"github.com/vk/actiongrid/internal/runner"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the tdep kinds.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterKind(registry.FromKind(ForceConstants))
	r.RegisterKind(registry.FromKind(ThermalConductivity))
}

// Exec holds the execution knobs shared by both kinds.
type Exec struct {
	// Ranks runs the tool under mpirun with this many processes.
	Ranks int `json:"ranks"`
	// Profile wraps the tool with `mprof run --include-children`.
	Profile bool `json:"profile"`
	// Env is forwarded as KEY=VALUE pairs through `env`.
	Env []string `json:"env"`
}

func (e Exec) command(tool string) runner.Command {
	cmd := runner.NewCommand(tool)
	if e.Profile {
		cmd = runner.Mprof(cmd)
	}
	if len(e.Env) > 0 {
		cmd = runner.Env(cmd, e.Env...)
	}
	return cmd
}

// formatFloat renders a cutoff the way it appears in directory names:
// shortest round-trip form, always with a fractional part ("6" → "6.0").
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
