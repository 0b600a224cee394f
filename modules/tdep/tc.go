package tdep

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/vk/actiongrid/internal/action"
	"github.com/vk/actiongrid/internal/runner"
)

// DefaultTemperature is used when a tc action sets none, in kelvin.
const DefaultTemperature = 300

// TCParams parametrizes one thermal_conductivity run.
type TCParams struct {
	// Qg is the size of the cubic q-point grid.
	Qg          int     `json:"qg"`
	Temperature float64 `json:"temperature"`
	Exec
}

// Default implements registry.Defaulter.
func (p *TCParams) Default() {
	p.Temperature = p.temperature()
}

func (p TCParams) temperature() float64 {
	if p.Temperature == 0 {
		return DefaultTemperature
	}
	return p.Temperature
}

// Validate implements registry.Validator.
func (p *TCParams) Validate() error {
	if p.Qg <= 0 {
		return errors.New("qg must be positive")
	}
	return nil
}

type tcVariant struct{}

func (tcVariant) Prefix(p TCParams) string {
	return "tc." + strconv.Itoa(p.Qg)
}

func (tcVariant) BuildArgs(p TCParams, _ *action.Action) ([]string, error) {
	q := strconv.Itoa(p.Qg)
	return []string{"-qg", q, q, q, "--temperature", strconv.FormatFloat(p.temperature(), 'f', -1, 64)}, nil
}

// Stage links the unit cell and renames the parent's force constant outputs
// into inputs.
func (tcVariant) Stage(ctx context.Context, s *action.Staging, _ TCParams) error {
	if s.Parent() == nil {
		return errors.New("tc needs an fc parent")
	}
	links := [][2]string{
		{"infile.ucposcar", "infile.ucposcar"},
		{"outfile.forceconstant", "infile.forceconstant"},
		{"outfile.forceconstant_thirdorder", "infile.forceconstant_thirdorder"},
	}
	for _, l := range links {
		src, err := s.ParentFile(l[0])
		if err != nil {
			return err
		}
		if err := s.Link(ctx, src, l[1]); err != nil {
			return fmt.Errorf("linking %s: %w", l[0], err)
		}
	}
	return nil
}

func (tcVariant) Command(p TCParams) runner.Command { return p.command("thermal_conductivity") }

func (tcVariant) Ranks(p TCParams) int { return p.Ranks }

// ThermalConductivity is the "tc" kind.
var ThermalConductivity = action.MustDefine[TCParams]("tc", tcVariant{})
