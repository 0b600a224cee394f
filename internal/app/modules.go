package app

import (
	"github.com/vk/actiongrid/internal/registry"
	"github.com/vk/actiongrid/modules/sbatch"
	"github.com/vk/actiongrid/modules/shell"
	"github.com/vk/actiongrid/modules/tdep"
)

// coreModules is the definitive list of all action kinds that are compiled
// into the actiongrid binary.
var coreModules = []registry.Module{
	&shell.Module{},
	&sbatch.Module{},
	&tdep.Module{},
}
