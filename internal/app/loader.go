package app

import (
	"github.com/vk/actiongrid/internal/config"
	"github.com/vk/actiongrid/internal/hcl_adapter"
	"github.com/vk/actiongrid/internal/yaml_adapter"
)

// NewLoader returns the loader for every supported workflow format.
func NewLoader() *config.MultiLoader {
	hclLoader := hcl_adapter.NewLoader()
	yamlLoader := yaml_adapter.NewLoader()

	byExt := map[string]config.Loader{hcl_adapter.Extension: hclLoader}
	for _, ext := range yaml_adapter.Extensions {
		byExt[ext] = yamlLoader
	}
	return config.NewMultiLoader(byExt)
}
