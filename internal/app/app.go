package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/actiongrid/internal/config"
	"github.com/vk/actiongrid/internal/ctxlog"
	"github.com/vk/actiongrid/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	cfg      *Config
	registry *registry.Registry
	model    *config.Model
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// A nil loader means NewLoader. Load and registry failures are fatal startup
// errors and panic.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules), "kinds", reg.Names())

	if err := reg.ValidateRegistry(ctx); err != nil {
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	if loader == nil {
		loader = NewLoader()
	}
	model, err := loader.Load(ctx, cfg.WorkflowPath)
	if err != nil {
		panic(fmt.Errorf("failed to load workflow: %w", err))
	}
	if cfg.Workdir != "" {
		model.Target.Workdir = cfg.Workdir
	}
	logger.Debug("Workflow loaded.", "actions", len(model.Actions), "target", model.Target.Kind)

	return &App{
		outW:     outW,
		logger:   logger,
		cfg:      cfg,
		registry: reg,
		model:    model,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Model returns the loaded workflow.
func (a *App) Model() *config.Model {
	return a.model
}
