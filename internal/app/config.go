package app

import (
	"errors"
	"fmt"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// WorkflowPath is a workflow file or a directory of them.
	WorkflowPath string
	// Workdir overrides the workflow's target workdir when set.
	Workdir string

	LogFormat  string
	LogLevel   string
	StatusPort int
}

// NewConfig validates cfg.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.WorkflowPath == "" {
		return nil, errors.New("WorkflowPath is a required configuration field and cannot be empty")
	}
	if cfg.StatusPort < 0 || cfg.StatusPort > 65535 {
		return nil, fmt.Errorf("status port %d out of range", cfg.StatusPort)
	}
	return &cfg, nil
}
