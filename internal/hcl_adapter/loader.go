// Package hcl_adapter loads workflow files written in HCL.
//
//	target "ssh" {
//	  host     = "cluster.example.org"
//	  user     = "alice"
//	  key_file = "~/.ssh/id_ed25519"
//	}
//
//	action "fc" "fc_6_5" {
//	  parameters = { rc2 = 6.0, rc3 = 5.0 }
//	}
//
//	action "tc" "tc_20" {
//	  parent     = "fc_6_5"
//	  parameters = { qg = 20 }
//	}
package hcl_adapter

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/actiongrid/internal/config"
	"github.com/vk/actiongrid/internal/ctxlog"
)

// Extension is the file extension handled by this loader.
const Extension = ".hcl"

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL workflow loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every given file and merges the blocks in file order. Paths
// must name files; directory expansion is done by config.MultiLoader.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	parser := hclparse.NewParser()
	model := &config.Model{}

	for _, file := range paths {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		part, err := l.decode(ctx, hclFile.Body, file)
		if err != nil {
			return nil, err
		}
		if err := model.Merge(part); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}

	logger.Debug("HCL loading complete.", "actions", len(model.Actions))
	return model, nil
}

// LoadSource decodes HCL text held in memory.
func (l *Loader) LoadSource(ctx context.Context, src []byte, filename string) (*config.Model, error) {
	hclFile, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return l.decode(ctx, hclFile.Body, filename)
}

func (l *Loader) decode(ctx context.Context, body hcl.Body, file string) (*config.Model, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
	}

	model := &config.Model{}
	switch len(root.Targets) {
	case 0:
	case 1:
		t, err := translateTarget(root.Targets[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		model.Target = t
	default:
		return nil, fmt.Errorf("%s: 'target' may only be declared once", file)
	}

	switch len(root.Schedulers) {
	case 0:
	case 1:
		s, err := translateScheduler(root.Schedulers[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		model.Scheduler = s
	default:
		return nil, fmt.Errorf("%s: 'scheduler' may only be declared once", file)
	}

	switch len(root.Notifiers) {
	case 0:
	case 1:
		model.Notify = translateNotify(root.Notifiers[0])
	default:
		return nil, fmt.Errorf("%s: 'notify' may only be declared once", file)
	}

	for _, a := range root.Actions {
		act, err := translateAction(ctx, a)
		if err != nil {
			return nil, err
		}
		model.Actions = append(model.Actions, act)
	}
	return model, nil
}
