package config

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/vk/actiongrid/internal/ctxlog"
	"github.com/vk/actiongrid/internal/fsutil"
)

// MultiLoader dispatches each workflow file to the loader registered for its
// extension and merges the results in file order.
type MultiLoader struct {
	byExt map[string]Loader
}

// NewMultiLoader creates a MultiLoader. Keys are extensions including the
// dot, e.g. ".hcl".
func NewMultiLoader(byExt map[string]Loader) *MultiLoader {
	return &MultiLoader{byExt: byExt}
}

// Extensions returns the supported extensions, sorted.
func (l *MultiLoader) Extensions() []string {
	exts := make([]string, 0, len(l.byExt))
	for ext := range l.byExt {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Load implements Loader. The merged model has defaults applied and is
// validated.
func (l *MultiLoader) Load(ctx context.Context, paths ...string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.FindFilesByExtension(paths, l.Extensions()...)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no workflow files (%s) found in %s", strings.Join(l.Extensions(), ", "), strings.Join(paths, ", "))
	}
	logger.Debug("Discovered workflow files.", "files", files)

	model := &Model{}
	for _, file := range files {
		loader := l.byExt[strings.ToLower(filepath.Ext(file))]
		if loader == nil {
			return nil, fmt.Errorf("no loader for %s", file)
		}
		part, err := loader.Load(ctx, file)
		if err != nil {
			return nil, err
		}
		if err := model.Merge(part); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}

	model.ApplyDefaults()
	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow: %w", err)
	}
	logger.Debug("Workflow loaded.", "actions", len(model.Actions), "target", model.Target.Kind)
	return model, nil
}
