package registry

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/vk/actiongrid/internal/ctxlog"
)

// ValidateRegistry checks that every registered kind can be fed from a
// workflow file: its parameter record must be a struct whose exported fields
// all carry a json tag. All problems are reported together.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, name := range r.Names() {
		bp := r.kinds[name]
		if bp == nil {
			errs = append(errs, fmt.Sprintf("kind '%s': nil blueprint", name))
			continue
		}
		if bp.Name() != name {
			errs = append(errs, fmt.Sprintf("kind '%s': registered under a different name than it reports ('%s')", name, bp.Name()))
		}

		pt := bp.ParamsType()
		if pt.Kind() != reflect.Struct {
			errs = append(errs, fmt.Sprintf("kind '%s': parameter record must be a struct, got %s", name, pt))
			continue
		}
		if pt.NumField() == 0 {
			logger.Debug("Kind takes no parameters.", "kind", name)
		}

		for _, field := range untaggedFields(pt) {
			errs = append(errs, fmt.Sprintf("kind '%s': parameter field '%s' has no json tag", name, field))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// untaggedFields lists exported fields without a json tag. Untagged embedded
// structs are flattened by the decoder, so their fields are checked instead.
func untaggedFields(t reflect.Type) []string {
	var out []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := strings.Split(field.Tag.Get("json"), ",")[0]
		if tag != "" {
			continue
		}
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			out = append(out, untaggedFields(field.Type)...)
			continue
		}
		out = append(out, field.Name)
	}
	return out
}
