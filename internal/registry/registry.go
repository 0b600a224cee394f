package registry

import (
	"fmt"
	"log/slog"
	"sort"
)

// Module is the interface that all built-in modules implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the action kinds of a single application instance.
type Registry struct {
	kinds map[string]Blueprint
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{kinds: make(map[string]Blueprint)}
}

// RegisterKind registers a kind under its name. Registering a name twice is
// a programming error and panics.
func (r *Registry) RegisterKind(bp Blueprint) {
	name := bp.Name()
	if _, exists := r.kinds[name]; exists {
		panic(fmt.Sprintf("action kind '%s' already registered", name))
	}
	slog.Debug("Registering action kind.", "kind", name, "params", bp.ParamsType().String())
	r.kinds[name] = bp
}

// Kind looks up a registered kind.
func (r *Registry) Kind(name string) (Blueprint, bool) {
	bp, ok := r.kinds[name]
	return bp, ok
}

// Names returns the registered kind names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
