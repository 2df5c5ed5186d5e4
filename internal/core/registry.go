package core

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the entity definitions a Service can import and export.
// It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a definition. Names must be unique and every definition
// needs at least one column.
func (r *Registry) Register(def Definition) error {
	info := def.Info()
	if info.Name == "" {
		return fmt.Errorf("register entity: empty name")
	}
	if len(info.Columns) == 0 {
		return fmt.Errorf("register entity %s: no columns", info.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[info.Name]; exists {
		return fmt.Errorf("entity already registered: %s", info.Name)
	}
	r.defs[info.Name] = def
	return nil
}

// MustRegister registers every definition and panics on the first error.
func (r *Registry) MustRegister(defs ...Definition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

// Get returns a definition by name.
// Returns false if not found.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	return def, ok
}

// All returns every definition, sorted by name.
func (r *Registry) All() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Info().Name < result[j].Info().Name
	})

	return result
}

// Names returns the registered entity names, sorted.
func (r *Registry) Names() []string {
	defs := r.All()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Info().Name
	}
	return names
}

// Len returns the number of registered entities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}
