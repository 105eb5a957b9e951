package processor

import (
	"fmt"
	"sort"

	"github.com/alecgard/jeton/internal/catalog"
)

// Registry maps function names to processors. It is built once at startup
// and read-only afterwards.
type Registry struct {
	catalog    *catalog.Catalog
	processors map[string]Processor
}

// NewRegistry indexes procs by their function name. Two processors claiming
// the same name, or a processor with no catalogue entry, is a
// *ConfigurationError.
func NewRegistry(cat *catalog.Catalog, procs ...Processor) (*Registry, error) {
	if cat == nil {
		return nil, &ConfigurationError{Reason: "catalog is required"}
	}
	r := &Registry{catalog: cat, processors: make(map[string]Processor, len(procs))}
	for _, p := range procs {
		name := p.FunctionName()
		if _, dup := r.processors[name]; dup {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("duplicate processor for function %q", name)}
		}
		if _, err := cat.Get(name); err != nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("processor %q has no catalog entry", name)}
		}
		r.processors[name] = p
	}
	return r, nil
}

// Resolve returns the processor registered for name.
func (r *Registry) Resolve(name string) (Processor, error) {
	p, ok := r.processors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrUnknownFunction, name)
	}
	return p, nil
}

// IsAvailable reports whether name has a processor and is enabled in the
// catalogue.
func (r *Registry) IsAvailable(name string) bool {
	if _, ok := r.processors[name]; !ok {
		return false
	}
	return r.catalog.IsEnabled(name)
}

// Names returns the registered function names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
