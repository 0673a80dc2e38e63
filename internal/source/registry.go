package source

import (
	"sort"
	"sync"
)

// Registry holds the configured set of sources. It is populated once at
// startup and safe for unsynchronized concurrent reads afterward; the mutex
// only guards registration during setup and in tests.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]Source),
	}
}

// Register adds a source to the registry, replacing any source with the
// same name.
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.Name()] = s
}

// Get returns a source by name, or nil if not registered.
func (r *Registry) Get(name string) Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[name]
}

// For returns all sources applicable to the given category and state,
// ordered by base confidence descending, name ascending. The ordering is
// stable so that identical registries always produce identical query plans.
func (r *Registry) For(cat Category, state string) []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Source
	for _, s := range r.sources {
		if s.Meta().AppliesTo(cat, state) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		mi, mj := out[i].Meta(), out[j].Meta()
		if mi.BaseConfidence != mj.BaseConfidence {
			return mi.BaseConfidence > mj.BaseConfidence
		}
		return mi.Name < mj.Name
	})
	return out
}

// List returns all registered source names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}
