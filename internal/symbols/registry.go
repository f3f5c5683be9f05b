package symbols

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/attribute-processor/internal/formula"
)

// Provider is a statically linked module that extra-module entries can
// import by name.
type Provider struct {
	// Name is the import name, optionally namespaced with a path prefix
	// ("stats", "lab/stats").
	Name string

	// Members returns the module's public names. It is called on every
	// Build, so it may return fresh values each time.
	Members func() map[string]formula.Value
}

// Registry holds the providers extra modules resolve against.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// DefaultRegistry returns a registry holding the stock providers: stats,
// filters and units.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, p := range stockProviders() {
		// Stock names are unique; Register cannot fail here.
		_ = r.Register(p)
	}
	return r
}

// Register adds a provider.
//
// Returns ErrDuplicateProvider if the name is taken, or ErrForbiddenModule
// if the name is rooted at a denied module.
func (r *Registry) Register(p Provider) error {
	spec := ExtraModuleSpec{Module: p.Name}
	if root := spec.rootOrEmpty(); root == "" || p.Members == nil {
		return fmt.Errorf("%w: provider %q", ErrInvalidSpec, p.Name)
	} else if deniedRoots[root] {
		return fmt.Errorf("%w: %s", ErrForbiddenModule, root)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, p.Name)
	}
	r.providers[p.Name] = p
	return nil
}

// Resolve finds a provider by bare name first, then under each search path
// prefix in order ("<path>/<name>").
func (r *Registry) Resolve(name string, searchPaths []string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.providers[name]; ok {
		return p, true
	}
	for _, path := range searchPaths {
		if p, ok := r.providers[path+"/"+name]; ok {
			return p, true
		}
	}
	return Provider{}, false
}

// Names returns every registered provider name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
