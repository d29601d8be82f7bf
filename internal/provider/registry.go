package provider

import (
	"sort"
	"sync"
)

// Registry holds the provider set and answers ordered candidate lists per
// (sport, dataType). Ordering is by configured priority, ties broken by
// name for determinism.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]*Provider)}
}

// Add registers a provider. A provider with the same name replaces the
// previous registration.
func (r *Registry) Add(p *Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name] = p
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (*Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns all registered provider names, sorted.
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

// Candidates returns the providers able to serve (sport, dataType), in
// fallback order.
func (r *Registry) Candidates(sport string, dataType DataType) []*Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []*Provider
	for _, p := range r.providers {
		if p.Supports(sport, dataType) {
			candidates = append(candidates, p)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].Name < candidates[j].Name
	})
	return candidates
}
