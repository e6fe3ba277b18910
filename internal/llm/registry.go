package llm

import (
	"fmt"
	"sync"
)

// Factory builds a Provider bound to one model name
type Factory func(model string) (Provider, error)

// Registry resolves provider names to Provider instances, caching one
// instance per (provider, model) pair. It is constructed once at startup
// and injected; there is no ambient global state.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	cache     map[string]Provider
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		cache:     make(map[string]Provider),
	}
}

// Register adds a provider factory under the given name, replacing any
// previous registration
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Has reports whether a factory is registered under name
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names lists the registered provider names
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// Resolve returns the Provider for a (provider, model) pair, constructing
// and caching it on first use
func (r *Registry) Resolve(provider, model string) (Provider, error) {
	key := provider + ":" + model

	r.mu.RLock()
	if p, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return p, nil
	}
	factory, ok := r.factories[provider]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	p, err := factory(model)
	if err != nil {
		return nil, fmt.Errorf("provider %s init failed: %w", provider, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.cache[key]; ok {
		return cached, nil
	}
	r.cache[key] = p
	return p, nil
}
