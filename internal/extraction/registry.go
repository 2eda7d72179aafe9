package extraction

import (
	"errors"
	"sort"
)

// RegistryConfig configures provider resolution.
type RegistryConfig struct {
	// Default is the provider name used when a caller does not ask for one.
	Default string
}

// Registry holds the named provider adapters. Names are case-sensitive and
// the set is fixed before the first Resolve; reads are lock-free after that.
type Registry struct {
	providers map[string]Provider
	def       string
}

// NewRegistry creates an empty registry with the given default provider
// name.
func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		def:       cfg.Default,
	}
}

// Register adds a provider under its own name. Call during startup only.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Resolve returns the adapter for name, or for the configured default when
// name is empty. An unknown name fails with NotFoundError naming the
// requested key; there is no fallback to another provider.
func (r *Registry) Resolve(name string) (Provider, error) {
	if name == "" {
		name = r.def
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, &NotFoundError{Provider: name}
	}
	return p, nil
}

// Default returns the configured default provider name.
func (r *Registry) Default() string {
	return r.def
}

// Names returns the registered provider names, sorted so the order is
// stable within a process lifetime.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every registered provider.
func (r *Registry) Close() error {
	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
