package llm

import (
	"fmt"
	"sync"
)

// Registry holds every registered Provider keyed by name, with exactly one
// marked active at a time. Swapping the active provider is a pure pointer
// swap under a read-write lock — the "active provider cell" pattern
// implicit in the teacher's swappable openwebif.Client transport, made
// explicit here since this package has more than one backend to choose
// between.
type Registry struct {
	mu       sync.RWMutex
	provider map[string]Provider
	active   string
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{provider: map[string]Provider{}}
}

// Register adds or replaces a provider under its own Name().
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.provider[p.Name()] = p
}

// SetActive marks name as the active provider; it must already be
// registered and configured.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.provider[name]
	if !ok {
		return fmt.Errorf("llm: provider %q is not registered", name)
	}
	if !p.IsConfigured() {
		return fmt.Errorf("llm: provider %q is registered but not configured", name)
	}
	r.active = name
	return nil
}

// Active returns the currently active provider.
func (r *Registry) Active() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == "" {
		return nil, fmt.Errorf("llm: no active provider set")
	}
	return r.provider[r.active], nil
}

// ConfigureAndActivate configures the named registered provider with
// settings and marks it active in one step, the update_config path: a
// config change that names a new llm_provider must take effect atomically,
// never leaving the registry with a configured-but-inactive provider after
// a successful Apply.
func (r *Registry) ConfigureAndActivate(name string, settings map[string]any) error {
	r.mu.Lock()
	p, ok := r.provider[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("llm: provider %q is not registered", name)
	}
	if err := p.Configure(settings); err != nil {
		return err
	}
	return r.SetActive(name)
}
