package templates

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps plugin names to factories. Plugins are registered at start
// up; nothing is loaded from disk.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds f under name. Names follow the template name rules.
func (r *Registry) Register(name string, f Factory) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.factories[name]; dup {
		return fmt.Errorf("templates: plugin %q already registered", name)
	}
	// A nil factory is kept so Resolve can report the misconfiguration.
	r.factories[name] = f
	return nil
}

// MustRegister is Register for init-time wiring.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Lookup returns the factory for name. ok is false when none is registered.
func (r *Registry) Lookup(name string) (f Factory, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok = r.factories[name]
	return f, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
