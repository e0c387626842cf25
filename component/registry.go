package component

import (
	"fmt"
	"sync"

	"github.com/c360/runtimekit/errors"
)

// Registry holds component descriptors in registration order. It is the
// single catalog the resolver and orchestrator work from. Safe for
// concurrent use, though registration typically happens before the
// runtime is built.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]*Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Descriptor)}
}

// Register adds a descriptor. Names must be unique; re-registering a
// name fails with ErrDuplicateName.
func (r *Registry) Register(desc *Descriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[desc.Name]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrDuplicateName, desc.Name),
			"Registry", "Register", "check name")
	}
	r.byName[desc.Name] = desc
	r.order = append(r.order, desc.Name)
	return nil
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.byName[name]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownComponent, name),
			"Registry", "Get", "lookup name")
	}
	return desc, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[name]
	return ok
}

// List returns all descriptors in registration order.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Enabled returns the enabled descriptors in registration order.
func (r *Registry) Enabled() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.order))
	for _, name := range r.order {
		if desc := r.byName[name]; desc.Enabled {
			out = append(out, desc)
		}
	}
	return out
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
