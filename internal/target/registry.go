package target

import "fmt"

// Registry is an immutable, ordered collection of target descriptors
// keyed by name. It is built once at startup from parsed configuration
// and is safe for unsynchronized concurrent reads afterwards.
//
// An empty registry is valid; operations against it fail at resolution
// time with a not-configured error rather than at construction.
type Registry struct {
	byName map[string]Descriptor
	order  []Descriptor
}

// NewRegistry builds a registry preserving the order of descriptors.
// Descriptor names must be unique.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]Descriptor, len(descriptors)),
		order:  make([]Descriptor, 0, len(descriptors)),
	}
	for _, d := range descriptors {
		if _, exists := r.byName[d.Name]; exists {
			return nil, fmt.Errorf("duplicate target name %q", d.Name)
		}
		r.byName[d.Name] = d
		r.order = append(r.order, d)
	}
	return r, nil
}

// Get returns the descriptor for name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// All returns the descriptors in configuration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.order))
	copy(out, r.order)
	return out
}

// Names returns the target names in configuration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	for i, d := range r.order {
		names[i] = d.Name
	}
	return names
}

// Size returns the number of configured targets.
func (r *Registry) Size() int {
	return len(r.order)
}

// IsDefaultable reports whether requests may omit a target identifier,
// which is the case only when exactly one target is configured.
func (r *Registry) IsDefaultable() bool {
	return len(r.order) == 1
}
