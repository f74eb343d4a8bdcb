package target

import "fmt"

// ResolutionKind classifies why a request could not be resolved to a target.
type ResolutionKind int

const (
	// NotConfigured means the registry is empty.
	NotConfigured ResolutionKind = iota
	// NotFound means the requested name is not in the registry.
	NotFound
	// Ambiguous means no identifier was given and more than one target
	// is configured, or conflicting identifiers were supplied.
	Ambiguous
)

// ResolutionError is a per-request, recoverable resolution failure. It
// carries the offending identifier so the caller can self-correct; the
// HTTP layer formats it for display.
type ResolutionError struct {
	Kind ResolutionKind
	Name string
}

func (e *ResolutionError) Error() string {
	switch e.Kind {
	case NotConfigured:
		return "no targets configured"
	case NotFound:
		return fmt.Sprintf("target %q not found", e.Name)
	case Ambiguous:
		return "multiple targets configured, a target identifier is required"
	default:
		return "unresolvable target"
	}
}

// Resolver picks the target(s) a command applies to.
type Resolver struct {
	reg *Registry
}

func NewResolver(reg *Registry) *Resolver {
	return &Resolver{reg: reg}
}

// Resolve returns the single target a command applies to. An empty
// requestedID is allowed only when exactly one target is configured.
func (r *Resolver) Resolve(requestedID string) (Descriptor, error) {
	if r.reg.Size() == 0 {
		return Descriptor{}, &ResolutionError{Kind: NotConfigured}
	}
	if requestedID != "" {
		d, ok := r.reg.Get(requestedID)
		if !ok {
			return Descriptor{}, &ResolutionError{Kind: NotFound, Name: requestedID}
		}
		return d, nil
	}
	if r.reg.IsDefaultable() {
		return r.reg.All()[0], nil
	}
	return Descriptor{}, &ResolutionError{Kind: Ambiguous}
}

// ResolveAll returns the full ordered target set for fleet-wide
// commands.
func (r *Resolver) ResolveAll() ([]Descriptor, error) {
	if r.reg.Size() == 0 {
		return nil, &ResolutionError{Kind: NotConfigured}
	}
	return r.reg.All(), nil
}
