// Package target holds the registry of configured BMC targets and the
// rules for resolving a request to one or many of them.
package target

// Descriptor describes one managed BMC.
type Descriptor struct {
	Name     string
	Address  string
	Username string
	Password string
}

// DefaultName is the reserved name given to the target synthesized from
// a single-host configuration.
const DefaultName = "default"
