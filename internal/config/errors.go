package config

import "fmt"

// ConfigKind classifies a configuration parse failure. Configuration
// errors are fatal at startup; the process refuses to serve until the
// configuration is corrected.
type ConfigKind int

const (
	// MalformedEntry is a multi-host entry with a field count other
	// than two or four.
	MalformedEntry ConfigKind = iota
	// MissingCredentials is a two-field entry with no shared
	// credentials configured to fall back on.
	MissingCredentials
	// DuplicateName is a target name declared more than once.
	DuplicateName
	// EmptyField is an empty name, address, username or password
	// after resolution.
	EmptyField
	// WhitespaceName is a name with leading or trailing whitespace.
	// It is rejected rather than trimmed so operator typos are not
	// silently masked.
	WhitespaceName
)

// ConfigError reports why configuration could not be turned into a
// valid target list. Entry holds the offending entry verbatim.
type ConfigError struct {
	Kind  ConfigKind
	Entry string
	Field string
}

func (e *ConfigError) Error() string {
	switch e.Kind {
	case MalformedEntry:
		return fmt.Sprintf("malformed host entry %q: want name:address or name:address:username:password", e.Entry)
	case MissingCredentials:
		return fmt.Sprintf("host entry %q has no credentials and no shared credentials are configured", e.Entry)
	case DuplicateName:
		return fmt.Sprintf("duplicate target name %q", e.Entry)
	case EmptyField:
		return fmt.Sprintf("empty %s in host entry %q", e.Field, e.Entry)
	case WhitespaceName:
		return fmt.Sprintf("target name %q has leading or trailing whitespace", e.Entry)
	default:
		return fmt.Sprintf("invalid host entry %q", e.Entry)
	}
}
