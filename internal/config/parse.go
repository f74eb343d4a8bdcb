package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/JamesDodds/ipmi-api-gateway/internal/target"
)

// Targets resolves the configured target set. Precedence: targets file,
// then the multi-host list, then the single-host triple. No source at
// all yields an empty set, which is legal; commands against it fail at
// resolution time with an actionable error.
//
// Parsing is total: it either returns a fully valid target list or a
// ConfigError and no list.
func (c *Config) Targets() ([]target.Descriptor, error) {
	fallbackUser, fallbackPassword := c.fallbackCredentials()

	switch {
	case c.TargetsFile != "":
		return loadTargetsFile(c.TargetsFile, fallbackUser, fallbackPassword)
	case c.Hosts != "":
		return ParseHostList(c.Hosts, fallbackUser, fallbackPassword)
	case c.Host != "":
		d := target.Descriptor{
			Name:     target.DefaultName,
			Address:  c.Host,
			Username: c.User,
			Password: c.Password,
		}
		if err := validateDescriptor(d, c.Host); err != nil {
			return nil, err
		}
		return []target.Descriptor{d}, nil
	default:
		return nil, nil
	}
}

func (c *Config) fallbackCredentials() (string, string) {
	user := c.SharedUser
	if user == "" {
		user = c.User
	}
	password := c.SharedPassword
	if password == "" {
		password = c.Password
	}
	return user, password
}

// ParseHostList parses the multi-host list. Each comma-separated entry
// is either name:address (credentials from the shared fallback) or
// name:address:username:password. Mixed lists are legal; resolution is
// per entry.
func ParseHostList(list, fallbackUser, fallbackPassword string) ([]target.Descriptor, error) {
	entries := strings.Split(list, ",")
	seen := make(map[string]struct{}, len(entries))
	descriptors := make([]target.Descriptor, 0, len(entries))

	for _, entry := range entries {
		fields := strings.Split(entry, ":")

		var d target.Descriptor
		switch len(fields) {
		case 2:
			if fallbackUser == "" && fallbackPassword == "" {
				return nil, &ConfigError{Kind: MissingCredentials, Entry: entry}
			}
			d = target.Descriptor{
				Name:     fields[0],
				Address:  fields[1],
				Username: fallbackUser,
				Password: fallbackPassword,
			}
		case 4:
			d = target.Descriptor{
				Name:     fields[0],
				Address:  fields[1],
				Username: fields[2],
				Password: fields[3],
			}
		default:
			return nil, &ConfigError{Kind: MalformedEntry, Entry: entry}
		}

		if err := validateDescriptor(d, entry); err != nil {
			return nil, err
		}
		if _, dup := seen[d.Name]; dup {
			return nil, &ConfigError{Kind: DuplicateName, Entry: d.Name}
		}
		seen[d.Name] = struct{}{}
		descriptors = append(descriptors, d)
	}

	return descriptors, nil
}

func validateDescriptor(d target.Descriptor, entry string) error {
	if d.Name == "" {
		return &ConfigError{Kind: EmptyField, Entry: entry, Field: "name"}
	}
	if strings.TrimSpace(d.Name) != d.Name {
		return &ConfigError{Kind: WhitespaceName, Entry: d.Name}
	}
	if d.Address == "" {
		return &ConfigError{Kind: EmptyField, Entry: entry, Field: "address"}
	}
	if d.Username == "" {
		return &ConfigError{Kind: EmptyField, Entry: entry, Field: "username"}
	}
	if d.Password == "" {
		return &ConfigError{Kind: EmptyField, Entry: entry, Field: "password"}
	}
	return nil
}

type targetsFile struct {
	Targets []targetsFileEntry `yaml:"targets"`
}

type targetsFileEntry struct {
	Name     string `yaml:"name"`
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func loadTargetsFile(path, fallbackUser, fallbackPassword string) ([]target.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file %s: %w", path, err)
	}

	var tf targetsFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse targets file %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(tf.Targets))
	descriptors := make([]target.Descriptor, 0, len(tf.Targets))
	for _, e := range tf.Targets {
		d := target.Descriptor{
			Name:     e.Name,
			Address:  e.Address,
			Username: e.Username,
			Password: e.Password,
		}
		if d.Username == "" && d.Password == "" {
			if fallbackUser == "" && fallbackPassword == "" {
				return nil, &ConfigError{Kind: MissingCredentials, Entry: e.Name}
			}
			d.Username = fallbackUser
			d.Password = fallbackPassword
		}
		if err := validateDescriptor(d, e.Name); err != nil {
			return nil, err
		}
		if _, dup := seen[d.Name]; dup {
			return nil, &ConfigError{Kind: DuplicateName, Entry: d.Name}
		}
		seen[d.Name] = struct{}{}
		descriptors = append(descriptors, d)
	}

	return descriptors, nil
}
