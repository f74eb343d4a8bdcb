package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	goconfig "github.com/tpodg/go-config"
)

const DefaultConfigFileName = ".ipmi-gateway.yaml"

const (
	defaultListenAddr     = ":8080"
	defaultCommandTimeout = 15 * time.Second
	defaultMaxInFlight    = 16
)

// Config is the process configuration. Every field can be provided via
// a YAML config file or overridden with an IPMI_-prefixed environment
// variable (IPMI_HOSTS, IPMI_SHARED_USER, ...).
type Config struct {
	Listen string `yaml:"listen"`

	// Single-host target. When Hosts and TargetsFile are empty these
	// three synthesize a one-element registry under the reserved
	// default name.
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// Hosts is the multi-host list: comma-separated entries, each
	// either name:address or name:address:username:password.
	Hosts string `yaml:"hosts"`

	// Shared credentials applied to two-field host entries. When unset
	// the single-host credentials are used as the fallback.
	SharedUser     string `yaml:"shared_user"`
	SharedPassword string `yaml:"shared_password"`

	// TargetsFile points at a YAML target list and takes precedence
	// over Hosts.
	TargetsFile string `yaml:"targets_file"`

	CommandTimeout time.Duration `yaml:"command_timeout"`
	MaxInFlight    int           `yaml:"max_in_flight"`

	// HistoryPath enables the sqlite outcome journal when set.
	HistoryPath string `yaml:"history_path"`

	Proxy ProxyConfig `yaml:"proxy"`
}

// ProxyConfig describes an optional SSH jump host on which ipmitool is
// executed when the gateway has no direct route into the management
// network.
type ProxyConfig struct {
	Address          string        `yaml:"address"`
	User             string        `yaml:"user"`
	SSHKey           string        `yaml:"ssh_key"`
	KnownHostsPath   string        `yaml:"known_hosts"`
	UseAgent         *bool         `yaml:"use_agent"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// Enabled reports whether commands should be routed through the proxy.
func (p ProxyConfig) Enabled() bool {
	return p.Address != ""
}

// Load the configuration from the given file or default locations,
// with environment variables taking precedence.
func Load(cfgFile string) (*Config, error) {
	path, err := findConfigFile(cfgFile)
	if err != nil {
		return nil, err
	}

	c := goconfig.New()
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for %s: %w", path, err)
		}
		c.WithProviders(&goconfig.Yaml{Path: absPath})
	}

	c.WithProviders(&goconfig.Env{Prefix: "IPMI"})

	cfg := &Config{}
	if err := c.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Listen == "" {
		cfg.Listen = defaultListenAddr
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}

	return cfg, nil
}

func findConfigFile(cfgFile string) (string, error) {
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return "", fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
		return cfgFile, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, DefaultConfigFileName)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	if _, err := os.Stat(DefaultConfigFileName); err == nil {
		return DefaultConfigFileName, nil
	}

	return "", nil
}
