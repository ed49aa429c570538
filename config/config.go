package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oxmail/smtpauth/interfaces"
)

// Canonical mechanism names
const (
	MechanismLogin   = "LOGIN"
	MechanismPlain   = "PLAIN"
	MechanismCRAMMD5 = "CRAM-MD5"
)

// Backend selector values
const (
	BackendDirectory = "directory"
	BackendSASL      = "sasl"
)

// DefaultConfig creates a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: interfaces.ServerConfig{
			Hostname:    "",
			ServiceName: "smtp",
			Realm:       "",
		},
		Network: interfaces.NetworkConfig{
			Address:       ":2525",
			ReadTimeout:   5 * time.Minute,
			WriteTimeout:  30 * time.Second,
			MaxLineLength: 2048,
		},
		Auth: interfaces.AuthConfig{
			Mechanisms: []string{"login", "plain", "cram-md5"},
			Backend:    BackendDirectory,
			UserFile:   "users.yaml",
		},
		Metrics: interfaces.MetricsConfig{
			Enabled: false,
			Port:    9105,
		},
		Log: interfaces.LogConfig{
			Level: "info",
		},
	}
}

// Config is the top-level configuration
type Config struct {
	Server  interfaces.ServerConfig  `koanf:"server" yaml:"server"`
	Network interfaces.NetworkConfig `koanf:"network" yaml:"network"`
	Auth    interfaces.AuthConfig    `koanf:"auth" yaml:"auth"`
	Metrics interfaces.MetricsConfig `koanf:"metrics" yaml:"metrics"`
	Log     interfaces.LogConfig     `koanf:"log" yaml:"log"`
}

// Save writes the configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Network.Address == "" {
		return fmt.Errorf("network address cannot be empty")
	}
	if c.Network.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.Network.MaxLineLength < 512 {
		return fmt.Errorf("max line length must be at least 512")
	}
	switch c.Auth.Backend {
	case BackendDirectory:
		if c.Auth.UserFile == "" {
			return fmt.Errorf("directory backend requires a user file")
		}
	case BackendSASL:
	default:
		return fmt.Errorf("unknown auth backend: %s", c.Auth.Backend)
	}
	if len(c.Auth.Mechanisms) == 0 {
		return fmt.Errorf("at least one auth mechanism must be enabled")
	}
	for _, name := range c.Auth.Mechanisms {
		switch strings.ToUpper(name) {
		case MechanismLogin, MechanismPlain, MechanismCRAMMD5:
		default:
			return fmt.Errorf("unknown auth mechanism: %s", name)
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.Log.Level)
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}
	return nil
}

// Policy derives the mechanism policy from the configuration
func (c *Config) Policy() *MechanismPolicy {
	return NewMechanismPolicy(c.Auth.Mechanisms)
}

// MechanismPolicy is the immutable set of mechanisms enabled by
// configuration. It is built once at start-up and read-only afterward.
type MechanismPolicy struct {
	list []string
	set  map[string]bool
}

// NewMechanismPolicy normalizes names to their canonical upper-case
// form, preserving order and dropping duplicates.
func NewMechanismPolicy(names []string) *MechanismPolicy {
	p := &MechanismPolicy{set: make(map[string]bool, len(names))}
	for _, name := range names {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" || p.set[name] {
			continue
		}
		p.set[name] = true
		p.list = append(p.list, name)
	}
	return p
}

// Enabled reports whether the named mechanism is allowed by policy
func (p *MechanismPolicy) Enabled(name string) bool {
	return p.set[strings.ToUpper(name)]
}

// List returns the enabled mechanism names in advertisement order
func (p *MechanismPolicy) List() []string {
	out := make([]string, len(p.list))
	copy(out, p.list)
	return out
}

// Intersect returns the policy names also present in names, keeping
// the policy's advertisement order.
func (p *MechanismPolicy) Intersect(names []string) []string {
	offered := make(map[string]bool, len(names))
	for _, name := range names {
		offered[strings.ToUpper(name)] = true
	}
	var out []string
	for _, name := range p.list {
		if offered[name] {
			out = append(out, name)
		}
	}
	return out
}

// String returns a space-separated list of enabled mechanism names
func (p *MechanismPolicy) String() string {
	return strings.Join(p.list, " ")
}
