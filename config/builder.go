package config

import "time"

// Builder provides a fluent API for building configuration
type Builder struct {
	config *Config
}

// NewBuilder creates a new configuration builder with defaults
func NewBuilder() *Builder {
	return &Builder{config: DefaultConfig()}
}

// FromConfig creates a builder from an existing configuration
func FromConfig(config *Config) *Builder {
	builder := NewBuilder()
	*builder.config = *config
	return builder
}

// WithAddress sets the listener address
func (b *Builder) WithAddress(address string) *Builder {
	b.config.Network.Address = address
	return b
}

// WithReadTimeout sets the per-command read timeout
func (b *Builder) WithReadTimeout(timeout time.Duration) *Builder {
	b.config.Network.ReadTimeout = timeout
	return b
}

// WithHostname sets the host name embedded in challenges
func (b *Builder) WithHostname(hostname string) *Builder {
	b.config.Server.Hostname = hostname
	return b
}

// WithMechanisms sets the enabled mechanism list
func (b *Builder) WithMechanisms(mechanisms ...string) *Builder {
	b.config.Auth.Mechanisms = mechanisms
	return b
}

// WithDirectoryBackend selects the directory backend with its user file
func (b *Builder) WithDirectoryBackend(userFile string) *Builder {
	b.config.Auth.Backend = BackendDirectory
	b.config.Auth.UserFile = userFile
	return b
}

// WithSASLBackend selects the generic SASL library backend
func (b *Builder) WithSASLBackend() *Builder {
	b.config.Auth.Backend = BackendSASL
	return b
}

// WithMetrics enables the Prometheus exposition endpoint
func (b *Builder) WithMetrics(port int) *Builder {
	b.config.Metrics.Enabled = true
	b.config.Metrics.Port = port
	return b
}

// WithLogLevel sets the log level
func (b *Builder) WithLogLevel(level string) *Builder {
	b.config.Log.Level = level
	return b
}

// Build validates and returns the configuration
func (b *Builder) Build() (*Config, error) {
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	return b.config, nil
}
