package interfaces

import "time"

// ServerConfig holds server identity configuration
type ServerConfig struct {
	// Hostname is embedded in CRAM-MD5 challenges. Empty means the
	// OS hostname is used.
	Hostname string `koanf:"hostname" yaml:"hostname"`

	// ServiceName is the SASL service binding, "smtp" by convention
	ServiceName string `koanf:"service_name" yaml:"service_name"`

	// Realm is the optional authentication realm
	Realm string `koanf:"realm" yaml:"realm"`
}

// NetworkConfig holds the listener settings of the front-end daemon
type NetworkConfig struct {
	Address       string        `koanf:"address" yaml:"address"`
	ReadTimeout   time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout  time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
	MaxLineLength int           `koanf:"max_line_length" yaml:"max_line_length"`
}

// AuthConfig holds the mechanism policy and backend selection
type AuthConfig struct {
	// Mechanisms lists the enabled mechanism names, the policy mask
	// of the engine. Order is the advertisement order.
	Mechanisms []string `koanf:"mechanisms" yaml:"mechanisms"`

	// Backend selects the verifier: "directory" or "sasl"
	Backend string `koanf:"backend" yaml:"backend"`

	// UserFile is the YAML credential file of the directory backend
	UserFile string `koanf:"user_file" yaml:"user_file"`
}

// MetricsConfig holds the Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool `koanf:"enabled" yaml:"enabled"`
	Port    int  `koanf:"port" yaml:"port"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `koanf:"level" yaml:"level"`
}
