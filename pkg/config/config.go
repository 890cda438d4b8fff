// Package config loads and validates the TreeDFS configuration shared by
// the naming and storage server binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete TreeDFS configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (TREEDFS_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// Backend Configuration Pattern:
// The storage section selects a backend by type and carries one
// type-specific options map per backend; only the section matching the
// selected type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains settings shared by both server binaries
	Server ServerConfig `mapstructure:"server"`

	// Metrics controls the optional Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Naming configures the naming server binary
	Naming NamingConfig `mapstructure:"naming"`

	// Storage configures the storage server binary
	Storage StorageConfig `mapstructure:"storage"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains settings shared by both server binaries.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// RPCRateLimit caps incoming connections per second (0 = unlimited)
	RPCRateLimit uint `mapstructure:"rpc_rate_limit"`

	// RPCRateBurst is the burst capacity above the sustained rate
	// Only used when RPCRateLimit is non-zero
	RPCRateBurst uint `mapstructure:"rpc_rate_burst"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	// Enabled turns metric collection and the HTTP endpoint on
	Enabled bool `mapstructure:"enabled"`

	// Addr is the listen address of the metrics endpoint
	// Only used when Enabled is true
	Addr string `mapstructure:"addr"`
}

// NamingConfig configures the naming server.
type NamingConfig struct {
	// ServiceAddr is the client-facing listen address
	ServiceAddr string `mapstructure:"service_addr" validate:"required"`

	// RegistrationAddr is the storage-facing listen address
	RegistrationAddr string `mapstructure:"registration_addr" validate:"required"`
}

// StorageConfig configures the storage server.
//
// The Type field selects the backend implementation; only the matching
// options map is decoded.
type StorageConfig struct {
	// Type specifies which storage backend to use
	// Valid values: local
	Type string `mapstructure:"type" validate:"required,oneof=local"`

	// NamingAddr is the naming server's registration address
	NamingAddr string `mapstructure:"naming_addr" validate:"required"`

	// AdvertiseHost is the host name announced to the naming server
	AdvertiseHost string `mapstructure:"advertise_host" validate:"required"`

	// ClientAddr is the data-plane listen address
	ClientAddr string `mapstructure:"client_addr" validate:"required"`

	// CommandAddr is the control-plane listen address
	CommandAddr string `mapstructure:"command_addr" validate:"required"`

	// Local contains local-backend configuration
	// Only used when Type = "local"
	Local map[string]any `mapstructure:"local"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns the loaded and validated configuration.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: TREEDFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("TREEDFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing
// file is only an error when it was named explicitly.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && configPath == "" {
			return nil
		}
		if configPath != "" {
			if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
				return fmt.Errorf("config file not found: %s", configPath)
			}
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the default configuration directory.
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "treedfs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "treedfs")
}
