package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit
// values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyMetricsDefaults(&cfg.Metrics)
	applyNamingDefaults(&cfg.Naming)
	applyStorageDefaults(&cfg.Storage)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.RPCRateLimit > 0 && cfg.RPCRateBurst == 0 {
		cfg.RPCRateBurst = cfg.RPCRateLimit * 2
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Addr == "" {
		cfg.Addr = ":9090"
	}
}

// applyNamingDefaults points both skeletons at the well-known ports.
func applyNamingDefaults(cfg *NamingConfig) {
	if cfg.ServiceAddr == "" {
		cfg.ServiceAddr = ":8080"
	}
	if cfg.RegistrationAddr == "" {
		cfg.RegistrationAddr = ":8090"
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Type == "" {
		cfg.Type = "local"
	}
	if cfg.NamingAddr == "" {
		cfg.NamingAddr = "127.0.0.1:8090"
	}
	if cfg.AdvertiseHost == "" {
		cfg.AdvertiseHost = "127.0.0.1"
	}
	if cfg.ClientAddr == "" {
		cfg.ClientAddr = "0.0.0.0:0"
	}
	if cfg.CommandAddr == "" {
		cfg.CommandAddr = "0.0.0.0:0"
	}

	if cfg.Local == nil {
		cfg.Local = make(map[string]any)
	}
	if _, ok := cfg.Local["root"]; !ok {
		cfg.Local["root"] = "/tmp/treedfs-storage"
	}
}
