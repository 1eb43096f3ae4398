package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config is the configuration for the nxauth CLI and its monitors
type Config struct {
	LogLevel  string `hcl:"log_level,optional"`
	LogFormat string `hcl:"log_format,optional"`
	LogFile   string `hcl:"log_file,optional"`

	// GatewayProxyURL routes authentication calls through an API
	// gateway instead of hitting the services directly
	GatewayProxyURL string `hcl:"gateway_proxy_url,optional"`

	// UserAgent overrides the default client identification
	UserAgent string `hcl:"user_agent,optional"`

	// ClientRateLimit throttles outgoing requests client-side, as
	// "requests_per_second" or "requests_per_second:burst"
	ClientRateLimit string `hcl:"client_rate_limit,optional"`

	// MonitorIntervalSeconds is the presence polling cadence
	MonitorIntervalSeconds int `hcl:"monitor_interval_seconds,optional"`

	RateLimit *RateLimitBlock `hcl:"rate_limit,block"`
	Storage   *StorageBlock   `hcl:"storage,block"`
	Services  []ServiceBlock  `hcl:"service,block"`
}

// RateLimitBlock tunes the authentication attempt limiter
type RateLimitBlock struct {
	Requests      int `hcl:"requests,optional"`
	WindowMinutes int `hcl:"window_minutes,optional"`
}

// StorageBlock selects the persistence backend
type StorageBlock struct {
	Type string `hcl:"type,label"` // "inmem" or "file"

	// Path is the data directory for the file backend
	Path string `hcl:"path,optional"`
}

// ServiceBlock overrides a service's endpoint, mainly for testing
// against a local stand-in
type ServiceBlock struct {
	Name    string `hcl:"name,label"`
	Address string `hcl:"address,optional"`
}

// ServiceAddress returns the configured override for a service, or ""
func (c *Config) ServiceAddress(name string) string {
	for _, svc := range c.Services {
		if svc.Name == name {
			return svc.Address
		}
	}
	return ""
}

// DefaultConfig is what runs when no config file exists: file storage
// in the user's home, info logging
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	dataDir := ".nxauth"
	if err == nil {
		dataDir = filepath.Join(home, ".nxauth")
	}
	return &Config{
		LogLevel:  "info",
		LogFormat: "default",
		Storage: &StorageBlock{
			Type: "file",
			Path: dataDir,
		},
	}
}

// LoadConfig reads an HCL config file. path == "" returns the default.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	var config Config
	if err := hclsimple.DecodeFile(path, nil, &config); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if config.Storage == nil {
		config.Storage = DefaultConfig().Storage
	}
	return &config, nil
}
