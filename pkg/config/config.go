// Package config loads the registry server configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the server configuration.
type Config struct {
	// ListenAddress is the host:port the HTTP server binds to.
	ListenAddress string `yaml:"listenAddress"`

	// Database selects and configures the backing store.
	Database DatabaseConfig `yaml:"database"`

	// Auth configures Bearer-token authentication.
	Auth AuthConfig `yaml:"auth"`

	// ServerVersion is stamped onto every version row this server writes.
	ServerVersion string `yaml:"serverVersion"`

	// CORSAllowedOrigins lists origins allowed by the CORS middleware.
	CORSAllowedOrigins []string `yaml:"corsAllowedOrigins"`
}

// DatabaseConfig selects the database driver and connection string.
type DatabaseConfig struct {
	// Type is one of "postgres", "mysql", "sqlite".
	Type string `yaml:"type"`
	// DSN is the driver connection string; for sqlite, a file path or
	// ":memory:".
	DSN string `yaml:"dsn"`
}

// AuthConfig configures token verification.
type AuthConfig struct {
	// PublicKeyPath is the PEM-encoded RSA public key for RS256
	// verification. Empty means tokens are parsed without verification.
	PublicKeyPath string `yaml:"publicKeyPath"`
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
}

// LoadConfig loads configuration from a YAML file. If the file does not
// exist, default configuration is returned.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddress: ":8080",
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "registry.db",
		},
		ServerVersion:      "dev",
		CORSAllowedOrigins: []string{"*"},
	}
}
