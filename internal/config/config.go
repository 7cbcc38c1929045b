// Package config implements the gateway's YAML configuration layer,
// overridable by CLI flags, in the same DefaultConfig/LoadConfig/
// Validate shape the rest of this codebase's configuration follows.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the gateway's full runtime configuration.
type Config struct {
	// Directory identifies which vendor directory credential set to use.
	Directory DirectoryConfig `yaml:"directory"`

	// Listen configures the local RTSP-facing TCP surface.
	Listen ListenConfig `yaml:"listen"`

	// Cache configures the optional directory-resolution cache.
	Cache CacheConfig `yaml:"cache,omitempty"`

	// Audit configures the optional tunnel session audit log.
	Audit AuditConfig `yaml:"audit,omitempty"`

	// Diagnostics configures the optional status/metrics server.
	Diagnostics DiagnosticsConfig `yaml:"diagnostics,omitempty"`

	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`
}

// DirectoryConfig contains the credentials and dtype variant used for
// rendezvous. Type 0 is the anonymous variant; type 1 authenticates
// against the vendor directory with username/password.
type DirectoryConfig struct {
	Serial   string `yaml:"serial"`
	Type     int    `yaml:"type"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// ListenConfig contains the local TCP listener settings.
type ListenConfig struct {
	Address string `yaml:"address"`
}

// CacheConfig contains the optional Redis-backed directory cache
// settings. Empty Address disables the cache; lookups always fall
// through to a live directory query.
type CacheConfig struct {
	Address string        `yaml:"address,omitempty"`
	TTL     time.Duration `yaml:"ttl,omitempty"`
}

// AuditConfig contains the optional Postgres-backed session audit log
// settings. Empty DSN disables audit logging.
type AuditConfig struct {
	DSN string `yaml:"dsn,omitempty"`
}

// DiagnosticsConfig contains the optional HTTP/WebSocket/Prometheus
// status server settings. Empty Address disables the server.
type DiagnosticsConfig struct {
	Address string `yaml:"address,omitempty"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults for a
// single-camera gateway run against the anonymous directory variant.
func DefaultConfig() *Config {
	return &Config{
		Directory: DirectoryConfig{
			Type: 0,
		},
		Listen: ListenConfig{
			Address: "0.0.0.0:554",
		},
		Cache: CacheConfig{
			TTL: 5 * time.Minute,
		},
		Diagnostics: DiagnosticsConfig{},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from a YAML file, merged over the
// defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes cfg to path as YAML.
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("config: create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write file: %w", err)
	}
	return nil
}

// Validate checks that cfg is internally consistent.
func (c *Config) Validate() error {
	if c.Directory.Type < 0 || c.Directory.Type > 1 {
		return fmt.Errorf("directory.type must be 0 or 1, got %d", c.Directory.Type)
	}
	if c.Directory.Type == 1 && (c.Directory.Username == "" || c.Directory.Password == "") {
		return fmt.Errorf("directory.username and directory.password are required when directory.type is 1")
	}
	if c.Listen.Address == "" {
		return fmt.Errorf("listen.address cannot be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// GetConfigPath returns the default config file path under the user's
// home directory.
func GetConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".camgate", "config.yaml")
}

// LoadOrCreateConfig loads an existing config file or writes and returns
// a fresh default one.
func LoadOrCreateConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.SaveConfig(path); err != nil {
			return nil, fmt.Errorf("config: save default: %w", err)
		}
		return cfg, nil
	}
	return LoadConfig(path)
}
