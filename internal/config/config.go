// Package config loads casestore settings from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/casestore/internal/codec"
)

// Config holds all casestore configuration.
type Config struct {
	// Format is the wire format written by convert and record.
	Format string `yaml:"format"` // text, binary

	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`  // JSON lines instead of console output
}

// StoreConfig configures the SQLite archive.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig configures metrics output.
type MetricsConfig struct {
	// Enabled dumps the counters to stderr when a command finishes.
	Enabled bool `yaml:"enabled"`
}

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "casestore.yaml"

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Format: codec.Binary.String(),
		Log: LogConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Path: "casestore.db",
		},
	}
}

// Load loads configuration from a YAML file, then applies environment
// overrides. A missing file is not an error: the overrides apply to the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("CASESTORE_DB"); path != "" {
		c.Store.Path = path
	}
	if level := os.Getenv("CASESTORE_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// ValidLevels lists the accepted log levels.
var ValidLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	f, err := codec.ParseFormat(c.Format)
	if err != nil {
		return err
	}
	if f == codec.Auto {
		return fmt.Errorf("format must be text or binary, got %q", c.Format)
	}

	validLevel := false
	for _, l := range ValidLevels {
		if c.Log.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Log.Level, ValidLevels)
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}
	return nil
}

// WireFormat returns the configured format. Validate must have passed.
func (c *Config) WireFormat() codec.Format {
	f, _ := codec.ParseFormat(c.Format)
	return f
}
