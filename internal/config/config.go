// Package config loads the server configuration from a YAML file with
// COEHUB_* environment overrides. Blob storage is configured separately
// through the blob package's own environment factory.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Persistence selects the record store backend.
type Persistence struct {
	// Driver is memory, sqlite, or postgres.
	Driver string `yaml:"driver"`
	// Path is the database file location for the sqlite driver.
	Path string `yaml:"path"`
	// DSN is the connection string for the postgres driver.
	DSN string `yaml:"dsn"`
}

// Config is the full server configuration.
type Config struct {
	Listen      string      `yaml:"listen"`
	LogLevel    string      `yaml:"log_level"`
	Persistence Persistence `yaml:"persistence"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:      ":8080",
		LogLevel:    "info",
		Persistence: Persistence{Driver: "memory"},
	}
}

// Load reads a YAML configuration file and applies environment overrides.
// An empty path yields the defaults plus overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
		if cfg.Listen == "" {
			cfg.Listen = Default().Listen
		}
		if cfg.LogLevel == "" {
			cfg.LogLevel = Default().LogLevel
		}
		if cfg.Persistence.Driver == "" {
			cfg.Persistence.Driver = Default().Persistence.Driver
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("COEHUB_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("COEHUB_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("COEHUB_PERSISTENCE_DRIVER"); v != "" {
		c.Persistence.Driver = v
	}
	if v := os.Getenv("COEHUB_PERSISTENCE_PATH"); v != "" {
		c.Persistence.Path = v
	}
	if v := os.Getenv("COEHUB_PERSISTENCE_DSN"); v != "" {
		c.Persistence.DSN = v
	}
}

func (c Config) validate() error {
	switch c.Persistence.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown persistence driver %q", c.Persistence.Driver)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}
