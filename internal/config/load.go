package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads, defaults, and validates the configuration at path.
func LoadFile(path string) (*Config, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML bytes into a defaulted, validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// UserData returns the bootstrap payload referenced by UserDataFile, or nil.
func (c *Config) UserData() ([]byte, error) {
	if c.UserDataFile == "" {
		return nil, nil
	}
	// #nosec G304
	data, err := os.ReadFile(c.UserDataFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read user data file: %w", err)
	}
	return data, nil
}
