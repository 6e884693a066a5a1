// Package config loads the tool configuration: byte order, decode
// strictness, schema files for extension messages, and the metrics
// listener.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"xwire/pkg/wire"
)

type Config struct {
	// ByteOrder is "big" or "little". Streams scanned with a setup
	// prefix override it with the connection's own byte-order byte.
	ByteOrder string `yaml:"byte_order"`
	Strict    Strict `yaml:"strict"`
	// SchemaFiles lists YAML layout files to register on top of the
	// built-in catalogue.
	SchemaFiles []string `yaml:"schema_files"`
	Metrics     Metrics  `yaml:"metrics"`
}

// Strict selects which malformations abort a decode instead of being
// tolerated.
type Strict struct {
	// Padding rejects nonzero bytes in padding and unused positions.
	Padding bool `yaml:"padding"`
	// Mask rejects bitmask bits outside the defined slot set.
	Mask bool `yaml:"mask"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.ByteOrder == "" {
		c.ByteOrder = "little"
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:9321"
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.ByteOrder)) {
	case "big", "little":
	default:
		return fmt.Errorf("byte_order %q: want \"big\" or \"little\"", c.ByteOrder)
	}
	for _, f := range c.SchemaFiles {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("schema_files: empty path")
		}
	}
	return nil
}

// Order returns the configured wire byte order.
func (c *Config) Order() wire.ByteOrder {
	if strings.ToLower(strings.TrimSpace(c.ByteOrder)) == "big" {
		return wire.BigEndian
	}
	return wire.LittleEndian
}

// Policy returns the decode policy the strictness flags select. Either
// strict flag enables the strict policy; the individual flags are kept
// distinct in the file so configs read naturally.
func (c *Config) Policy() wire.Policy {
	if c.Strict.Padding || c.Strict.Mask {
		return wire.Strict
	}
	return wire.Lenient
}
