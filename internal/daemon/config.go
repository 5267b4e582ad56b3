// Package daemon aggregates every subsystem's Config into the single
// top-level tetherd configuration, mirroring plexd's AgentConfig
// pattern: one YAML file, one ApplyDefaults, one Validate.
package daemon

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/plexsphere/tetherd/internal/ctlapi"
	"github.com/plexsphere/tetherd/internal/privnet"
	"github.com/plexsphere/tetherd/internal/tethering"
)

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// Config is the top-level configuration for the tetherd daemon.
type Config struct {
	// LogLevel is the log level: "debug", "info", "warn", "error".
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// Upstream is the default upstream interface name used by the
	// enable CLI subcommand when --upstream is not given.
	Upstream string `yaml:"upstream"`

	Tethering tethering.Config `yaml:"tethering"`
	PrivNet   privnet.Config   `yaml:"private_network"`
	CtlAPI    ctlapi.Config    `yaml:"ctl_api"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.Tethering.ApplyDefaults()
	c.PrivNet.ApplyDefaults()
	c.CtlAPI.ApplyDefaults()
}

// Validate checks that required fields are set and values are acceptable.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("daemon: config: invalid log_level %q", c.LogLevel)
	}
	if err := c.Tethering.Validate(); err != nil {
		return err
	}
	if err := c.PrivNet.Validate(); err != nil {
		return err
	}
	if err := c.CtlAPI.Validate(); err != nil {
		return err
	}
	return nil
}

// ParseConfig reads a YAML configuration file and returns a Config.
// It applies defaults and validates the configuration.
func ParseConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("daemon: config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("daemon: config: parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
