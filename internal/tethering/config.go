package tethering

import "fmt"

// Config holds the static parameters the Engine needs before it can
// enable either mode, mirroring the teacher's per-package Config +
// ApplyDefaults/Validate convention.
type Config struct {
	// BridgeName is the fixed name of the Linux bridge tetherd creates
	// at startup and removes at shutdown, independent of enable state.
	BridgeName string `yaml:"bridge_name"`

	// PoolOffset/PoolSize describe the NAT-mode pool reservation window
	// per spec.md §4.1 step 2 (offset=2, size=252 in the worked
	// example).
	PoolOffset int `yaml:"pool_offset"`
	PoolSize   int `yaml:"pool_size"`

	// FallbackNameservers backs C12: DNS servers used when the DNS
	// proxy cannot register on the bridge, read once per NAT enable.
	FallbackNameservers []string `yaml:"fallback_nameservers"`
}

// ApplyDefaults fills unset fields with tetherd's defaults.
func (c *Config) ApplyDefaults() {
	if c.BridgeName == "" {
		c.BridgeName = "tether"
	}
	if c.PoolOffset == 0 && c.PoolSize == 0 {
		c.PoolOffset = 2
		c.PoolSize = 252
	}
	if len(c.FallbackNameservers) == 0 {
		c.FallbackNameservers = []string{"8.8.8.8", "8.8.4.4"}
	}
}

// Validate reports whether the config is usable.
func (c *Config) Validate() error {
	if c.BridgeName == "" {
		return fmt.Errorf("tethering: config: bridge_name is required")
	}
	if c.PoolOffset < 0 {
		return fmt.Errorf("tethering: config: pool_offset must be >= 0")
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("tethering: config: pool_size must be > 0")
	}
	return nil
}
