package privnet

import "fmt"

// Config holds the static parameters the Manager needs, mirroring the
// teacher's per-package Config + ApplyDefaults/Validate convention.
type Config struct {
	// BridgeName is the tethering bridge per-client NAT piggybacks on.
	BridgeName string `yaml:"bridge_name"`

	// MTU is set on every freshly created tun device.
	MTU int `yaml:"mtu"`
}

// ApplyDefaults fills unset fields with tetherd's defaults.
func (c *Config) ApplyDefaults() {
	if c.BridgeName == "" {
		c.BridgeName = "tether"
	}
	if c.MTU == 0 {
		c.MTU = 1500
	}
}

// Validate reports whether the config is usable.
func (c *Config) Validate() error {
	if c.BridgeName == "" {
		return fmt.Errorf("privnet: config: bridge_name is required")
	}
	if c.MTU <= 0 {
		return fmt.Errorf("privnet: config: mtu must be > 0")
	}
	return nil
}
