// Package ipv6pd handles IPv6 prefix delegation on tethering bridges.
// Per spec.md, PD is best-effort only: tethering enable/disable must
// never fail because PD is unavailable, slow, or unsupported on a
// given upstream. No DHCPv6-PD client exists anywhere in the example
// corpus, so this package talks directly to the kernel's own RA/PD
// handling rather than embedding a protocol stack of its own.
package ipv6pd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Delegator requests IPv6 prefix delegation onto a bridge by enabling
// kernel-side accept_ra/forwarding for the bridge and its upstream,
// matching the §6 `ipv6pd` best-effort contract: no method here ever
// returns an error the caller must treat as enable-blocking.
type Delegator struct {
	logger *slog.Logger

	procPath string // overridable in tests; defaults to /proc/sys/net/ipv6
}

// NewDelegator returns a Delegator that reads/writes the real
// /proc/sys/net/ipv6 tree.
func NewDelegator(logger *slog.Logger) *Delegator {
	return &Delegator{logger: logger, procPath: "/proc/sys/net/ipv6"}
}

// Setup enables router-advertisement acceptance on the upstream and
// forwarding on the bridge so the kernel can pick up a delegated
// prefix from upstream.
// Failures are logged and swallowed: PD is a nice-to-have, never a
// precondition for tethering to come up.
func (d *Delegator) Setup(bridgeName, upstreamName string) {
	if err := d.writeConf(upstreamName, "accept_ra", "2"); err != nil {
		d.logger.Debug("ipv6 pd: accept_ra on upstream unavailable", "component", "ipv6pd", "interface", upstreamName, "error", err)
	}
	if err := d.writeConf(bridgeName, "forwarding", "1"); err != nil {
		d.logger.Debug("ipv6 pd: forwarding on bridge unavailable", "component", "ipv6pd", "interface", bridgeName, "error", err)
	}
	d.logger.Debug("ipv6 pd setup attempted", "component", "ipv6pd", "bridge", bridgeName, "upstream", upstreamName)
}

// Cleanup reverts forwarding on the bridge. Unconditional and
// idempotent: called during disable regardless of whether Setup ever
// succeeded.
func (d *Delegator) Cleanup(bridgeName string) {
	if err := d.writeConf(bridgeName, "forwarding", "0"); err != nil {
		d.logger.Debug("ipv6 pd: cleanup unavailable", "component", "ipv6pd", "interface", bridgeName, "error", err)
	}
}

func (d *Delegator) writeConf(iface, key, value string) error {
	path := filepath.Join(d.procPath, "conf", iface, key)
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("ipv6pd: %s/%s: %w", iface, key, err)
		}
		return fmt.Errorf("ipv6pd: %s/%s: %w", iface, key, err)
	}
	return nil
}
