//go:build linux

package netctl

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"syscall"

	"github.com/vishvananda/netlink"
)

// BridgeController manages the Linux bridge device tethering core
// runs on top of: creation/removal of the bridge link itself,
// address enable/disable, and ethernet enslavement for bridged-AP
// mode. It implements tethering.BridgeController and, through Ifindex,
// privnet.Ifindexer.
type BridgeController struct {
	logger *slog.Logger
}

// NewBridgeController returns a new BridgeController.
func NewBridgeController(logger *slog.Logger) *BridgeController {
	return &BridgeController{logger: logger}
}

// Create creates the named bridge link. Idempotent: creating an
// existing bridge returns nil.
func (c *BridgeController) Create(name string) error {
	link := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: name}}
	if err := netlink.LinkAdd(link); err != nil {
		if errors.Is(err, syscall.EEXIST) {
			return nil
		}
		return fmt.Errorf("netctl: bridge: create %q: %w", name, err)
	}
	c.logger.Debug("bridge created", "component", "netctl", "bridge", name)
	return nil
}

// Remove deletes the named bridge link. Idempotent: removing an
// absent bridge returns nil.
func (c *BridgeController) Remove(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("netctl: bridge: remove %q: %w", name, err)
	}
	if err := netlink.LinkDel(link); err != nil {
		return fmt.Errorf("netctl: bridge: remove %q: %w", name, err)
	}
	c.logger.Debug("bridge removed", "component", "netctl", "bridge", name)
	return nil
}

// Enable brings the bridge up and, when gateway is non-empty,
// configures gateway/prefixLen/broadcast on it. An empty gateway
// configures the bridge as L2-only, the shape bridged-AP mode needs.
// Idempotent: re-enabling with the same address is a no-op success.
func (c *BridgeController) Enable(name string, gateway string, prefixLen int, broadcast string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("netctl: bridge: enable %q: %w", name, err)
	}

	if gateway != "" {
		addr := &netlink.Addr{
			IPNet: &net.IPNet{
				IP:   net.ParseIP(gateway),
				Mask: net.CIDRMask(prefixLen, 32),
			},
		}
		if broadcast != "" {
			addr.Broadcast = net.ParseIP(broadcast)
		}
		if err := netlink.AddrReplace(link, addr); err != nil {
			return fmt.Errorf("netctl: bridge: enable %q: set address: %w", name, err)
		}
	}

	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("netctl: bridge: enable %q: link up: %w", name, err)
	}

	c.logger.Debug("bridge enabled",
		"component", "netctl",
		"bridge", name,
		"gateway", gateway,
		"prefix_len", prefixLen,
	)
	return nil
}

// Disable brings the bridge down. Idempotent.
func (c *BridgeController) Disable(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("netctl: bridge: disable %q: %w", name, err)
	}
	if err := netlink.LinkSetDown(link); err != nil {
		return fmt.Errorf("netctl: bridge: disable %q: %w", name, err)
	}
	c.logger.Debug("bridge disabled", "component", "netctl", "bridge", name)
	return nil
}

// Ifindex returns the bridge's kernel interface index, or a negative
// value if it does not exist.
func (c *BridgeController) Ifindex(name string) (int, error) {
	return Ifindex(name)
}

// AddToBridge enslaves the link at ifaceIndex into the named bridge.
// Idempotent: enslaving an already-enslaved link returns nil.
func (c *BridgeController) AddToBridge(ifaceIndex int, bridgeName string) error {
	link, err := netlink.LinkByIndex(ifaceIndex)
	if err != nil {
		return fmt.Errorf("netctl: bridge: add to bridge: lookup index %d: %w", ifaceIndex, err)
	}
	bridge, err := netlink.LinkByName(bridgeName)
	if err != nil {
		return fmt.Errorf("netctl: bridge: add to bridge: lookup %q: %w", bridgeName, err)
	}
	if link.Attrs().MasterIndex == bridge.Attrs().Index {
		return nil
	}
	if err := netlink.LinkSetMaster(link, bridge); err != nil {
		if errors.Is(err, syscall.EEXIST) {
			return nil
		}
		return fmt.Errorf("netctl: bridge: add %s to %q: %w", link.Attrs().Name, bridgeName, err)
	}
	c.logger.Debug("link added to bridge",
		"component", "netctl",
		"interface", link.Attrs().Name,
		"bridge", bridgeName,
	)
	return nil
}

// RemoveFromBridge un-enslaves the link at ifaceIndex from whatever
// bridge it is a member of. Idempotent: removing a non-member link
// returns nil.
func (c *BridgeController) RemoveFromBridge(ifaceIndex int, bridgeName string) error {
	link, err := netlink.LinkByIndex(ifaceIndex)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("netctl: bridge: remove from bridge: lookup index %d: %w", ifaceIndex, err)
	}
	if link.Attrs().MasterIndex == 0 {
		return nil
	}
	if err := netlink.LinkSetNoMaster(link); err != nil {
		return fmt.Errorf("netctl: bridge: remove %s from %q: %w", link.Attrs().Name, bridgeName, err)
	}
	c.logger.Debug("link removed from bridge",
		"component", "netctl",
		"interface", link.Attrs().Name,
		"bridge", bridgeName,
	)
	return nil
}
