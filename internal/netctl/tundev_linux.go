//go:build linux

package netctl

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync/atomic"

	"github.com/vishvananda/netlink"
)

// tunNameCounter generates unique tun interface names across
// concurrent private-network requests.
var tunNameCounter atomic.Uint64

// TunnelFactory creates point-to-point tun devices for private
// network sessions, matching the §6 contract
// `inet_create_tunnel(&outname) → fd`.
type TunnelFactory struct {
	logger *slog.Logger
}

// NewTunnelFactory returns a new TunnelFactory.
func NewTunnelFactory(logger *slog.Logger) *TunnelFactory {
	return &TunnelFactory{logger: logger}
}

// Create allocates a fresh tun device, named tun<N> from a
// process-wide counter, and returns its file descriptor and name.
func (f *TunnelFactory) Create() (*os.File, string, error) {
	name := fmt.Sprintf("tun%d", tunNameCounter.Add(1))

	tun := &netlink.Tuntap{
		LinkAttrs: netlink.LinkAttrs{Name: name},
		Mode:      netlink.TUNTAP_MODE_TUN,
		Queues:    1,
	}
	if err := netlink.LinkAdd(tun); err != nil {
		return nil, "", fmt.Errorf("netctl: tunnel: create %q: %w", name, err)
	}
	if len(tun.Fds) == 0 {
		return nil, "", fmt.Errorf("netctl: tunnel: create %q: no file descriptor returned", name)
	}

	f.logger.Debug("tunnel interface created", "component", "netctl", "interface", name)
	return tun.Fds[0], name, nil
}

// AddressConfigurator assigns addresses and link state on interfaces
// by kernel index, matching the §6 `inet_set_mtu`, `inet_ifup`, and
// `inet_modify_address` contracts.
type AddressConfigurator struct {
	logger *slog.Logger
}

// NewAddressConfigurator returns a new AddressConfigurator.
func NewAddressConfigurator(logger *slog.Logger) *AddressConfigurator {
	return &AddressConfigurator{logger: logger}
}

// SetMTU configures the interface's MTU.
func (a *AddressConfigurator) SetMTU(ifaceIndex, mtu int) error {
	link, err := netlink.LinkByIndex(ifaceIndex)
	if err != nil {
		return fmt.Errorf("netctl: set mtu: lookup index %d: %w", ifaceIndex, err)
	}
	if err := netlink.LinkSetMTU(link, mtu); err != nil {
		return fmt.Errorf("netctl: set mtu: %w", err)
	}
	return nil
}

// SetUp brings the interface up.
func (a *AddressConfigurator) SetUp(ifaceIndex int) error {
	link, err := netlink.LinkByIndex(ifaceIndex)
	if err != nil {
		return fmt.Errorf("netctl: set up: lookup index %d: %w", ifaceIndex, err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("netctl: set up: %w", err)
	}
	return nil
}

// ReplaceAddress configures a point-to-point address on the
// interface: local/prefixLen with peer as the destination address,
// replacing any existing address (RTM_NEWADDR with NLM_F_REPLACE in
// the original netlink contract).
func (a *AddressConfigurator) ReplaceAddress(ifaceIndex int, local, peer string, prefixLen int) error {
	link, err := netlink.LinkByIndex(ifaceIndex)
	if err != nil {
		return fmt.Errorf("netctl: replace address: lookup index %d: %w", ifaceIndex, err)
	}

	addr := &netlink.Addr{
		IPNet: &net.IPNet{
			IP:   net.ParseIP(local),
			Mask: net.CIDRMask(prefixLen, 32),
		},
		Peer: &net.IPNet{
			IP:   net.ParseIP(peer),
			Mask: net.CIDRMask(32, 32),
		},
	}
	if err := netlink.AddrReplace(link, addr); err != nil {
		return fmt.Errorf("netctl: replace address on index %d: %w", ifaceIndex, err)
	}

	a.logger.Debug("address configured",
		"component", "netctl",
		"index", ifaceIndex,
		"local", local,
		"peer", peer,
	)
	return nil
}
