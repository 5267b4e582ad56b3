//go:build linux

// Package netctl adapts the kernel-level collaborators the tethering
// core depends on — bridge link management, NAT masquerade, tun
// device creation, and link-change notification — onto Linux netlink
// and nftables. Every exported type here satisfies the small,
// independently-declared interfaces tethering.Engine and
// privnet.Manager expect from their collaborators; neither of those
// packages is imported here.
package netctl

import (
	"errors"
	"fmt"

	"github.com/vishvananda/netlink"
)

// Ifindex returns the kernel interface index for name, or a negative
// value if the interface does not exist, matching the §6 contract
// `inet_ifindex(name) → int`.
func Ifindex(name string) (int, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return -1, fmt.Errorf("netctl: ifindex %q: not found", name)
		}
		return -1, fmt.Errorf("netctl: ifindex %q: %w", name, err)
	}
	return link.Attrs().Index, nil
}
