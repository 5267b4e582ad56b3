package privnet

import "os"

// iffUp mirrors the kernel's IFF_UP flag bit. Kept private and
// duplicated from netctl's constant of the same value rather than
// imported, so this package stays decoupled from the Linux-only
// adapter package (structural typing, no import).
const iffUp uint32 = 0x1

// TunnelFactory creates a point-to-point tun device, matching the §6
// `inet_create_tunnel(&outname) → fd` contract.
type TunnelFactory interface {
	Create() (fd *os.File, ifname string, err error)
}

// Ifindexer resolves an interface name to its kernel index, matching
// `inet_ifindex`. Satisfied by the same BridgeController adapter the
// Engine uses: both the bridge and a freshly created tun device are
// looked up the same way.
type Ifindexer interface {
	Ifindex(name string) (int, error)
}

// AddressConfigurator assigns MTU, link state, and point-to-point
// addresses by kernel index, matching `inet_set_mtu`, `inet_ifup`, and
// `inet_modify_address`.
type AddressConfigurator interface {
	SetMTU(ifaceIndex, mtu int) error
	SetUp(ifaceIndex int) error
	ReplaceAddress(ifaceIndex int, local, peer string, prefixLen int) error
}

// LinkWatcher delivers link state notifications per interface index,
// matching `rtnl_add_newlink_watch`/`rtnl_remove_watch`. The handler
// receives raw kernel flags.
type LinkWatcher interface {
	Subscribe(ifaceIndex int, handler func(flags uint32)) (cancel func(), err error)
}

// OwnerWatcher tracks presence of the bus name that requested a
// private network, matching `dbus_add_disconnect_watch`/
// `dbus_remove_watch`. Production wiring is a bus transport; this
// module only depends on the contract (spec.md §1 non-goal: the
// object-bus transport itself).
type OwnerWatcher interface {
	Watch(owner string, onGone func()) (cancel func(), err error)
}

// NATController enables/disables masquerade for a subnet. Identical
// shape to tethering.NATController — per spec.md §4.2's note, the
// same bridge-wide masquerade chain serves per-client NAT.
type NATController interface {
	Enable(ip string, prefixLen int) error
	Disable(ip string, prefixLen int) error
}

// PoolSlot is the subset of the reserved IP-pool block a private
// network needs.
type PoolSlot interface {
	StartIP() string
	EndIP() string
	SubnetMask() string
	PrefixLen() int
	Release()
}

// PoolAllocator reserves pool slots anchored at a link index. Same
// shape as tethering.PoolAllocator; the composition root wires both
// packages to the same underlying *ippool.Pool through one adapter
// each, since each package declares its own interface independently.
type PoolAllocator interface {
	Reserve(anchorIndex, offset, count int, onExternalUse func()) (PoolSlot, error)
}

// DNSSource snapshots the tethering engine's fallback DNS strings.
// Satisfied by *tethering.Engine.
type DNSSource interface {
	FallbackDNS() (primary, secondary string)
}

// ReplyFields is the body of a private-network reply, matching the §6
// bus message contract: object path, dict of string pairs, and an
// out-of-band descriptor (carried separately as the fd argument to
// ReplySink.SendReply).
type ReplyFields struct {
	ServerIPv4   string
	PeerIPv4     string
	PrimaryDNS   string
	SecondaryDNS string
}

// ReplySink delivers request/error replies over the object bus.
// Production wiring is a bus transport; this module only depends on
// the contract (spec.md §1 non-goal).
type ReplySink interface {
	SendReply(path string, fields ReplyFields, fd *os.File) error
	SendError(path string, err error) error
}
