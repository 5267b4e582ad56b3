package tethering

import (
	"time"

	"github.com/plexsphere/tetherd/internal/dhcpsrv"
	"github.com/plexsphere/tetherd/internal/netreg"
)

// Mode is the tethering mode a bridge is operating in.
type Mode int

const (
	// ModeNone means tethering is off.
	ModeNone Mode = iota
	// ModeNAT stands up a DHCP+NAT island behind the bridge.
	ModeNAT
	// ModeBridgedAP moves the upstream ethernet into the bridge itself.
	ModeBridgedAP
)

func (m Mode) String() string {
	switch m {
	case ModeNAT:
		return "nat"
	case ModeBridgedAP:
		return "bridged-ap"
	default:
		return "none"
	}
}

// BridgeController manages the kernel bridge link. Satisfied
// structurally by *netctl.BridgeController without this package
// importing netctl: netctl is Linux-only (//go:build linux), while
// tethering stays cross-platform and independently testable against
// fakes.
type BridgeController interface {
	Create(name string) error
	Enable(name string, gateway string, prefixLen int, broadcast string) error
	Disable(name string) error
	Remove(name string) error
	Ifindex(name string) (int, error)
	AddToBridge(ifaceIndex int, bridgeName string) error
	RemoveFromBridge(ifaceIndex int, bridgeName string) error
}

// LinkUpper brings an arbitrary interface up by index, used only
// during bridged-AP disable to restore the upstream ethernet to its
// pre-tethering state.
type LinkUpper interface {
	SetUp(ifaceIndex int) error
}

// NATController enables/disables masquerade for a subnet. The same
// interface shape is used by internal/privnet for per-client NAT,
// matching spec.md's note that per-client NAT piggybacks on the
// bridge's masquerade chain.
type NATController interface {
	Enable(ip string, prefixLen int) error
	Disable(ip string, prefixLen int) error
}

// PoolSlot is a reserved IP-pool block, matching the `ippool_get_*`
// accessor contract.
type PoolSlot interface {
	Gateway() string
	Broadcast() string
	SubnetMask() string
	PrefixLen() int
	StartIP() string
	EndIP() string
	Release()
}

// PoolAllocator reserves pool slots anchored at a link index.
// *ippool.Pool cannot satisfy this directly (its Reserve returns the
// concrete *ippool.Slot), so the composition root wraps it in a thin
// adapter that upcasts the returned slot to PoolSlot.
type PoolAllocator interface {
	Reserve(anchorIndex, offset, count int, onExternalUse func()) (PoolSlot, error)
}

// DHCPServer runs a DHCPv4 server over a bridge, matching
// `dhcp_server_new` + setters + `start`/`unref`.
type DHCPServer interface {
	Start(ifaceIndex int, rng dhcpsrv.IPRange, leaseTime time.Duration, gateway, subnetMask, dns string) error
	Stop() error
}

// DNSProxy registers a bridge index as a DNS listener, matching
// `dnsproxy_add_listener`/`dnsproxy_remove_listener`.
type DNSProxy interface {
	AddListener(ifaceIndex int, listenAddr string) error
	RemoveListener(ifaceIndex int) error
}

// IPv6PD performs best-effort prefix delegation. Neither method
// returns an error: per spec.md §4.1 step 9, PD failures are logged
// and never block enable/disable.
type IPv6PD interface {
	Setup(bridgeName, upstreamName string)
	Cleanup(bridgeName string)
}

// Registry resolves devices to services and rebinds a service's
// effective index during bridged-AP transitions. netreg.Registry
// satisfies this directly; tethering imports netreg because it is a
// plain in-memory package with no platform dependency of its own.
type Registry interface {
	DeviceByIndex(idx int) (*netreg.Device, bool)
	ServiceByIndex(idx int) (*netreg.Service, bool)
	RebindServiceIndex(oldIndex, newIndex int)
}

// Device is the minimal device handle TargetIndexFor needs.
type Device struct {
	Name  string
	Index int
}
