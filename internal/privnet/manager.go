// Package privnet implements the per-client private-network lifecycle:
// tunnel interface creation, address assignment, NAT activation, reply
// assembly, ownership tracking, and automatic cleanup on link change
// or owner death. It is the Private Network Manager half of the
// tethering core (spec.md §4.2); global enable/disable lives in
// internal/tethering.
package privnet

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// poolOffset/poolCount size a private network's reservation at
// (offset=1, count=2): the smallest window giving both a distinct
// server and peer address, which the block-size formula in
// internal/ippool rounds up to a /30 — reproducing spec.md §8's S4
// worked example (server .1, peer .2, mask /30) exactly.
const (
	poolOffset = 1
	poolCount  = 2
)

// privateNetwork is one active or pending client session, matching
// spec.md §3's "Private network entity."
type privateNetwork struct {
	owner  string
	path   string
	fd     *os.File
	ifname string
	index  int

	slot                     PoolSlot
	primaryDNS, secondaryDNS string

	cancelLinkWatch  func()
	cancelOwnerWatch func()

	mu            sync.Mutex
	linkUpHandled bool
}

// Manager owns the path -> privateNetwork table and all collaborator
// handles private networks need.
type Manager struct {
	logger *slog.Logger
	cfg    Config

	tun        TunnelFactory
	ifindex    Ifindexer
	addr       AddressConfigurator
	linkWatch  LinkWatcher
	ownerWatch OwnerWatcher
	nat        NATController
	pool       PoolAllocator
	dns        DNSSource
	reply      ReplySink

	mu       sync.Mutex
	networks map[string]*privateNetwork
}

// New constructs a Manager. cfg must already have ApplyDefaults/
// Validate applied by the caller.
func New(
	logger *slog.Logger,
	cfg Config,
	tun TunnelFactory,
	ifindex Ifindexer,
	addr AddressConfigurator,
	linkWatch LinkWatcher,
	ownerWatch OwnerWatcher,
	nat NATController,
	pool PoolAllocator,
	dns DNSSource,
	reply ReplySink,
) *Manager {
	return &Manager{
		logger:     logger,
		cfg:        cfg,
		tun:        tun,
		ifindex:    ifindex,
		addr:       addr,
		linkWatch:  linkWatch,
		ownerWatch: ownerWatch,
		nat:        nat,
		pool:       pool,
		dns:        dns,
		reply:      reply,
		networks:   make(map[string]*privateNetwork),
	}
}

// Count returns the number of active/pending private networks.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.networks)
}

// Request creates a new tun device and registers a pending private
// network for owner. It returns the synthesized path immediately; the
// reply is not sent until the link comes up (see handleLinkEvent).
func (m *Manager) Request(owner string) (string, error) {
	var unwind []func()
	rollback := func() {
		for i := len(unwind) - 1; i >= 0; i-- {
			unwind[i]()
		}
	}

	fd, ifname, err := m.tun.Create()
	if err != nil {
		return "", fmt.Errorf("privnet: request: create tunnel: %w", err)
	}
	unwind = append(unwind, func() { _ = fd.Close() })

	path := fmt.Sprintf("/tethering/%s", ifname)

	m.mu.Lock()
	_, exists := m.networks[path]
	m.mu.Unlock()
	if exists {
		rollback()
		return "", fmt.Errorf("privnet: request: %q already exists", path)
	}

	index, err := m.ifindex.Ifindex(ifname)
	if err != nil || index < 0 {
		rollback()
		return "", fmt.Errorf("privnet: request: resolve index of %q: %w", ifname, err)
	}

	if err := m.addr.SetMTU(index, m.cfg.MTU); err != nil {
		rollback()
		return "", fmt.Errorf("privnet: request: set mtu: %w", err)
	}

	pn := &privateNetwork{
		owner:  owner,
		path:   path,
		fd:     fd,
		ifname: ifname,
		index:  index,
	}

	slot, err := m.pool.Reserve(index, poolOffset, poolCount, func() { m.removeSilently(path) })
	if err != nil {
		rollback()
		return "", fmt.Errorf("privnet: request: reserve pool: %w", err)
	}
	unwind = append(unwind, slot.Release)
	pn.slot = slot

	primary, secondary := m.dns.FallbackDNS()
	pn.primaryDNS, pn.secondaryDNS = primary, secondary

	cancelLink, err := m.linkWatch.Subscribe(index, func(flags uint32) { m.handleLinkEvent(pn, flags) })
	if err != nil {
		rollback()
		return "", fmt.Errorf("privnet: request: subscribe link watch: %w", err)
	}
	pn.cancelLinkWatch = cancelLink
	unwind = append(unwind, cancelLink)

	cancelOwner, err := m.ownerWatch.Watch(owner, func() { m.removeSilently(path) })
	if err != nil {
		rollback()
		return "", fmt.Errorf("privnet: request: subscribe owner watch: %w", err)
	}
	pn.cancelOwnerWatch = cancelOwner

	m.mu.Lock()
	m.networks[path] = pn
	m.mu.Unlock()

	m.logger.Debug("private network requested",
		"component", "privnet", "owner", owner, "path", path, "interface", ifname)
	return path, nil
}

// Release removes the private network at path and tears it down.
// Missing path is reported as an access-denied error, matching
// spec.md §4.2.
func (m *Manager) Release(path string) error {
	m.mu.Lock()
	pn, ok := m.networks[path]
	if ok {
		delete(m.networks, path)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("privnet: release: %q: access denied", path)
	}
	m.teardown(pn)
	return nil
}

// removeSilently tears down the network at path without returning an
// error to any caller, for the owner-vanished and pool-reused paths
// where spec.md §7 says removal is "not surfaced as an error to
// anyone."
func (m *Manager) removeSilently(path string) {
	m.mu.Lock()
	pn, ok := m.networks[path]
	if ok {
		delete(m.networks, path)
	}
	m.mu.Unlock()
	if ok {
		m.teardown(pn)
	}
}

// handleLinkEvent is setup_tun_interface's Go equivalent. It
// de-bounces per spec.md §4.2: the link watcher calls the handler on
// every change, but setup must run exactly once.
//
// Observed bug preserved literally (spec.md §9 "link-watch
// de-bounce"): the guard below proceeds only when IFF_UP is *absent*
// from this notification — i.e. it completes setup on a not-yet-up
// event, the inverse of the intuitive "wait for link-up" reading.
// spec.md explicitly preserves this as observed behavior rather than
// the presumably-intended polarity; do not "fix" this without
// confirming real link-watcher semantics first.
func (m *Manager) handleLinkEvent(pn *privateNetwork, flags uint32) {
	pn.mu.Lock()
	if pn.linkUpHandled {
		pn.mu.Unlock()
		return
	}
	if flags&iffUp != 0 {
		pn.mu.Unlock()
		return
	}
	pn.linkUpHandled = true
	pn.mu.Unlock()

	m.completeSetup(pn)
}

// completeSetup configures the tun device's address, brings it up,
// enables per-client NAT, and delivers the reply.
func (m *Manager) completeSetup(pn *privateNetwork) {
	serverIP := pn.slot.StartIP()
	peerIP := pn.slot.EndIP()
	prefixLen := pn.slot.PrefixLen()

	if err := m.addr.ReplaceAddress(pn.index, serverIP, peerIP, prefixLen); err != nil {
		m.failSetup(pn, fmt.Errorf("configure address: %w", err))
		return
	}
	if err := m.addr.SetUp(pn.index); err != nil {
		m.failSetup(pn, fmt.Errorf("bring interface up: %w", err))
		return
	}
	// Per-client NAT piggybacks on the same masquerade chain the
	// tethering Engine manages (spec.md §4.2 note).
	if err := m.nat.Enable(serverIP, prefixLen); err != nil {
		m.failSetup(pn, fmt.Errorf("enable nat: %w", err))
		return
	}

	fields := ReplyFields{
		ServerIPv4:   serverIP,
		PeerIPv4:     peerIP,
		PrimaryDNS:   pn.primaryDNS,
		SecondaryDNS: pn.secondaryDNS,
	}
	if err := m.reply.SendReply(pn.path, fields, pn.fd); err != nil {
		m.logger.Error("private network reply delivery failed",
			"component", "privnet", "path", pn.path, "error", err)
	}
}

// failSetup sends an error reply and removes the record, matching
// spec.md §4.2's "On NAT failure, constructs an error reply and
// removes the record" (generalized to any post-link-up setup step).
func (m *Manager) failSetup(pn *privateNetwork, err error) {
	if sendErr := m.reply.SendError(pn.path, err); sendErr != nil {
		m.logger.Error("private network error reply delivery failed",
			"component", "privnet", "path", pn.path, "error", sendErr)
	}
	m.removeSilently(pn.path)
}

// teardown is remove_private_network: disable NAT, unsubscribe link
// watch, release the pool slot, unsubscribe owner watch, close fd.
// Safe even if the link-up handler never fired (NAT was never
// enabled, the address was never configured).
func (m *Manager) teardown(pn *privateNetwork) {
	if err := m.nat.Disable(pn.slot.StartIP(), pn.slot.PrefixLen()); err != nil {
		m.logger.Warn("nat disable failed during teardown",
			"component", "privnet", "path", pn.path, "error", err)
	}
	if pn.cancelLinkWatch != nil {
		pn.cancelLinkWatch()
	}
	pn.slot.Release()
	if pn.cancelOwnerWatch != nil {
		pn.cancelOwnerWatch()
	}
	if pn.fd != nil {
		_ = pn.fd.Close()
	}
	m.logger.Debug("private network removed", "component", "privnet", "path", pn.path)
}
