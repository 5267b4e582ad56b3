// Package tethering implements the tethering state machine: global
// enable/disable with reference counting, NAT-vs-bridged-AP mode
// divergence, failure unwind, and egress-index redirection for upper
// layers. It is the Engine half of the tethering core; the per-client
// session lifecycle lives in internal/privnet.
package tethering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/plexsphere/tetherd/internal/dhcpsrv"
	"github.com/plexsphere/tetherd/internal/netreg"
)

// restartTicket is the payload captured at enable time and replayed
// when the pool-reuse callback fires, matching spec.md's
// `restart_ticket`.
type restartTicket struct {
	mode           Mode
	upstreamIfname string
}

// Engine is the tethering state machine. It is a plain Go value owned
// by the composition root (cmd/tetherd), not a package-level
// singleton — the "singleton" property from spec.md §9's "Global
// mutable state" note is preserved by having exactly one instance
// constructed and shared, not by language-level globals.
type Engine struct {
	logger *slog.Logger
	cfg    Config

	bridge   BridgeController
	linkUp   LinkUpper
	pool     PoolAllocator
	dhcp     DHCPServer
	nat      NATController
	dns      DNSProxy
	ipv6pd   IPv6PD
	registry Registry

	// enableCount is read-modify-written atomically because the
	// Engine is reached from at least two goroutines: whatever
	// handles enable/disable requests, and the RunRestartLoop goroutine
	// that replays the pool's external-use restarts. This resolves
	// spec.md §9's "Atomic refcount on a single-threaded model" open
	// question in favor of the multi-goroutine interpretation.
	enableCount atomic.Int64

	mu                  sync.Mutex
	activeMode          Mode
	upstreamIfname      string
	bridgeIndex         int
	poolSlot            PoolSlot
	dnsPrimary          string
	dnsSecondary        string
	natStart            string
	natPrefixLen        int
	upstreamIndex       int
	upstreamDeviceIndex int
	upstreamService     *netreg.Service

	// restartCh carries pool-reuse restart tickets from the netlink
	// callback goroutine to RunRestartLoop. Buffered by one: the
	// callback posts without blocking rather than invoking Disable/
	// Enable inline, the "canonical fix" spec.md §9 recommends for
	// re-entrancy into the Engine from a collaborator callback.
	restartCh chan restartTicket
}

// New constructs an Engine. cfg must already have ApplyDefaults/
// Validate applied by the caller.
func New(
	logger *slog.Logger,
	cfg Config,
	bridge BridgeController,
	linkUp LinkUpper,
	pool PoolAllocator,
	dhcp DHCPServer,
	nat NATController,
	dns DNSProxy,
	ipv6pd IPv6PD,
	registry Registry,
) *Engine {
	return &Engine{
		logger:    logger,
		cfg:       cfg,
		bridge:    bridge,
		linkUp:    linkUp,
		pool:      pool,
		dhcp:      dhcp,
		nat:       nat,
		dns:       dns,
		ipv6pd:    ipv6pd,
		registry:  registry,
		restartCh: make(chan restartTicket, 1),
	}
}

// ActiveMode reports the currently active mode (ModeNone if disabled).
func (e *Engine) ActiveMode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeMode
}

// EnableCount reports the current reference count, for tests and
// status reporting.
func (e *Engine) EnableCount() int64 {
	return e.enableCount.Load()
}

// FallbackDNS returns the fallback nameservers cached at the last NAT
// enable (empty strings outside NAT mode). It satisfies
// privnet.DNSSource: per spec.md §4.2, each private network snapshots
// these at request time.
func (e *Engine) FallbackDNS() (primary, secondary string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dnsPrimary, e.dnsSecondary
}

// Enable increments the reference count. If tethering was already on,
// it returns true immediately (reference semantics) unless mode
// differs from the currently active mode, in which case it is
// rejected: direct NAT<->BRIDGED_AP transitions are not supported, per
// spec.md §9's "Mode-crossing transition" note — callers must Disable
// then Enable.
func (e *Engine) Enable(mode Mode, upstreamIfname string) (bool, error) {
	prev := e.enableCount.Add(1) - 1
	if prev != 0 {
		e.mu.Lock()
		active := e.activeMode
		e.mu.Unlock()
		if active != mode {
			e.enableCount.Add(-1)
			return false, fmt.Errorf("tethering: enable: mode-crossing transition %s -> %s not supported; disable first", active, mode)
		}
		return true, nil
	}

	var err error
	switch mode {
	case ModeNAT:
		err = e.enableNAT(upstreamIfname)
	case ModeBridgedAP:
		err = e.enableBridgedAP(upstreamIfname)
	default:
		err = fmt.Errorf("tethering: enable: unknown mode %v", mode)
	}
	if err != nil {
		e.enableCount.Add(-1)
		return false, err
	}

	e.mu.Lock()
	e.activeMode = mode
	e.upstreamIfname = upstreamIfname
	e.mu.Unlock()
	return true, nil
}

// Disable decrements the reference count. Teardown only runs on the
// 1->0 transition; other transitions, including decrementing past
// zero, are no-ops. mode is the mode the caller believes is active;
// per spec.md §4.1 the caller is responsible for it matching
// active_mode, so Disable tears down whatever is actually active
// rather than trusting the argument blindly.
func (e *Engine) Disable(mode Mode) error {
	newVal := e.enableCount.Add(-1)
	if newVal > 0 {
		return nil
	}
	if newVal < 0 {
		// A disable raced ahead of its matching enable, or fired after
		// a pool-reuse restart already tore things down. Clamp back to
		// zero and no-op: this is the "callback finds active_mode=NONE
		// and must no-op" guarantee from spec.md §5.
		e.enableCount.Store(0)
		return nil
	}

	e.mu.Lock()
	active := e.activeMode
	e.mu.Unlock()
	if active == ModeNone {
		return nil
	}
	if mode != ModeNone && mode != active {
		e.logger.Warn("disable called with mismatched mode, tearing down actual active mode",
			"component", "tethering", "requested", mode, "active", active)
	}

	var err error
	switch active {
	case ModeNAT:
		err = e.disableNAT()
	case ModeBridgedAP:
		err = e.disableBridgedAP()
	}

	e.mu.Lock()
	e.activeMode = ModeNone
	e.upstreamIfname = ""
	e.mu.Unlock()
	return err
}

// TargetIndexFor implements the Target-Index Redirector (spec.md
// §4.3): upper layers route L3 configuration onto the bridge instead
// of the device's own interface while bridged-AP mode is active.
func (e *Engine) TargetIndexFor(dev Device) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.activeMode == ModeBridgedAP {
		return e.bridgeIndex
	}
	return dev.Index
}

// postRestart enqueues a pool-reuse restart ticket without blocking.
// Called from the pool's external-use callback goroutine; never runs
// Disable/Enable inline, per spec.md §9.
func (e *Engine) postRestart(mode Mode, upstreamIfname string) {
	select {
	case e.restartCh <- restartTicket{mode: mode, upstreamIfname: upstreamIfname}:
	default:
		e.logger.Warn("restart channel full, dropping pool-reuse restart",
			"component", "tethering", "mode", mode)
	}
}

// RunRestartLoop drains pool-reuse restart tickets on the caller's
// goroutine until ctx is done. It must run on a goroutine distinct
// from whatever delivers the pool's external-use callback.
func (e *Engine) RunRestartLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ticket := <-e.restartCh:
			e.logger.Info("pool reused externally, restarting tethering",
				"component", "tethering", "mode", ticket.mode, "upstream", ticket.upstreamIfname)
			if err := e.Disable(ticket.mode); err != nil {
				e.logger.Error("restart: disable failed", "component", "tethering", "error", err)
			}
			if _, err := e.Enable(ticket.mode, ticket.upstreamIfname); err != nil {
				e.logger.Error("restart: enable failed", "component", "tethering", "error", err)
			}
		}
	}
}

// enableNAT implements spec.md §4.1's NAT-mode enable algorithm,
// unwinding every acquired resource in strict reverse order on any
// failure after the bridge lookup.
func (e *Engine) enableNAT(upstreamIfname string) error {
	var unwind []func()
	rollback := func() {
		for i := len(unwind) - 1; i >= 0; i-- {
			unwind[i]()
		}
	}

	idx, err := e.bridge.Ifindex(e.cfg.BridgeName)
	if err != nil || idx < 0 {
		return fmt.Errorf("tethering: enable nat: bridge %q not found", e.cfg.BridgeName)
	}

	onExternalUse := func() { e.postRestart(ModeNAT, upstreamIfname) }
	slot, err := e.pool.Reserve(idx, e.cfg.PoolOffset, e.cfg.PoolSize, onExternalUse)
	if err != nil {
		return fmt.Errorf("tethering: enable nat: reserve pool: %w", err)
	}
	unwind = append(unwind, slot.Release)

	gateway, broadcast, mask := slot.Gateway(), slot.Broadcast(), slot.SubnetMask()
	start, end, prefixLen := slot.StartIP(), slot.EndIP(), slot.PrefixLen()

	if err := e.bridge.Enable(e.cfg.BridgeName, gateway, prefixLen, broadcast); err != nil {
		rollback()
		return fmt.Errorf("tethering: enable nat: enable bridge: %w", err)
	}
	unwind = append(unwind, func() { _ = e.bridge.Disable(e.cfg.BridgeName) })

	var dnsPrimary, dnsSecondary string
	if len(e.cfg.FallbackNameservers) > 0 {
		dnsPrimary = e.cfg.FallbackNameservers[0]
	}
	if len(e.cfg.FallbackNameservers) > 1 {
		dnsSecondary = e.cfg.FallbackNameservers[1]
	}

	dnsServer := gateway
	if err := e.dns.AddListener(idx, gateway); err != nil {
		e.logger.Warn("dns proxy registration failed, falling back to configured nameserver",
			"component", "tethering", "error", err)
		dnsServer = dnsPrimary
	} else {
		unwind = append(unwind, func() { _ = e.dns.RemoveListener(idx) })
	}

	rng := dhcpsrv.IPRange{Start: net.ParseIP(start), End: net.ParseIP(end)}
	if err := e.dhcp.Start(idx, rng, 24*time.Hour, gateway, mask, dnsServer); err != nil {
		rollback()
		return fmt.Errorf("tethering: enable nat: start dhcp: %w", err)
	}
	unwind = append(unwind, func() { _ = e.dhcp.Stop() })

	if err := e.nat.Enable(start, prefixLen); err != nil {
		rollback()
		return fmt.Errorf("tethering: enable nat: enable nat: %w", err)
	}

	// Best-effort; failures are logged inside Setup's caller contract
	// and never unwind the rest of NAT mode (spec.md §4.1 step 9).
	e.ipv6pd.Setup(e.cfg.BridgeName, upstreamIfname)

	e.mu.Lock()
	e.bridgeIndex = idx
	e.poolSlot = slot
	e.dnsPrimary = dnsPrimary
	e.dnsSecondary = dnsSecondary
	e.natStart = start
	e.natPrefixLen = prefixLen
	e.mu.Unlock()

	return nil
}

// disableNAT is the reverse of enableNAT, per spec.md §4.1's disable
// algorithm: deregister DNS proxy, disable NAT, stop DHCP, release the
// pool slot, clear DNS snapshots, disable the bridge.
func (e *Engine) disableNAT() error {
	e.ipv6pd.Cleanup(e.cfg.BridgeName)

	e.mu.Lock()
	idx := e.bridgeIndex
	slot := e.poolSlot
	start, prefixLen := e.natStart, e.natPrefixLen
	e.poolSlot = nil
	e.dnsPrimary, e.dnsSecondary = "", ""
	e.natStart, e.natPrefixLen = "", 0
	e.mu.Unlock()

	var errs []error
	if err := e.dns.RemoveListener(idx); err != nil {
		errs = append(errs, fmt.Errorf("remove dns listener: %w", err))
	}
	if err := e.nat.Disable(start, prefixLen); err != nil {
		errs = append(errs, fmt.Errorf("disable nat: %w", err))
	}
	if err := e.dhcp.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop dhcp: %w", err))
	}
	if slot != nil {
		slot.Release()
	}
	if err := e.bridge.Disable(e.cfg.BridgeName); err != nil {
		errs = append(errs, fmt.Errorf("disable bridge: %w", err))
	}
	return errors.Join(errs...)
}

// enableBridgedAP implements spec.md §4.1's bridged-AP enable
// algorithm. The bridged-AP rollback bug noted in spec.md §9 is fixed
// here: when reconnecting the service through the bridge fails, the
// unwind restores the network's original index and *also* reconnects
// the service on it, instead of leaving it disconnected.
func (e *Engine) enableBridgedAP(upstreamIfname string) error {
	var unwind []func()
	rollback := func() {
		for i := len(unwind) - 1; i >= 0; i-- {
			unwind[i]()
		}
	}

	bridgeIdx, err := e.bridge.Ifindex(e.cfg.BridgeName)
	if err != nil || bridgeIdx < 0 {
		return fmt.Errorf("tethering: enable bridged-ap: bridge %q not found", e.cfg.BridgeName)
	}

	if err := e.bridge.Enable(e.cfg.BridgeName, "", 0, ""); err != nil {
		return fmt.Errorf("tethering: enable bridged-ap: enable bridge: %w", err)
	}
	unwind = append(unwind, func() { _ = e.bridge.Disable(e.cfg.BridgeName) })

	upstreamIdx, err := e.bridge.Ifindex(upstreamIfname)
	if err != nil || upstreamIdx < 0 {
		rollback()
		return fmt.Errorf("tethering: enable bridged-ap: upstream %q not found", upstreamIfname)
	}

	dev, ok := e.registry.DeviceByIndex(upstreamIdx)
	if !ok {
		rollback()
		return fmt.Errorf("tethering: enable bridged-ap: no device for index %d", upstreamIdx)
	}
	svc, ok := e.registry.ServiceByIndex(dev.Index)
	if !ok {
		rollback()
		return fmt.Errorf("tethering: enable bridged-ap: no service for device %q", dev.Name)
	}
	network := svc.Network()
	if network == nil {
		rollback()
		return fmt.Errorf("tethering: enable bridged-ap: service %q has no network", svc.Name)
	}
	originalIndex := network.Index()

	if err := svc.Disconnect(); err != nil {
		rollback()
		return fmt.Errorf("tethering: enable bridged-ap: disconnect upstream: %w", err)
	}
	unwind = append(unwind, func() {
		if err := svc.Connect(netreg.AutoReason); err != nil {
			e.logger.Error("bridged-ap rollback: failed to reconnect upstream service",
				"component", "tethering", "service", svc.Name, "error", err)
		}
	})

	if err := e.bridge.AddToBridge(upstreamIdx, e.cfg.BridgeName); err != nil {
		rollback()
		return fmt.Errorf("tethering: enable bridged-ap: enslave %q: %w", upstreamIfname, err)
	}
	unwind = append(unwind, func() { _ = e.bridge.RemoveFromBridge(upstreamIdx, e.cfg.BridgeName) })

	network.SetIndex(bridgeIdx)
	e.registry.RebindServiceIndex(dev.Index, bridgeIdx)
	unwind = append(unwind, func() {
		network.SetIndex(originalIndex)
		e.registry.RebindServiceIndex(bridgeIdx, dev.Index)
	})

	if err := svc.Connect(netreg.AutoReason); err != nil {
		rollback()
		return fmt.Errorf("tethering: enable bridged-ap: reconnect via bridge: %w", err)
	}

	e.ipv6pd.Setup(e.cfg.BridgeName, upstreamIfname)

	e.mu.Lock()
	e.bridgeIndex = bridgeIdx
	e.upstreamIndex = upstreamIdx
	e.upstreamDeviceIndex = dev.Index
	e.upstreamService = svc
	e.mu.Unlock()

	return nil
}

// disableBridgedAP is the reverse of enableBridgedAP, per spec.md
// §4.1's disable algorithm: take the service saved at enable (or, if
// none was saved, look it up by the bridge index enable rebound it
// to), disconnect it, remove the upstream from
// the bridge, restore the network's index, bring the upstream back
// up, reconnect the service, disable the bridge.
func (e *Engine) disableBridgedAP() error {
	e.ipv6pd.Cleanup(e.cfg.BridgeName)

	e.mu.Lock()
	bridgeIdx := e.bridgeIndex
	upstreamIdx := e.upstreamIndex
	devIdx := e.upstreamDeviceIndex
	svc := e.upstreamService
	e.bridgeIndex, e.upstreamIndex, e.upstreamDeviceIndex, e.upstreamService = 0, 0, 0, nil
	e.mu.Unlock()

	if svc == nil {
		svc, _ = e.registry.ServiceByIndex(bridgeIdx)
	}

	var errs []error
	if svc != nil {
		if err := svc.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("disconnect service: %w", err))
		}
	}
	if err := e.bridge.RemoveFromBridge(upstreamIdx, e.cfg.BridgeName); err != nil {
		errs = append(errs, fmt.Errorf("remove from bridge: %w", err))
	}
	if svc != nil && svc.Network() != nil {
		svc.Network().SetIndex(upstreamIdx)
		e.registry.RebindServiceIndex(bridgeIdx, devIdx)
	}
	if err := e.linkUp.SetUp(upstreamIdx); err != nil {
		errs = append(errs, fmt.Errorf("bring upstream up: %w", err))
	}
	if svc != nil {
		if err := svc.Connect(netreg.AutoReason); err != nil {
			errs = append(errs, fmt.Errorf("reconnect service: %w", err))
		}
	}
	if err := e.bridge.Disable(e.cfg.BridgeName); err != nil {
		errs = append(errs, fmt.Errorf("disable bridge: %w", err))
	}
	return errors.Join(errs...)
}
