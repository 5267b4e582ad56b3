//go:build linux

package netctl

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"
)

// natTableName is the nftables table tetherd uses for tethering NAT
// masquerade, kept distinct from any policy/filter table a host
// daemon might also run.
const natTableName = "tetherd-nat"

// natChainName is the single postrouting chain all masquerade rules
// for all active subnets live in.
const natChainName = "postrouting"

// NATController enables source-NAT masquerade for one or more IPv4
// subnets behind a bridge. It is shared by tethering.Engine (bridge-
// wide masquerade in NAT mode) and privnet.Manager (per-client
// masquerade), matching spec.md's note that per-client NAT piggybacks
// on the same nftables chain the engine manages.
type NATController struct {
	logger *slog.Logger

	mu      sync.Mutex
	subnets map[string]struct{} // "ip/prefixlen" currently masqueraded
}

// NewNATController returns a new NATController.
func NewNATController(logger *slog.Logger) *NATController {
	return &NATController{logger: logger, subnets: make(map[string]struct{})}
}

// Enable adds ip/prefixlen to the set of masqueraded subnets and
// rewrites the nftables chain to cover the full active set.
// Idempotent: enabling an already-active subnet is a no-op.
func (c *NATController) Enable(ip string, prefixLen int) error {
	key := fmt.Sprintf("%s/%d", ip, prefixLen)

	c.mu.Lock()
	c.subnets[key] = struct{}{}
	active := c.snapshotLocked()
	c.mu.Unlock()

	if err := c.apply(active); err != nil {
		return fmt.Errorf("netctl: nat: enable %s: %w", key, err)
	}
	c.logger.Debug("NAT masquerade enabled", "component", "netctl", "subnet", key)
	return nil
}

// Disable removes ip/prefixlen from the masqueraded set and rewrites
// the chain. Idempotent: disabling a subnet not currently active is a
// no-op.
func (c *NATController) Disable(ip string, prefixLen int) error {
	key := fmt.Sprintf("%s/%d", ip, prefixLen)

	c.mu.Lock()
	delete(c.subnets, key)
	active := c.snapshotLocked()
	c.mu.Unlock()

	if err := c.apply(active); err != nil {
		return fmt.Errorf("netctl: nat: disable %s: %w", key, err)
	}
	c.logger.Debug("NAT masquerade disabled", "component", "netctl", "subnet", key)
	return nil
}

func (c *NATController) snapshotLocked() []string {
	active := make([]string, 0, len(c.subnets))
	for k := range c.subnets {
		active = append(active, k)
	}
	return active
}

// apply flushes the chain and re-adds one masquerade rule per active
// subnet, the same flush-then-rebuild pattern used for policy rule
// sets: it keeps every Enable/Disable idempotent without needing to
// track individual rule handles.
func (c *NATController) apply(subnets []string) error {
	conn, err := nftables.New()
	if err != nil {
		return err
	}

	table := conn.AddTable(&nftables.Table{
		Family: nftables.TableFamilyIPv4,
		Name:   natTableName,
	})
	chain := conn.AddChain(&nftables.Chain{
		Name:     natChainName,
		Table:    table,
		Type:     nftables.ChainTypeNAT,
		Hooknum:  nftables.ChainHookPostrouting,
		Priority: nftables.ChainPriorityNATSource,
	})
	conn.FlushChain(chain)

	for _, subnet := range subnets {
		_, ipnet, perr := net.ParseCIDR(subnet)
		if perr != nil {
			return fmt.Errorf("parse subnet %q: %w", subnet, perr)
		}
		conn.AddRule(&nftables.Rule{
			Table: table,
			Chain: chain,
			Exprs: []expr.Any{
				&expr.Payload{
					DestRegister: 1,
					Base:         expr.PayloadBaseNetworkHeader,
					Offset:       12, // IPv4 source address
					Len:          4,
				},
				&expr.Bitwise{
					SourceRegister: 1,
					DestRegister:   1,
					Len:            4,
					Mask:           []byte(ipnet.Mask),
					Xor:            []byte{0, 0, 0, 0},
				},
				&expr.Cmp{
					Op:       expr.CmpOpEq,
					Register: 1,
					Data:     []byte(ipnet.IP.To4()),
				},
				&expr.Counter{},
				&expr.Masq{},
			},
		})
	}

	if err := conn.Flush(); err != nil {
		return err
	}
	return nil
}
