// Package dhcpsrv runs a minimal DHCPv4 server over the tethering
// bridge, matching the §6 contract `dhcp_server_new(v4, idx, &err)` +
// setters + `start`/`unref`.
package dhcpsrv

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/insomniacslk/dhcp/dhcpv4/server4"
)

// IPRange is an inclusive IPv4 address range offered to clients.
type IPRange struct {
	Start net.IP
	End   net.IP
}

// Server is a running DHCPv4 server bound to a single interface.
type Server struct {
	logger *slog.Logger

	mu      sync.Mutex
	srv     *server4.Server
	leases  map[string]net.IP // MAC -> assigned IP
	nextIdx uint32
	rng     IPRange
	gateway net.IP
	mask    net.IPMask
	dns     net.IP
	lease   time.Duration
}

// NewServer returns an unstarted Server.
func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger, leases: make(map[string]net.IP)}
}

// Start begins serving DHCPv4 on the interface at ifaceIndex, offering
// addresses from rng with the given lease time, gateway, subnet mask,
// and DNS server. Lease time is fixed at 24h by the tethering engine
// per spec.md §5; Start itself accepts whatever it is given so it
// stays independently testable.
func (s *Server) Start(ifaceIndex int, rng IPRange, leaseTime time.Duration, gateway, subnetMask, dns string) error {
	iface, err := net.InterfaceByIndex(ifaceIndex)
	if err != nil {
		return fmt.Errorf("dhcpsrv: start: interface index %d: %w", ifaceIndex, err)
	}

	gw := net.ParseIP(gateway)
	if gw == nil {
		return fmt.Errorf("dhcpsrv: start: invalid gateway %q", gateway)
	}
	dnsIP := net.ParseIP(dns)
	if dnsIP == nil {
		return fmt.Errorf("dhcpsrv: start: invalid dns %q", dns)
	}
	maskIP := net.ParseIP(subnetMask)
	if maskIP == nil || maskIP.To4() == nil {
		return fmt.Errorf("dhcpsrv: start: invalid subnet mask %q", subnetMask)
	}

	s.mu.Lock()
	s.rng = rng
	s.gateway = gw
	s.mask = net.IPMask(maskIP.To4())
	s.dns = dnsIP
	s.lease = leaseTime
	s.mu.Unlock()

	laddr := &net.UDPAddr{IP: net.IPv4zero, Port: dhcpv4.ServerPort}
	srv, err := server4.NewServer(iface.Name, laddr, s.handle)
	if err != nil {
		return fmt.Errorf("dhcpsrv: start: %w", err)
	}

	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(); err != nil {
			s.logger.Debug("dhcp server stopped", "component", "dhcpsrv", "error", err)
		}
	}()

	s.logger.Info("dhcp server started",
		"component", "dhcpsrv",
		"interface", iface.Name,
		"start_ip", rng.Start.String(),
		"end_ip", rng.End.String(),
		"lease", leaseTime,
	)
	return nil
}

// Stop shuts down the server. Idempotent: stopping an unstarted or
// already-stopped server returns nil.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Close(); err != nil {
		return fmt.Errorf("dhcpsrv: stop: %w", err)
	}
	return nil
}

// handle answers DISCOVER with OFFER and REQUEST with ACK, assigning
// each client MAC the next free address in the configured range and
// remembering the assignment for the lifetime of the process.
func (s *Server) handle(conn net.PacketConn, peer net.Addr, m *dhcpv4.DHCPv4) {
	switch m.MessageType() {
	case dhcpv4.MessageTypeDiscover:
		s.reply(conn, peer, m, dhcpv4.MessageTypeOffer)
	case dhcpv4.MessageTypeRequest:
		s.reply(conn, peer, m, dhcpv4.MessageTypeAck)
	}
}

func (s *Server) reply(conn net.PacketConn, peer net.Addr, m *dhcpv4.DHCPv4, msgType dhcpv4.MessageType) {
	ip := s.assign(m.ClientHWAddr.String())
	if ip == nil {
		s.logger.Debug("dhcp pool exhausted", "component", "dhcpsrv", "client", m.ClientHWAddr.String())
		return
	}

	reply, err := dhcpv4.NewReplyFromRequest(m)
	if err != nil {
		s.logger.Debug("dhcp reply build failed", "component", "dhcpsrv", "error", err)
		return
	}

	reply.YourIPAddr = ip
	reply.UpdateOption(dhcpv4.OptMessageType(msgType))
	reply.UpdateOption(dhcpv4.OptServerIdentifier(s.gateway))
	reply.UpdateOption(dhcpv4.OptRouter(s.gateway))
	reply.UpdateOption(dhcpv4.OptSubnetMask(s.mask))
	reply.UpdateOption(dhcpv4.OptDNS(s.dns))
	reply.UpdateOption(dhcpv4.OptIPAddressLeaseTime(s.lease))

	if _, err := conn.WriteTo(reply.ToBytes(), peer); err != nil {
		s.logger.Debug("dhcp reply send failed", "component", "dhcpsrv", "error", err)
	}
}

// assign returns the lease for mac, allocating the next free address
// in the configured range on first sight. Returns nil if the range is
// exhausted.
func (s *Server) assign(mac string) net.IP {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ip, ok := s.leases[mac]; ok {
		return ip
	}

	start := ipToUint32(s.rng.Start)
	end := ipToUint32(s.rng.End)
	candidate := start + s.nextIdx
	if candidate > end {
		return nil
	}
	s.nextIdx++

	ip := uint32ToIP(candidate)
	s.leases[mac] = ip
	return ip
}

func ipToUint32(ip net.IP) uint32 {
	ip4 := ip.To4()
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
}

func uint32ToIP(v uint32) net.IP {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
