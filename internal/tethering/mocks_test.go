package tethering

import (
	"log/slog"
	"sync"
	"time"

	"github.com/plexsphere/tetherd/internal/dhcpsrv"
	"github.com/plexsphere/tetherd/internal/netreg"
)

// mockCall records a single method invocation, matching the teacher's
// hand-rolled call-recording mock style.
type mockCall struct {
	Method string
	Args   []interface{}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

// mockBridge implements both BridgeController and LinkUpper, the way
// netctl.BridgeController + netctl.AddressConfigurator together cover
// both interfaces in production.
type mockBridge struct {
	mu    sync.Mutex
	calls []mockCall

	ifindexes map[string]int // name -> index; absent means not found

	enableErr       error
	disableErr      error
	addToBridgeErr  error
	removeFromBrErr error
	setUpErr        error
}

func newMockBridge() *mockBridge {
	return &mockBridge{ifindexes: make(map[string]int)}
}

func (m *mockBridge) record(method string, args ...interface{}) {
	m.mu.Lock()
	m.calls = append(m.calls, mockCall{Method: method, Args: args})
	m.mu.Unlock()
}

func (m *mockBridge) callsFor(method string) []mockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockCall
	for _, c := range m.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockBridge) Create(name string) error {
	m.record("Create", name)
	return nil
}

func (m *mockBridge) Enable(name, gateway string, prefixLen int, broadcast string) error {
	m.record("Enable", name, gateway, prefixLen, broadcast)
	return m.enableErr
}

func (m *mockBridge) Disable(name string) error {
	m.record("Disable", name)
	return m.disableErr
}

func (m *mockBridge) Remove(name string) error {
	m.record("Remove", name)
	return nil
}

func (m *mockBridge) Ifindex(name string) (int, error) {
	m.mu.Lock()
	idx, ok := m.ifindexes[name]
	m.mu.Unlock()
	if !ok {
		return -1, nil
	}
	return idx, nil
}

func (m *mockBridge) AddToBridge(ifaceIndex int, bridgeName string) error {
	m.record("AddToBridge", ifaceIndex, bridgeName)
	return m.addToBridgeErr
}

func (m *mockBridge) RemoveFromBridge(ifaceIndex int, bridgeName string) error {
	m.record("RemoveFromBridge", ifaceIndex, bridgeName)
	return m.removeFromBrErr
}

func (m *mockBridge) SetUp(ifaceIndex int) error {
	m.record("SetUp", ifaceIndex)
	return m.setUpErr
}

// mockPoolSlot is a fixed-value PoolSlot double.
type mockPoolSlot struct {
	mu         sync.Mutex
	gateway    string
	broadcast  string
	mask       string
	prefixLen  int
	start      string
	end        string
	released   bool
	onRelease  func()
}

func (s *mockPoolSlot) Gateway() string    { return s.gateway }
func (s *mockPoolSlot) Broadcast() string  { return s.broadcast }
func (s *mockPoolSlot) SubnetMask() string { return s.mask }
func (s *mockPoolSlot) PrefixLen() int     { return s.prefixLen }
func (s *mockPoolSlot) StartIP() string    { return s.start }
func (s *mockPoolSlot) EndIP() string      { return s.end }

func (s *mockPoolSlot) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	if s.onRelease != nil {
		s.onRelease()
	}
}

func (s *mockPoolSlot) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// mockPool hands out one fixed slot per Reserve call and remembers the
// onExternalUse callback so tests can simulate pool-reuse (S6).
type mockPool struct {
	mu sync.Mutex

	calls []mockCall

	slot       *mockPoolSlot
	reserveErr error

	lastOnExternalUse func()
}

func (p *mockPool) Reserve(anchorIndex, offset, count int, onExternalUse func()) (PoolSlot, error) {
	p.mu.Lock()
	p.calls = append(p.calls, mockCall{Method: "Reserve", Args: []interface{}{anchorIndex, offset, count}})
	p.lastOnExternalUse = onExternalUse
	err := p.reserveErr
	slot := p.slot
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return slot, nil
}

func (p *mockPool) fireExternalUse() {
	p.mu.Lock()
	cb := p.lastOnExternalUse
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// mockDHCP records Start/Stop calls.
type mockDHCP struct {
	mu sync.Mutex

	calls []mockCall

	startErr error
	running  bool
}

func (d *mockDHCP) callsFor(method string) []mockCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []mockCall
	for _, c := range d.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (d *mockDHCP) Start(ifaceIndex int, rng dhcpsrv.IPRange, leaseTime time.Duration, gateway, subnetMask, dns string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, mockCall{Method: "Start", Args: []interface{}{ifaceIndex, rng, leaseTime, gateway, subnetMask, dns}})
	if d.startErr != nil {
		return d.startErr
	}
	d.running = true
	return nil
}

func (d *mockDHCP) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, mockCall{Method: "Stop"})
	d.running = false
	return nil
}

// mockNAT records Enable/Disable calls.
type mockNAT struct {
	mu sync.Mutex

	calls []mockCall

	enableErr error
	active    bool
}

func (n *mockNAT) callsFor(method string) []mockCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []mockCall
	for _, c := range n.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (n *mockNAT) Enable(ip string, prefixLen int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, mockCall{Method: "Enable", Args: []interface{}{ip, prefixLen}})
	if n.enableErr != nil {
		return n.enableErr
	}
	n.active = true
	return nil
}

func (n *mockNAT) Disable(ip string, prefixLen int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, mockCall{Method: "Disable", Args: []interface{}{ip, prefixLen}})
	n.active = false
	return nil
}

// mockDNSProxy records AddListener/RemoveListener calls.
type mockDNSProxy struct {
	mu sync.Mutex

	calls []mockCall

	addListenerErr error
}

func (d *mockDNSProxy) callsFor(method string) []mockCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []mockCall
	for _, c := range d.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (d *mockDNSProxy) AddListener(ifaceIndex int, listenAddr string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, mockCall{Method: "AddListener", Args: []interface{}{ifaceIndex, listenAddr}})
	return d.addListenerErr
}

func (d *mockDNSProxy) RemoveListener(ifaceIndex int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, mockCall{Method: "RemoveListener", Args: []interface{}{ifaceIndex}})
	return nil
}

// mockIPv6PD records Setup/Cleanup calls.
type mockIPv6PD struct {
	mu    sync.Mutex
	calls []mockCall
}

func (p *mockIPv6PD) callsFor(method string) []mockCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []mockCall
	for _, c := range p.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (p *mockIPv6PD) Setup(bridgeName, upstreamName string) {
	p.mu.Lock()
	p.calls = append(p.calls, mockCall{Method: "Setup", Args: []interface{}{bridgeName, upstreamName}})
	p.mu.Unlock()
}

func (p *mockIPv6PD) Cleanup(bridgeName string) {
	p.mu.Lock()
	p.calls = append(p.calls, mockCall{Method: "Cleanup", Args: []interface{}{bridgeName}})
	p.mu.Unlock()
}

// mockConnector records Connect/Disconnect calls for a netreg.Service.
type mockConnector struct {
	mu sync.Mutex

	calls []mockCall

	connectErr error
}

func (c *mockConnector) callsFor(method string) []mockCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []mockCall
	for _, call := range c.calls {
		if call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

func (c *mockConnector) Disconnect(svc *netreg.Service) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, mockCall{Method: "Disconnect", Args: []interface{}{svc.Name}})
	return nil
}

func (c *mockConnector) Connect(svc *netreg.Service, reason netreg.ConnectReason) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, mockCall{Method: "Connect", Args: []interface{}{svc.Name, reason}})
	return c.connectErr
}
