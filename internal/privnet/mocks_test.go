package privnet

import (
	"log/slog"
	"os"
	"sync"
)

type mockCall struct {
	Method string
	Args   []interface{}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

// mockTunnelFactory hands out one fixed fd/ifname pair per Create call.
type mockTunnelFactory struct {
	mu sync.Mutex

	calls []mockCall

	ifname     string
	createErr  error
	createdFDs []*os.File
}

func (f *mockTunnelFactory) Create() (*os.File, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, mockCall{Method: "Create"})
	if f.createErr != nil {
		return nil, "", f.createErr
	}
	r, w, _ := os.Pipe()
	_ = w.Close()
	f.createdFDs = append(f.createdFDs, r)
	return r, f.ifname, nil
}

// mockIfindexer maps interface names to fixed indexes.
type mockIfindexer struct {
	indexes map[string]int
}

func (m *mockIfindexer) Ifindex(name string) (int, error) {
	if idx, ok := m.indexes[name]; ok {
		return idx, nil
	}
	return -1, nil
}

// mockAddressConfigurator records SetMTU/SetUp/ReplaceAddress calls.
type mockAddressConfigurator struct {
	mu sync.Mutex

	calls []mockCall

	replaceAddressErr error
	setUpErr          error
}

func (a *mockAddressConfigurator) callsFor(method string) []mockCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []mockCall
	for _, c := range a.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (a *mockAddressConfigurator) SetMTU(ifaceIndex, mtu int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, mockCall{Method: "SetMTU", Args: []interface{}{ifaceIndex, mtu}})
	return nil
}

func (a *mockAddressConfigurator) SetUp(ifaceIndex int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, mockCall{Method: "SetUp", Args: []interface{}{ifaceIndex}})
	return a.setUpErr
}

func (a *mockAddressConfigurator) ReplaceAddress(ifaceIndex int, local, peer string, prefixLen int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, mockCall{Method: "ReplaceAddress", Args: []interface{}{ifaceIndex, local, peer, prefixLen}})
	return a.replaceAddressErr
}

// mockLinkWatcher hands the subscribed handler back to the test so it
// can fire synthetic link events, and tracks cancellation.
type mockLinkWatcher struct {
	mu         sync.Mutex
	handler    func(flags uint32)
	cancelled  bool
	subscribed bool
}

func (w *mockLinkWatcher) Subscribe(ifaceIndex int, handler func(flags uint32)) (func(), error) {
	w.mu.Lock()
	w.handler = handler
	w.subscribed = true
	w.mu.Unlock()
	return func() {
		w.mu.Lock()
		w.cancelled = true
		w.mu.Unlock()
	}, nil
}

func (w *mockLinkWatcher) fire(flags uint32) {
	w.mu.Lock()
	h := w.handler
	w.mu.Unlock()
	if h != nil {
		h(flags)
	}
}

func (w *mockLinkWatcher) isCancelled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancelled
}

// mockOwnerWatcher hands the subscribed onGone callback back to the
// test so it can simulate owner disconnect.
type mockOwnerWatcher struct {
	mu        sync.Mutex
	onGone    func()
	cancelled bool
}

func (w *mockOwnerWatcher) Watch(owner string, onGone func()) (func(), error) {
	w.mu.Lock()
	w.onGone = onGone
	w.mu.Unlock()
	return func() {
		w.mu.Lock()
		w.cancelled = true
		w.mu.Unlock()
	}, nil
}

func (w *mockOwnerWatcher) fireGone() {
	w.mu.Lock()
	cb := w.onGone
	w.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (w *mockOwnerWatcher) isCancelled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancelled
}

// mockNAT records Enable/Disable calls.
type mockNAT struct {
	mu sync.Mutex

	calls []mockCall

	enableErr error
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
	return n.enableErr
}

func (n *mockNAT) Disable(ip string, prefixLen int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, mockCall{Method: "Disable", Args: []interface{}{ip, prefixLen}})
	return nil
}

// mockPoolSlot is a fixed-value PoolSlot double.
type mockPoolSlot struct {
	mu       sync.Mutex
	start    string
	end      string
	mask     string
	prefix   int
	released bool
}

func (s *mockPoolSlot) StartIP() string    { return s.start }
func (s *mockPoolSlot) EndIP() string      { return s.end }
func (s *mockPoolSlot) SubnetMask() string { return s.mask }
func (s *mockPoolSlot) PrefixLen() int     { return s.prefix }

func (s *mockPoolSlot) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
}

func (s *mockPoolSlot) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// mockPool hands out one fixed slot per Reserve call and remembers the
// onExternalUse callback so tests can simulate pool reuse.
type mockPool struct {
	mu sync.Mutex

	slot              *mockPoolSlot
	reserveErr        error
	lastOnExternalUse func()
}

func (p *mockPool) Reserve(anchorIndex, offset, count int, onExternalUse func()) (PoolSlot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastOnExternalUse = onExternalUse
	if p.reserveErr != nil {
		return nil, p.reserveErr
	}
	return p.slot, nil
}

func (p *mockPool) fireExternalUse() {
	p.mu.Lock()
	cb := p.lastOnExternalUse
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// mockDNSSource returns a fixed fallback DNS pair.
type mockDNSSource struct {
	primary, secondary string
}

func (d *mockDNSSource) FallbackDNS() (string, string) { return d.primary, d.secondary }

// mockReplySink records SendReply/SendError calls.
type mockReplySink struct {
	mu sync.Mutex

	calls []mockCall
}

func (r *mockReplySink) callsFor(method string) []mockCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []mockCall
	for _, c := range r.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (r *mockReplySink) SendReply(path string, fields ReplyFields, fd *os.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, mockCall{Method: "SendReply", Args: []interface{}{path, fields}})
	return nil
}

func (r *mockReplySink) SendError(path string, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, mockCall{Method: "SendError", Args: []interface{}{path, err}})
	return nil
}
