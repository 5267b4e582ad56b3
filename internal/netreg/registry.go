// Package netreg provides an in-memory model of the upstream
// device/service/network graph that the tethering engine consults
// when switching a physical link into bridged-AP mode.
//
// A production deployment of tetherd wires these interfaces to the
// daemon's real connection database; this package ships a minimal
// concrete implementation so the tethering engine is independently
// testable and so cmd/tetherd has something real to compose against.
package netreg

import (
	"fmt"
	"sync"
)

// ConnectReason mirrors the reason codes a real service database
// would pass through to its connect machinery.
type ConnectReason string

// AutoReason is used when the tethering engine reconnects a service
// through the bridge without explicit user action.
const AutoReason ConnectReason = "auto"

// Device is a network interface known to the registry, addressed by
// kernel ifindex.
type Device struct {
	Name  string
	Index int
}

// Network is the L3 attachment point of a Service: the ifindex that
// upper layers should configure addresses on.
type Network struct {
	mu    sync.Mutex
	index int
}

// Index returns the network's current effective ifindex.
func (n *Network) Index() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.index
}

// SetIndex rebinds the network's effective ifindex. The tethering
// engine uses this to move a service's L3 state onto the bridge
// during bridged-AP mode, and to restore it on disable.
func (n *Network) SetIndex(idx int) {
	n.mu.Lock()
	n.index = idx
	n.mu.Unlock()
}

// Service is a connected upstream service, e.g. the one running over
// the physical ethernet that bridged-AP mode subsumes into the
// bridge.
type Service struct {
	Name    string
	network *Network

	mu        sync.Mutex
	connected bool

	// Connector, when set, performs the actual connect/disconnect
	// side effects. Tests may leave this nil to exercise state
	// tracking alone.
	Connector Connector
}

// Connector performs the side effects of connecting/disconnecting a
// service. Production wiring wraps the daemon's real connection
// manager; the zero value is a no-op.
type Connector interface {
	Disconnect(svc *Service) error
	Connect(svc *Service, reason ConnectReason) error
}

// Network returns the service's network attachment.
func (s *Service) Network() *Network {
	return s.network
}

// Disconnect marks the service disconnected, invoking Connector if set.
func (s *Service) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Connector != nil {
		if err := s.Connector.Disconnect(s); err != nil {
			return fmt.Errorf("netreg: disconnect %s: %w", s.Name, err)
		}
	}
	s.connected = false
	return nil
}

// Connect marks the service connected for the given reason, invoking
// Connector if set.
func (s *Service) Connect(reason ConnectReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Connector != nil {
		if err := s.Connector.Connect(s, reason); err != nil {
			return fmt.Errorf("netreg: connect %s: %w", s.Name, err)
		}
	}
	s.connected = true
	return nil
}

// Connected reports whether the service is currently connected.
func (s *Service) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Registry indexes devices and services by ifindex.
type Registry struct {
	mu       sync.Mutex
	devices  map[int]*Device
	services map[int]*Service // keyed by the device index the service was registered under
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		devices:  make(map[int]*Device),
		services: make(map[int]*Service),
	}
}

// AddDevice registers a device, discoverable by index.
func (r *Registry) AddDevice(d *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[d.Index] = d
}

// DeviceByIndex looks up a device by ifindex.
func (r *Registry) DeviceByIndex(idx int) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[idx]
	return d, ok
}

// AddService registers a service as reachable from the given device
// index, with its own Network attachment initially pointing at that
// same index.
func (r *Registry) AddService(deviceIndex int, svc *Service) {
	if svc.network == nil {
		svc.network = &Network{index: deviceIndex}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[deviceIndex] = svc
}

// ServiceByIndex looks up a service by the index it is currently
// reachable from (which may have been rebound by SetIndex, e.g. onto
// the bridge in bridged-AP mode — callers rebind the registry's
// lookup key via RebindServiceIndex when that happens).
func (r *Registry) ServiceByIndex(idx int) (*Service, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.services[idx]
	return s, ok
}

// RebindServiceIndex moves a service's registry lookup key from
// oldIndex to newIndex, mirroring the way disable must look the
// service back up by the bridge index that enable rebound it to.
func (r *Registry) RebindServiceIndex(oldIndex, newIndex int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.services[oldIndex]; ok {
		delete(r.services, oldIndex)
		r.services[newIndex] = s
	}
}
