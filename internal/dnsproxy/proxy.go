// Package dnsproxy serves DNS over the tethering bridge, forwarding
// every query to the upstream resolvers set with SetUpstreams. It
// implements the §6 `dnsproxy_add_listener`/`dnsproxy_remove_listener`
// contract.
package dnsproxy

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// Proxy forwards DNS queries received on tethering bridges to a set of
// upstream resolvers, trying each in order until one answers.
type Proxy struct {
	logger *slog.Logger

	mu        sync.Mutex
	upstreams []string
	listeners map[int]*dns.Server // ifaceIndex -> running listener
}

// NewProxy returns a Proxy with no listeners and no upstreams
// configured.
func NewProxy(logger *slog.Logger) *Proxy {
	return &Proxy{logger: logger, listeners: make(map[int]*dns.Server)}
}

// SetUpstreams replaces the resolver list queries are forwarded to.
// Safe to call while listeners are active.
func (p *Proxy) SetUpstreams(servers []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.upstreams = append([]string(nil), servers...)
}

// AddListener starts serving DNS on listenAddr (the bridge's gateway
// address) for the interface at ifaceIndex. Idempotent: adding a
// listener for an index that already has one is a no-op.
func (p *Proxy) AddListener(ifaceIndex int, listenAddr string) error {
	p.mu.Lock()
	if _, exists := p.listeners[ifaceIndex]; exists {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	mux := dns.NewServeMux()
	mux.HandleFunc(".", p.forward)

	server := &dns.Server{
		Addr:    net.JoinHostPort(listenAddr, "53"),
		Net:     "udp",
		Handler: mux,
	}

	started := make(chan error, 1)
	server.NotifyStartedFunc = func() { started <- nil }
	go func() {
		if err := server.ListenAndServe(); err != nil {
			select {
			case started <- err:
			default:
				p.logger.Debug("dns listener stopped", "component", "dnsproxy", "error", err)
			}
		}
	}()

	select {
	case err := <-started:
		if err != nil {
			return fmt.Errorf("dnsproxy: add listener: %w", err)
		}
	case <-time.After(2 * time.Second):
		// ListenAndServe blocks until shutdown and only calls
		// NotifyStartedFunc once bound; treat a quiet socket as up.
	}

	p.mu.Lock()
	p.listeners[ifaceIndex] = server
	p.mu.Unlock()

	p.logger.Info("dns listener added", "component", "dnsproxy", "address", server.Addr)
	return nil
}

// RemoveListener stops the listener for ifaceIndex. Idempotent.
func (p *Proxy) RemoveListener(ifaceIndex int) error {
	p.mu.Lock()
	server, exists := p.listeners[ifaceIndex]
	delete(p.listeners, ifaceIndex)
	p.mu.Unlock()

	if !exists {
		return nil
	}
	if err := server.Shutdown(); err != nil {
		return fmt.Errorf("dnsproxy: remove listener: %w", err)
	}
	p.logger.Info("dns listener removed", "component", "dnsproxy", "address", server.Addr)
	return nil
}

// forward relays an incoming query to the first upstream that
// answers, falling back to SERVFAIL if none do.
func (p *Proxy) forward(w dns.ResponseWriter, req *dns.Msg) {
	p.mu.Lock()
	upstreams := append([]string(nil), p.upstreams...)
	p.mu.Unlock()

	client := &dns.Client{Timeout: 2 * time.Second}
	for _, upstream := range upstreams {
		resp, _, err := client.Exchange(req, net.JoinHostPort(upstream, "53"))
		if err != nil || resp == nil {
			continue
		}
		_ = w.WriteMsg(resp)
		return
	}

	fail := new(dns.Msg)
	fail.SetRcode(req, dns.RcodeServerFailure)
	_ = w.WriteMsg(fail)
}
