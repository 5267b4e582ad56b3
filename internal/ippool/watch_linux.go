//go:build linux

package ippool

import (
	"net"
	"sync"

	"github.com/vishvananda/netlink"
)

// NetlinkWatcher implements ExternalUseWatcher using netlink address
// notifications: it is how the pool notices a third party has
// configured an address inside a range tetherd itself reserved.
type NetlinkWatcher struct{}

// NewNetlinkWatcher returns a NetlinkWatcher.
func NewNetlinkWatcher() *NetlinkWatcher { return &NetlinkWatcher{} }

// Watch subscribes to address-update notifications on ifaceIndex and
// invokes onMatch the first time a newly-added address satisfies
// inRange. The subscription is torn down on cancel.
func (NetlinkWatcher) Watch(ifaceIndex int, inRange func(ip net.IP) bool, onMatch func()) (func(), error) {
	updates := make(chan netlink.AddrUpdate)
	done := make(chan struct{})

	if err := netlink.AddrSubscribe(updates, done); err != nil {
		return nil, err
	}

	go func() {
		for {
			select {
			case upd, ok := <-updates:
				if !ok {
					return
				}
				if !upd.NewAddr || upd.LinkIndex != ifaceIndex {
					continue
				}
				if inRange(upd.LinkAddress.IP) {
					onMatch()
					return
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() { close(done) })
	}

	return cancel, nil
}
