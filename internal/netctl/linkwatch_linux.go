//go:build linux

package netctl

import (
	"log/slog"
	"sync"

	"github.com/vishvananda/netlink"
)

// IFF_UP mirrors the kernel's IFF_UP flag bit. The handler callback
// receives raw kernel flags (plain uint32, not a named type) so that
// tethering/privnet can each declare their own LinkWatcher interface
// without importing this package.
const IFF_UP uint32 = 0x1

// LinkWatcher delivers link up/down/change notifications per
// interface index, matching the §6 contract
// `rtnl_add_newlink_watch(idx, cb, userdata) → handle` /
// `rtnl_remove_watch(handle)`.
type LinkWatcher struct {
	logger *slog.Logger
}

// NewLinkWatcher returns a new LinkWatcher.
func NewLinkWatcher(logger *slog.Logger) *LinkWatcher {
	return &LinkWatcher{logger: logger}
}

// Subscribe invokes handler with the link's current flags every time
// ifaceIndex changes state. It returns a cancel function that stops
// the subscription; calling cancel more than once is safe.
func (w *LinkWatcher) Subscribe(ifaceIndex int, handler func(flags uint32)) (func(), error) {
	updates := make(chan netlink.LinkUpdate)
	done := make(chan struct{})

	if err := netlink.LinkSubscribe(updates, done); err != nil {
		return nil, err
	}

	go func() {
		for {
			select {
			case upd, ok := <-updates:
				if !ok {
					return
				}
				if upd.Link == nil || upd.Link.Attrs().Index != ifaceIndex {
					continue
				}
				handler(upd.IfInfomsg.Flags)
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
