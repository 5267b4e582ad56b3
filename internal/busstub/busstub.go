// Package busstub provides logging stand-ins for the object-bus
// collaborators privnet.Manager depends on but never constructs
// itself. A real bus transport (method dispatch, disconnect watches,
// fd-passing replies) is a separate deliverable outside this module's
// scope; cmd/tetherd wires these stubs so the Manager has something
// concrete to run against.
package busstub

import (
	"log/slog"
	"os"

	"github.com/plexsphere/tetherd/internal/privnet"
)

// ReplySink logs the reply that would otherwise go out over the
// object bus.
type ReplySink struct {
	logger *slog.Logger
}

// NewReplySink returns a logging ReplySink.
func NewReplySink(logger *slog.Logger) *ReplySink {
	return &ReplySink{logger: logger}
}

// SendReply logs the reply fields and closes fd, standing in for the
// real bus transport's fd-passing reply.
func (s *ReplySink) SendReply(path string, fields privnet.ReplyFields, fd *os.File) error {
	s.logger.Info("private network reply (bus stub)",
		"component", "busstub", "path", path,
		"server_ip", fields.ServerIPv4, "peer_ip", fields.PeerIPv4)
	if fd != nil {
		_ = fd.Close()
	}
	return nil
}

// SendError logs the error that would otherwise go out over the
// object bus.
func (s *ReplySink) SendError(path string, err error) error {
	s.logger.Warn("private network error reply (bus stub)",
		"component", "busstub", "path", path, "error", err)
	return nil
}

// OwnerWatcher never detects owner disconnect: without a real bus
// connection there is no peer to watch. It exists so privnet.Manager
// can be constructed; production wiring replaces it with a bus
// disconnect-watch implementation.
type OwnerWatcher struct {
	logger *slog.Logger
}

// NewOwnerWatcher returns a logging OwnerWatcher stub.
func NewOwnerWatcher(logger *slog.Logger) *OwnerWatcher {
	return &OwnerWatcher{logger: logger}
}

// Watch logs the subscription and returns a no-op cancel.
func (w *OwnerWatcher) Watch(owner string, _ func()) (func(), error) {
	w.logger.Debug("owner watch requested (bus stub, never fires)",
		"component", "busstub", "owner", owner)
	return func() {}, nil
}
