//go:build !linux

package ctlapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
)

// connContextWithPeerCred returns nil on non-Linux platforms (no
// SO_PEERCRED); http.Server treats a nil ConnContext as a no-op.
func connContextWithPeerCred(_ *slog.Logger) func(ctx context.Context, c net.Conn) context.Context {
	return nil
}

// rootOnlyMiddleware is a no-op on non-Linux platforms.
func rootOnlyMiddleware(next http.Handler, _ *slog.Logger) http.Handler {
	return next
}
