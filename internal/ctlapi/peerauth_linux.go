//go:build linux

package ctlapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"golang.org/x/sys/unix"
)

// peerCredentials holds the Unix socket peer credentials extracted via
// SO_PEERCRED.
type peerCredentials struct {
	UID uint32
}

// getPeerCredentials extracts peer credentials from conn using the
// SO_PEERCRED socket option.
func getPeerCredentials(conn net.Conn) (*peerCredentials, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("ctlapi: auth: not a unix socket connection")
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("ctlapi: auth: get syscall conn: %w", err)
	}
	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return nil, fmt.Errorf("ctlapi: auth: control: %w", err)
	}
	if credErr != nil {
		return nil, fmt.Errorf("ctlapi: auth: getsockopt SO_PEERCRED: %w", credErr)
	}
	return &peerCredentials{UID: cred.Uid}, nil
}

type peerCredKey struct{}

// connContextWithPeerCred stashes peer credentials into the request
// context for later retrieval by rootOnlyMiddleware.
func connContextWithPeerCred(logger *slog.Logger) func(ctx context.Context, c net.Conn) context.Context {
	return func(ctx context.Context, c net.Conn) context.Context {
		cred, err := getPeerCredentials(c)
		if err != nil {
			logger.Debug("ctlapi: peer credentials unavailable", "error", err)
			return ctx
		}
		return context.WithValue(ctx, peerCredKey{}, cred)
	}
}

// rootOnlyMiddleware rejects mutating requests (enable/disable) from
// any caller whose effective UID is not 0. Read-only status stays
// open to any local caller.
func rootOnlyMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		cred, ok := r.Context().Value(peerCredKey{}).(*peerCredentials)
		if !ok || cred.UID != 0 {
			logger.Warn("ctlapi: rejected non-root control request", "path", r.URL.Path)
			writeError(w, http.StatusForbidden, fmt.Errorf("forbidden: root required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
