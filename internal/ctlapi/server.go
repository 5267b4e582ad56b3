package ctlapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
)

// Server serves the control API over a Unix domain socket.
type Server struct {
	cfg      Config
	engine   Controller
	networks NetworkCounter
	logger   *slog.Logger
}

// NewServer constructs a Server. cfg must already have ApplyDefaults
// applied by the caller.
func NewServer(cfg Config, engine Controller, networks NetworkCounter, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, engine: engine, networks: networks, logger: logger}
}

// Start opens the control socket and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if dir := filepath.Dir(s.cfg.SocketPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("ctlapi: create socket dir: %w", err)
		}
	}
	os.Remove(s.cfg.SocketPath)

	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("ctlapi: listen unix %s: %w", s.cfg.SocketPath, err)
	}

	httpSrv := &http.Server{
		Handler:     rootOnlyMiddleware(Mux(s.engine, s.networks), s.logger),
		ConnContext: connContextWithPeerCred(s.logger),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	s.logger.Info("control API started", "component", "ctlapi", "socket", s.cfg.SocketPath)

	select {
	case <-ctx.Done():
		_ = httpSrv.Close()
		os.Remove(s.cfg.SocketPath)
		<-errCh
		return nil
	case err := <-errCh:
		os.Remove(s.cfg.SocketPath)
		return err
	}
}
