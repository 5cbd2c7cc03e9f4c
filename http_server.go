package txwatch

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// HTTPConfig groups HTTP server settings.
type HTTPConfig struct {
	// Enabled starts the HTTP API while the session runs.
	Enabled bool `yaml:"enabled"`

	// Addr is the listen address.
	// Default: "127.0.0.1:8087".
	Addr string `yaml:"addr"`
}

// Server serves the read API and the frame stream of one session.
type Server struct {
	addr     string
	srv      *http.Server
	listener net.Listener
}

// NewServer creates a server for state. hub may be nil to disable /ws.
func NewServer(addr string, state StateReader, baselines *BaselineStore, hub *StreamHub) *Server {
	if addr == "" {
		addr = "127.0.0.1:8087"
	}
	return &Server{
		addr: addr,
		srv: &http.Server{
			Handler:           routes(state, baselines, hub),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server stopped", "err", err)
		}
	}()
	slog.Info("http server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Close()
}

// Close shuts the server down, waiting up to five seconds for open
// requests. WebSocket connections are ended by closing the StreamHub.
func (s *Server) Close() error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.srv.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return s.srv.Close()
	}
	return err
}
