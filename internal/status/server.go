package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// Server runs the status router until its context is cancelled.
type Server struct {
	server          *http.Server
	log             *slog.Logger
	shutdownTimeout time.Duration
	shutdownOnce    sync.Once
	addr            chan string
}

// NewServer returns a stopped server for handler on addr.
func NewServer(addr string, handler http.Handler, shutdownTimeout time.Duration, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log:             log.With("op", "status.Server"),
		shutdownTimeout: shutdownTimeout,
		addr:            make(chan string, 1),
	}
}

// Start listens and serves, blocking until ctx is cancelled or serving
// fails. Cancellation shuts the server down gracefully and returns nil.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("status server listen: %w", err)
	}
	s.addr <- ln.Addr().String()
	s.log.Info("status server listening", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// The cancelled ctx would abort the shutdown immediately.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("status server failed: %w", err)
	}
}

// Addr returns the address the server listens on, blocking until Start
// has bound it.
func (s *Server) Addr() string {
	a := <-s.addr
	s.addr <- a
	return a
}

// Stop shuts the server down. It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("status server shutdown: %w", err)
			s.log.Error("status server shutdown error", "error", err)
			return
		}
		s.log.Info("status server stopped")
	})
	return shutdownErr
}
