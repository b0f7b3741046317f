// Package http is a thin wrapper over chi + the stdlib http.Server with
// context-driven graceful shutdown
package http

import (
	"context"
	stdhttp "net/http"
	"time"

	"westminster/internal/platform/config"
	"westminster/internal/platform/logger"

	"github.com/go-chi/chi/v5"
)

// Server wraps a chi mux and its stdlib server
type Server struct {
	addr string
	mux  *chi.Mux
	srv  *stdhttp.Server
}

// NewServer builds a server listening on cfg's PORT (default :8080)
func NewServer(cfg config.Conf) *Server {
	addr := cfg.MayString("PORT", ":8080")
	m := chi.NewRouter()
	return &Server{
		addr: addr,
		mux:  m,
		srv: &stdhttp.Server{
			Addr:              addr,
			Handler:           m,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Router returns the mux so callers can mount routes and middleware
func (s *Server) Router() *chi.Mux { return s.mux }

// Addr returns the listening address
func (s *Server) Addr() string { return s.addr }

// Run starts the server and blocks until it stops or ctx is cancelled,
// in which case it shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	log := logger.Named("http")
	log.Info().Str("addr", s.addr).Msg("http listening")

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err == stdhttp.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
