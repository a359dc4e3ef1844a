// Package graceful runs the bot's ops HTTP server (health and metrics
// endpoints) with context-driven shutdown.
package graceful

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Server wraps an http.Server and ties its lifetime to a context.
type Server struct {
	srv             *http.Server
	log             *slog.Logger
	shutdownTimeout time.Duration
}

// NewServer wraps srv. shutdownTimeout bounds how long in-flight
// requests may run once shutdown begins.
func NewServer(log *slog.Logger, srv *http.Server, shutdownTimeout time.Duration) *Server {
	if log == nil {
		log = slog.Default()
	}

	return &Server{
		srv:             srv,
		log:             log,
		shutdownTimeout: shutdownTimeout,
	}
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests within the shutdown timeout. A failure to bind or serve is
// returned immediately instead of waiting for cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}

	serveErr := make(chan error, 1)
	go func() {
		s.log.Info("ops server listening", slog.String("addr", s.srv.Addr))
		serveErr <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.log.Info("draining ops server", slog.Duration("timeout", s.shutdownTimeout))

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("ops server shutdown failed", slog.Any("error", err))
		return err
	}

	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
