// Package server wraps the HTTP server lifecycle: startup and graceful
// shutdown with a drain timeout.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"oauth-provider/internal/common/logging"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	httpServer *http.Server
}

// New creates a server for the given handler listening on the given port.
func New(handler http.Handler, port string) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + port,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Start runs the server and blocks until it stops. A normal shutdown returns
// nil.
func (s *Server) Start() error {
	logging.Info("HTTP server listening", logging.String("addr", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logging.Info("Shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
