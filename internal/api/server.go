// Package api exposes the game over HTTP: join, per-player state snapshots,
// order/cancel actions, and a preflight status endpoint, plus a Prometheus
// /metrics endpoint and a read-only WebSocket feed for observers.
//
// Serialization is the game's own mutex — handlers are stateless and do no
// locking of their own, so they may run on any worker.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"figgie-exchange/internal/config"
	"figgie-exchange/internal/game"
)

// Server runs the HTTP API for one game instance.
type Server struct {
	game     *game.Game
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer wires the handlers, observer hub, and metrics onto a mux.
func NewServer(cfg config.ServerConfig, g *game.Game, metrics *Metrics, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(g, hub, metrics, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /join", handlers.HandleJoin)
	mux.HandleFunc("GET /state", handlers.HandleState)
	mux.HandleFunc("POST /action", handlers.HandleAction)
	mux.HandleFunc("GET /status", handlers.HandleStatus)
	mux.HandleFunc("GET /ws", handlers.HandleWebSocket)
	mux.Handle("GET /metrics", metrics.Handler())

	server := &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		game:     g,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Handler returns the server's root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the observer hub and serves until Stop is called.
func (s *Server) Start() error {
	go s.hub.Run()

	s.logger.Info("api server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server and shuts the observer hub down.
func (s *Server) Stop() error {
	s.logger.Info("stopping api server")
	s.hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
