// Package api serves the evaluation store over a read-only JSON HTTP API.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"evalview/internal/auth"
	"evalview/internal/config"
	"evalview/internal/naming"
	"evalview/internal/query"
	"evalview/internal/storage"
)

// Options carries the configuration a server needs beyond its engine
type Options struct {
	Query  config.QueryConfig
	Server config.ServerConfig
	// Names maps stored identities to display names; nil means identity
	Names naming.Lookup
}

// Server represents the HTTP API server
type Server struct {
	router    *http.ServeMux
	server    *http.Server
	addr      string
	logger    *slog.Logger
	engine    *query.Engine
	db        *storage.DB
	names     naming.Lookup
	queryCfg  config.QueryConfig
	limiter   *auth.RateLimiter
	tokenHash string
	startedAt time.Time

	stopCleanup context.CancelFunc
}

// NewServer creates a new HTTP server instance
func NewServer(addr string, engine *query.Engine, db *storage.DB, opts Options, logger *slog.Logger) *Server {
	names := opts.Names
	if names == nil {
		names = naming.Identity{}
	}

	s := &Server{
		addr:      addr,
		logger:    logger,
		engine:    engine,
		db:        db,
		names:     names,
		queryCfg:  opts.Query,
		tokenHash: opts.Server.AuthTokenHash,
		router:    http.NewServeMux(),
		startedAt: time.Now(),
		limiter: auth.NewRateLimiter(auth.RateLimitConfig{
			RPS:   opts.Server.RateLimitRPS,
			Burst: opts.Server.RateLimitBurst,
		}, logger),
	}

	s.registerRoutes()

	handler := s.applyMiddleware(s.router)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start listens on the configured address and serves until Shutdown
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopCleanup = cancel
	s.limiter.StartCleanup(ctx)

	s.logger.Info("Starting HTTP server",
		"addr", ln.Addr().String(),
		"auth", s.tokenHash != "",
		"rate_limited", s.limiter.Enabled(),
	)

	if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		cancel()
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	if s.stopCleanup != nil {
		s.stopCleanup()
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server shut down successfully")
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// applyMiddleware wraps the handler with middleware in the correct order
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	// Apply middleware in reverse order (last one wraps first)
	handler = AuthMiddleware(s.tokenHash)(handler)
	handler = RateLimitMiddleware(s.limiter)(handler)
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	handler = CORSMiddleware()(handler)
	return handler
}
