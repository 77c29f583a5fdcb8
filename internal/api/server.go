package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"irrigation/internal/api/advisor"
	"irrigation/internal/api/health"
	"irrigation/internal/metrics"
	"irrigation/pkg/errors"
	"irrigation/pkg/logger"
)

// ServerConfig contains configuration for HTTP server
type ServerConfig struct {
	Port        int
	ReadTimeout time.Duration
	IdleTimeout time.Duration
	ServiceName string
	Version     string
	CORSOrigins []string
}

// Server wraps HTTP server with lifecycle management
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// NewHandler builds the routed and wrapped handler tree
func NewHandler(cfg ServerConfig, healthHandler *health.Handler, advisorHandler *advisor.Handler, log *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints (Kubernetes probes)
	mux.HandleFunc("GET /health", healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", healthHandler.HandleReadiness)
	mux.HandleFunc("GET /live", healthHandler.HandleLiveness)

	mux.Handle("GET /metrics", metrics.Handler())

	advisorHandler.Register(mux)

	// Root endpoint (service info)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"service": cfg.ServiceName,
			"version": cfg.Version,
			"status":  "running",
		})
	})

	return Chain(mux,
		RequestID(),
		Observe(log),
		Recover(log),
		CORS(cfg.CORSOrigins),
	)
}

// NewServer creates and configures HTTP server with all routes
func NewServer(cfg ServerConfig, healthHandler *health.Handler, advisorHandler *advisor.Handler, log *logger.Logger) *Server {
	log = log.Component("http")

	port := 8000
	if cfg.Port > 0 {
		port = cfg.Port
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	idleTimeout := cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 60 * time.Second
	}

	log.Infof("HTTP server configured on port %d", port)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewHandler(cfg, healthHandler, advisorHandler, log),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		// No WriteTimeout: a synchronous retrain can outlast any fixed write deadline
		IdleTimeout: idleTimeout,
	}

	return &Server{
		httpServer: httpServer,
		log:        log,
	}
}

// Start begins listening for HTTP requests
// Blocks until server is stopped or encounters an error
func (s *Server) Start() error {
	s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
// Waits for active connections to complete within timeout
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Stopping HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}

	s.log.Info("✓ HTTP server stopped")
	return nil
}
