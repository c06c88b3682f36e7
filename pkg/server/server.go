// Package server exposes a kgraph.DB over an HTTP/JSON API.
//
// Routes:
//
//	GET    /health                  liveness
//	GET    /metrics                 Prometheus exposition
//	GET    /api/v1/nodes            list nodes
//	POST   /api/v1/nodes            create node (write token)
//	GET    /api/v1/nodes/{id}       node with edge count
//	DELETE /api/v1/nodes/{id}       delete node and its edges (write token)
//	GET    /api/v1/edges            list edges with endpoint names
//	POST   /api/v1/edges            create edge (write token)
//	POST   /api/v1/query/path       shortest weighted path
//	POST   /api/v1/query/neighbors  bounded neighborhood
//	POST   /api/v1/query/search     substring search
//	GET    /api/v1/stats            aggregate counts
//
// Errors are returned as {"error": "..."}. Mutating routes require
// "Authorization: Bearer <token>" (or X-API-Key) when a bcrypt write-token
// hash is configured.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orneryd/kgraph/pkg/audit"
	"github.com/orneryd/kgraph/pkg/auth"
	"github.com/orneryd/kgraph/pkg/config"
	"github.com/orneryd/kgraph/pkg/kgraph"
)

// ErrServerClosed is returned by Start after Stop.
var ErrServerClosed = errors.New("server closed")

// Config holds HTTP server configuration.
type Config struct {
	// Address to bind to (default: "0.0.0.0")
	Address string
	// Port to listen on (default: 9010). 0 picks a free port.
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxRequestSize in bytes (default: 10MB)
	MaxRequestSize int64

	EnableCORS  bool
	CORSOrigins []string

	// WriteTokenHash is a bcrypt hash guarding mutating routes. Empty
	// disables the check.
	WriteTokenHash string

	// Query bounds and defaults for depth and limit.
	MaxDepth     int
	MaxLimit     int
	DefaultDepth int
	DefaultLimit int
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return FromConfig(config.DefaultConfig())
}

// FromConfig builds a server Config from the loaded application config.
func FromConfig(cfg *config.Config) *Config {
	return &Config{
		Address:        cfg.Server.Address,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxRequestSize: cfg.Server.MaxRequestSize,
		EnableCORS:     cfg.Server.EnableCORS,
		CORSOrigins:    cfg.Server.CORSOrigins,
		WriteTokenHash: cfg.Auth.WriteTokenHash,
		MaxDepth:       cfg.Query.MaxDepth,
		MaxLimit:       cfg.Query.MaxLimit,
		DefaultDepth:   cfg.Query.DefaultDepth,
		DefaultLimit:   cfg.Query.DefaultLimit,
	}
}

// Server is the HTTP API server.
type Server struct {
	config *Config
	db     *kgraph.DB
	audit  *audit.Logger
	logger *slog.Logger

	// verifier is nil when write protection is disabled
	verifier *auth.Verifier

	httpServer *http.Server
	listener   net.Listener
	handler    http.Handler

	closed  atomic.Bool
	started time.Time

	requestCount   atomic.Int64
	errorCount     atomic.Int64
	activeRequests atomic.Int64
}

// New creates a new HTTP server. A nil config uses DefaultConfig and a nil
// logger discards output. An invalid WriteTokenHash is an error.
func New(db *kgraph.DB, cfg *Config, logger *slog.Logger) (*Server, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		config: cfg,
		db:     db,
		logger: logger,
	}
	if cfg.WriteTokenHash != "" {
		verifier, err := auth.NewVerifier(cfg.WriteTokenHash)
		if err != nil {
			return nil, fmt.Errorf("write token: %w", err)
		}
		s.verifier = verifier
	}
	s.handler = s.buildRouter()
	return s, nil
}

// SetAuditLogger records failed write-token checks to logger.
func (s *Server) SetAuditLogger(logger *audit.Logger) {
	s.audit = logger
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP connections. It returns once the
// listener is bound; serving continues in the background.
func (s *Server) Start() error {
	if s.closed.Load() {
		return ErrServerClosed
	}

	addr := net.JoinHostPort(s.config.Address, fmt.Sprint(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.started = time.Now()
	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", listener.Addr().String())
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Stats returns server statistics.
func (s *Server) Stats() ServerStats {
	var uptime time.Duration
	if !s.started.IsZero() {
		uptime = time.Since(s.started)
	}
	return ServerStats{
		Uptime:         uptime,
		RequestCount:   s.requestCount.Load(),
		ErrorCount:     s.errorCount.Load(),
		ActiveRequests: s.activeRequests.Load(),
	}
}

// ServerStats holds server counters.
type ServerStats struct {
	Uptime         time.Duration `json:"uptime"`
	RequestCount   int64         `json:"request_count"`
	ErrorCount     int64         `json:"error_count"`
	ActiveRequests int64         `json:"active_requests"`
}

// =============================================================================
// Router Setup
// =============================================================================

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.metricsMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.requestContext)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/nodes", s.handleListNodes)
		r.Get("/nodes/{id}", s.handleGetNode)
		r.Get("/edges", s.handleListEdges)
		r.Get("/stats", s.handleStats)

		r.Post("/query/path", s.handleFindPath)
		r.Post("/query/neighbors", s.handleFindNeighbors)
		r.Post("/query/search", s.handleSearch)

		r.Group(func(r chi.Router) {
			r.Use(s.requireWriteToken)
			r.Post("/nodes", s.handleCreateNode)
			r.Delete("/nodes/{id}", s.handleDeleteNode)
			r.Post("/edges", s.handleCreateEdge)
		})
	})

	return r
}
