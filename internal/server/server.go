// Package server is the HTTP surface over the ingestion pipeline. It
// owns no pipeline state: uploads flow through internal/ingest into the
// session cache, and every read goes back through the cache keyed by
// the authenticated session identity.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"datalik/internal/auth"
	"datalik/internal/config"
	"datalik/internal/logger"
	"datalik/internal/session"
	"datalik/internal/telemetry"
)

// Server wires the router, auth, session cache, and telemetry.
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	auth    *auth.Authenticator
	cache   session.Cache
	metrics telemetry.Backend
	router  *mux.Router
	server  *http.Server
}

// New creates a new server instance. The telemetry backend may be nil,
// in which case metrics are dropped.
func New(cfg *config.Config, log *logger.Logger, authn *auth.Authenticator, cache session.Cache, metrics telemetry.Backend) *Server {
	if metrics == nil {
		metrics = telemetry.Nop{}
	}

	s := &Server{
		config:  cfg,
		logger:  log.WithComponent("server"),
		auth:    authn,
		cache:   cache,
		metrics: metrics,
		router:  mux.NewRouter(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/login", s.handleLogin).Methods("POST")

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/logout", s.handleLogout).Methods("POST")
	api.HandleFunc("/upload", s.handleUpload).Methods("POST")
	api.HandleFunc("/source/sql", s.handleSQLSource).Methods("POST")
	api.HandleFunc("/dataset", s.handleDataset).Methods("GET")
	api.HandleFunc("/metrics", s.handleMetrics).Methods("POST")
	api.HandleFunc("/export/csv", s.handleExportCSV).Methods("GET")
	api.HandleFunc("/export/json", s.handleExportJSON).Methods("GET")
	api.HandleFunc("/session/reset", s.handleSessionReset).Methods("POST")
}

// Handler exposes the router for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting datalik server",
		zap.Int("port", s.config.Server.Port),
		zap.String("session_backend", s.config.Session.Backend),
	)
	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping datalik server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}
