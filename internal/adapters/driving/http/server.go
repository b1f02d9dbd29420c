// Package http is the driving adapter exposing retrieval, plan
// assembly and pipeline control over a JSON API.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	// Services
	retrievalService driving.RetrievalService
	planService      driving.PlanService
	pipelineService  driving.PipelineService

	// Infrastructure
	contentStore driven.ContentStore
	db           Pinger // PostgreSQL health check
	redisClient  Pinger // Redis health check (optional)
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	Version        string
	AllowedOrigins []string
	TokenParser    TokenParser
	Logger         *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		Version:        "dev",
		AllowedOrigins: []string{"*"},
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	retrievalService driving.RetrievalService,
	planService driving.PlanService,
	pipelineService driving.PipelineService,
	contentStore driven.ContentStore,
	db Pinger,
	redisClient Pinger, // can be nil
) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:           http.NewServeMux(),
		version:          cfg.Version,
		logger:           logger.With("component", "http"),
		retrievalService: retrievalService,
		planService:      planService,
		pipelineService:  pipelineService,
		contentStore:     contentStore,
		db:               db,
		redisClient:      redisClient,
	}

	s.setupRoutes(cfg)

	handler := NewRecoveryMiddleware(s.logger).Handler(
		NewCORSMiddleware(cfg.AllowedOrigins).Handler(
			NewLoggingMiddleware(s.logger).Handler(s.router)))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config) {
	authMiddleware := NewAuthMiddleware(cfg.TokenParser)

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Retrieval endpoints (authenticated)
	s.router.Handle("GET /api/v1/recommendations",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleRecommendations)))
	s.router.Handle("POST /api/v1/search",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleSearch)))

	// Learning plan endpoints (authenticated)
	s.router.Handle("POST /api/v1/learning-plans",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleCreatePlan)))
	s.router.Handle("GET /api/v1/learning-plans",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleListPlans)))
	s.router.Handle("GET /api/v1/learning-plans/{id}",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleGetPlan)))
	s.router.Handle("PATCH /api/v1/learning-plans/{id}/activities/{activityID}",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleUpdateActivity)))

	// Pipeline endpoints (authenticated)
	s.router.Handle("POST /api/v1/pipeline/index",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleTriggerIndex)))
	s.router.Handle("POST /api/v1/pipeline/extract",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleTriggerExtract)))
	s.router.Handle("POST /api/v1/pipeline/refresh-embeddings",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleTriggerRefresh)))
	s.router.Handle("GET /api/v1/pipeline/status",
		authMiddleware.Authenticate(http.HandlerFunc(s.handlePipelineStatus)))
}

// Start starts the HTTP server and blocks until a shutdown signal
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		s.logger.Info("starting server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	s.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
