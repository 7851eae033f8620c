// Package server provides the HTTP API for Jester.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/siestheapp/jester-remote/internal/config"
	"github.com/siestheapp/jester-remote/internal/ingest"
	"github.com/siestheapp/jester-remote/internal/metrics"
	"github.com/siestheapp/jester-remote/internal/retrieval"
	"github.com/siestheapp/jester-remote/internal/store"
	"github.com/siestheapp/jester-remote/internal/taxonomy"
	"github.com/siestheapp/jester-remote/internal/watcher"
)

// Server is the HTTP server for the Jester API.
type Server struct {
	retrieval  *retrieval.Service
	store      *store.Store
	ingestor   *ingest.Ingestor
	normalizer *taxonomy.Normalizer
	taxStore   *taxonomy.SQLiteStore
	watch      *watcher.Watcher
	config     *config.Config
	logger     *zap.Logger
	server     *http.Server
}

// NewServer creates a server with the given dependencies. taxStore and watch
// may be nil; the corresponding features degrade gracefully.
func NewServer(
	svc *retrieval.Service,
	st *store.Store,
	ingestor *ingest.Ingestor,
	normalizer *taxonomy.Normalizer,
	taxStore *taxonomy.SQLiteStore,
	watch *watcher.Watcher,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		retrieval:  svc,
		store:      st,
		ingestor:   ingestor,
		normalizer: normalizer,
		taxStore:   taxStore,
		watch:      watch,
		config:     cfg,
		logger:     logger,
	}
}

// Router builds the chi router with all API routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(metrics.Middleware())

	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/chunks", s.handleAddChunk)
	r.Post("/api/v1/chunks/batch", s.handleBatchAddChunks)
	r.Post("/api/v1/documents", s.handleIngestDocument)
	r.Post("/api/v1/measurements/map", s.handleMapMeasurement)
	r.Post("/api/v1/measurements/map/batch", s.handleMapMeasurementBatch)
	r.Get("/api/v1/measurements/categories", s.handleListCategories)
	r.Put("/api/v1/measurements/categories/{name}", s.handleUpdateCategory)
	r.Get("/api/v1/watch/directories", s.handleWatchDirectoriesList)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
