// Package server provides the HTTP API for asking questions about a loaded document.
package server

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/docent/internal/config"
	"github.com/hyperjump/docent/internal/fileid"
	"github.com/hyperjump/docent/internal/rag"
	"github.com/hyperjump/docent/pkg/utils"
)

// DocumentWatcher follows the loaded document on disk.
type DocumentWatcher interface {
	Watch(path string) error
}

// Server is the HTTP server for the docent API.
type Server struct {
	session *rag.Session
	config  *config.Config
	watch   DocumentWatcher
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server for session. watch may be nil when reload on
// change is disabled.
func NewServer(session *rag.Session, cfg *config.Config, logger *zap.Logger, watch DocumentWatcher) *Server {
	return &Server{
		session: session,
		config:  cfg,
		watch:   watch,
		logger:  utils.OrNop(logger),
	}
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/documents", s.handleLoadDocument)
	r.Post("/api/v1/ask", s.handleAsk)
	r.Get("/api/v1/status", s.handleStatus)
	r.Post("/api/v1/index/save", s.handleSaveIndex)
	r.Post("/api/v1/index/restore", s.handleRestoreIndex)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
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

// DefaultIndexPath is where the index of the document at docPath is saved
// when a request names no path.
func DefaultIndexPath(cfg *config.Config, docPath string) string {
	return filepath.Join(cfg.Storage.IndexDir, fileid.IndexName(docPath))
}
