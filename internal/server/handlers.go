package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/docent/internal/extract"
	"github.com/hyperjump/docent/internal/models"
	"github.com/hyperjump/docent/internal/storage"
	"github.com/hyperjump/docent/internal/vector"
)

type statusResponse struct {
	models.SystemInfo
	DiskUsageBytes *int64 `json:"disk_usage_bytes,omitempty"`
	IndexPath      string `json:"index_path,omitempty"`
}

type indexResponse struct {
	Path     string `json:"path"`
	Document string `json:"document,omitempty"`
	Status   string `json:"status"`
}

func (s *Server) handleLoadDocument(w http.ResponseWriter, r *http.Request) {
	var req models.LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("load document request", zap.String("path", abs))
	stats, err := s.session.LoadDocument(r.Context(), abs)
	if err != nil {
		s.respondFailure(w, "load document", err)
		return
	}
	s.follow(stats.DocumentPath)
	s.respondJSON(w, http.StatusCreated, stats)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("ask request", zap.String("question", req.Question))
	s.respondJSON(w, http.StatusOK, s.session.GenerateAnswer(r.Context(), req.Question))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{SystemInfo: s.session.Info()}
	if doc := resp.CurrentDocument; doc != "" {
		resp.IndexPath = DefaultIndexPath(s.config, doc)
		diskBytes, err := storage.DiskUsageBytes(
			resp.IndexPath+vector.VectorFileSuffix,
			resp.IndexPath+vector.MetadataFileSuffix,
		)
		if err == nil && diskBytes > 0 {
			resp.DiskUsageBytes = &diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSaveIndex(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeIndexRequest(w, r)
	if !ok {
		return
	}
	doc := s.session.DocumentPath()
	if !s.session.IsReady() {
		s.respondError(w, http.StatusConflict, "no document loaded")
		return
	}
	path := req.Path
	if path == "" {
		path = DefaultIndexPath(s.config, doc)
	}
	if err := s.session.SaveIndex(r.Context(), path); err != nil {
		s.respondFailure(w, "save index", err)
		return
	}
	s.logger.Info("index saved", zap.String("path", path), zap.String("document", doc))
	s.respondJSON(w, http.StatusOK, indexResponse{Path: path, Document: doc, Status: "saved"})
}

func (s *Server) handleRestoreIndex(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeIndexRequest(w, r)
	if !ok {
		return
	}
	path := req.Path
	if path == "" {
		doc := s.session.DocumentPath()
		if doc == "" {
			s.respondError(w, http.StatusBadRequest, "path is required when no document is loaded")
			return
		}
		path = DefaultIndexPath(s.config, doc)
	}
	if err := s.session.RestoreIndex(r.Context(), path); err != nil {
		s.respondFailure(w, "restore index", err)
		return
	}
	doc := s.session.DocumentPath()
	s.follow(doc)
	s.logger.Info("index restored", zap.String("path", path), zap.String("document", doc))
	s.respondJSON(w, http.StatusOK, indexResponse{Path: path, Document: doc, Status: "restored"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeIndexRequest accepts an empty body as a request for the default path.
func (s *Server) decodeIndexRequest(w http.ResponseWriter, r *http.Request) (models.IndexRequest, bool) {
	var req models.IndexRequest
	if r.ContentLength == 0 {
		return req, true
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	return req, true
}

// follow points the watcher at the newly loaded document.
func (s *Server) follow(path string) {
	if s.watch == nil || path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := s.watch.Watch(path); err != nil {
		s.logger.Warn("watch document failed", zap.String("path", path), zap.Error(err))
	}
}

// statusFor maps session errors to HTTP status codes.
func statusFor(err error) int {
	var (
		incompatible *vector.IncompatibleIndexError
		extraction   *extract.ExtractionError
	)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.As(err, &incompatible), errors.Is(err, vector.ErrNotBuilt):
		return http.StatusConflict
	case errors.As(err, &extraction), errors.Is(err, vector.ErrCorruptIndex):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) respondFailure(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Int("status", status), zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
