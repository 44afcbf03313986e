// Package rag answers questions about one loaded document by retrieving
// relevant chunks and asking a generation backend for a grounded answer.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/docent/internal/embedding"
	"github.com/hyperjump/docent/internal/generation"
	"github.com/hyperjump/docent/internal/indexer"
	"github.com/hyperjump/docent/internal/models"
	"github.com/hyperjump/docent/internal/vector"
	"github.com/hyperjump/docent/pkg/utils"
)

// Fixed answers for the non-exceptional states.
const (
	NoDocumentMessage        = "No PDF loaded. Please load a document first."
	NoRelevantContentMessage = "No relevant content found in the document."
	GenerationErrorPrefix    = "Error during generation: "
)

// RefusalSentinel is the reply the prompt asks for when the context lacks the answer.
const RefusalSentinel = generation.RefusalSentinel

const (
	defaultMaxContextChunks = 3
	defaultMaxOutputTokens  = 256
	defaultPreviewChars     = 200
)

// Session holds the loaded document, its embedding index and the lazily
// loaded generation backend. All methods are safe for concurrent use;
// document loads are serialized.
type Session struct {
	id       string
	pipeline *indexer.Pipeline
	embedder embedding.Embedder
	loader   generation.Loader
	logger   *zap.Logger

	indexOpts        []vector.IndexOption
	maxContextChunks int
	maxOutputTokens  int
	previewChars     int
	embedTimeout     time.Duration
	generateTimeout  time.Duration
	generationModel  string

	loadMu       sync.Mutex
	mu           sync.RWMutex
	ready        bool
	documentPath string
	index        *indexHandle

	genMu     sync.Mutex
	generator generation.Generator
	genLoaded bool
}

// indexHandle counts in-flight readers of an installed index. A replaced
// index is closed when its last reader releases it.
type indexHandle struct {
	idx     *vector.EmbeddingIndex
	readers int
	retired bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = utils.OrNop(l) }
}

// WithMaxContextChunks sets how many chunks are retrieved per question.
func WithMaxContextChunks(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxContextChunks = n
		}
	}
}

// WithMaxOutputTokens bounds the length of generated answers.
func WithMaxOutputTokens(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxOutputTokens = n
		}
	}
}

// WithPreviewChars sets the length of source previews.
func WithPreviewChars(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.previewChars = n
		}
	}
}

// WithTimeouts bounds each embedding and generation backend call. Zero
// leaves a call unbounded.
func WithTimeouts(embed, generate time.Duration) Option {
	return func(s *Session) {
		s.embedTimeout = embed
		s.generateTimeout = generate
	}
}

// WithIndexOptions passes options to every EmbeddingIndex the session builds.
func WithIndexOptions(opts ...vector.IndexOption) Option {
	return func(s *Session) { s.indexOpts = append(s.indexOpts, opts...) }
}

// WithGenerationModel names the configured generation model, reported by
// Info before the backend is loaded.
func WithGenerationModel(name string) Option {
	return func(s *Session) { s.generationModel = name }
}

// NewSession creates a session in the not-ready state.
func NewSession(pipeline *indexer.Pipeline, embedder embedding.Embedder, loader generation.Loader, opts ...Option) *Session {
	s := &Session{
		id:               uuid.NewString(),
		pipeline:         pipeline,
		embedder:         embedder,
		loader:           loader,
		logger:           zap.NewNop(),
		maxContextChunks: defaultMaxContextChunks,
		maxOutputTokens:  defaultMaxOutputTokens,
		previewChars:     defaultPreviewChars,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session_id", s.id))
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// IsReady reports whether a document has been loaded.
func (s *Session) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// DocumentPath returns the path of the loaded document, or "".
func (s *Session) DocumentPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.documentPath
}

// acquire pins the current index until release is called.
func (s *Session) acquire() (bool, *indexHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil {
		s.index.readers++
	}
	return s.ready, s.index
}

func (s *Session) release(h *indexHandle) {
	if h == nil {
		return
	}
	s.mu.Lock()
	h.readers--
	last := h.retired && h.readers == 0
	s.mu.Unlock()
	if last {
		_ = h.idx.Close()
	}
}

// retireLocked marks h replaced and reports whether it can be closed now.
// s.mu must be held.
func retireLocked(h *indexHandle) bool {
	if h == nil {
		return false
	}
	h.retired = true
	return h.readers == 0
}

// install swaps in a fully built index and marks the session ready.
func (s *Session) install(idx *vector.EmbeddingIndex, path string) {
	s.mu.Lock()
	prev := s.index
	s.index = &indexHandle{idx: idx}
	s.documentPath = path
	s.ready = true
	closePrev := retireLocked(prev)
	s.mu.Unlock()
	if closePrev {
		_ = prev.idx.Close()
	}
}

func (s *Session) newIndex() *vector.EmbeddingIndex {
	opts := append([]vector.IndexOption{vector.WithLogger(s.logger)}, s.indexOpts...)
	return vector.NewEmbeddingIndex(s.embedder, opts...)
}

// LoadDocument extracts, cleans and segments the document at path, builds a
// new index from it and then makes it the session's document. On error the
// session keeps its previous state.
func (s *Session) LoadDocument(ctx context.Context, path string) (*models.LoadStats, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	start := time.Now()

	processed, err := s.pipeline.Process(ctx, path)
	if err != nil {
		s.logger.Error("document load failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}

	idx := s.newIndex()
	buildCtx, cancel := s.withTimeout(ctx, s.embedTimeout)
	defer cancel()
	if err := idx.Build(buildCtx, processed.Chunks, vector.WithSource(processed.Path)); err != nil {
		s.logger.Error("document indexing failed", zap.String("path", processed.Path), zap.Error(err))
		return nil, fmt.Errorf("index %s: %w", processed.Path, err)
	}
	s.install(idx, processed.Path)

	stats := &models.LoadStats{
		DocumentPath:  processed.Path,
		DocumentID:    processed.DocumentID,
		Pages:         processed.Pages,
		SkippedPages:  processed.SkippedPages,
		Chunks:        len(processed.Chunks),
		RawChars:      processed.RawChars,
		CleanedChars:  processed.CleanedChars,
		AvgChunkWords: utils.Round(processed.AvgChunkWords, 1),
		Duration:      time.Since(start),
		Status:        models.StatusSuccess,
	}
	s.logger.Info("document loaded",
		zap.String("path", stats.DocumentPath),
		zap.Int("pages", stats.Pages),
		zap.Int("chunks", stats.Chunks),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

// EnsureGenerator loads the generation backend once. A failed load is
// returned as *generation.BackendError and retried on the next call.
func (s *Session) EnsureGenerator(ctx context.Context) error {
	_, err := s.ensureGenerator(ctx)
	return err
}

func (s *Session) ensureGenerator(ctx context.Context) (generation.Generator, error) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.genLoaded {
		return s.generator, nil
	}
	if s.loader == nil {
		return nil, &generation.BackendError{Model: s.generationModel, Op: "load", Err: errors.New("no generation backend configured")}
	}
	g, err := s.loader(ctx)
	if err != nil {
		var be *generation.BackendError
		if !errors.As(err, &be) {
			err = &generation.BackendError{Model: s.generationModel, Op: "load", Err: err}
		}
		s.logger.Error("generation backend load failed", zap.Error(err))
		return nil, err
	}
	s.generator = g
	s.genLoaded = true
	return g, nil
}

// GenerateAnswer answers question from the loaded document. It never
// returns an error: failures are reported in Answer.Error.
func (s *Session) GenerateAnswer(ctx context.Context, question string) *models.Answer {
	ready, h := s.acquire()
	defer s.release(h)
	if !ready || h == nil {
		return &models.Answer{
			Answer:  NoDocumentMessage,
			Sources: []models.Source{},
			Error:   models.ErrNoDocumentLoaded,
		}
	}

	gen, err := s.ensureGenerator(ctx)
	if err != nil {
		return s.generationFailed(question, err)
	}

	searchCtx, cancel := s.withTimeout(ctx, s.embedTimeout)
	results, err := h.idx.Search(searchCtx, question, s.maxContextChunks)
	cancel()
	if err != nil {
		return s.generationFailed(question, err)
	}
	if len(results) == 0 {
		return &models.Answer{
			Answer:   NoRelevantContentMessage,
			Sources:  []models.Source{},
			Question: question,
			Error:    models.ErrNoRelevantContent,
		}
	}

	prompt := BuildPrompt(results, question)
	genCtx, cancel := s.withTimeout(ctx, s.generateTimeout)
	out, err := gen.Generate(genCtx, prompt, s.maxOutputTokens)
	cancel()
	if err != nil {
		return s.generationFailed(question, err)
	}

	s.logger.Debug("answer generated",
		zap.Int("chunks", len(results)),
		zap.Float64("top_score", results[0].Score))
	return &models.Answer{
		Answer:   strings.TrimSpace(out),
		Sources:  Sources(results, s.previewChars),
		Question: question,
		Status:   models.StatusSuccess,
	}
}

func (s *Session) generationFailed(question string, err error) *models.Answer {
	s.logger.Error("answer generation failed", zap.Error(err))
	return &models.Answer{
		Answer:   GenerationErrorPrefix + err.Error(),
		Sources:  []models.Source{},
		Question: question,
		Error:    models.ErrGeneration,
	}
}

func (s *Session) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// SaveIndex persists the current index to path (see vector.EmbeddingIndex.Persist).
func (s *Session) SaveIndex(ctx context.Context, path string) error {
	_, h := s.acquire()
	defer s.release(h)
	if h == nil {
		return vector.ErrNotBuilt
	}
	return h.idx.Persist(ctx, path)
}

// RestoreIndex loads a saved index and makes it the session's document. The
// session becomes ready with the document path recorded in the index.
func (s *Session) RestoreIndex(ctx context.Context, path string) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	idx := s.newIndex()
	if err := idx.Restore(ctx, path); err != nil {
		return err
	}
	s.install(idx, idx.Source())
	return nil
}

// Info reports readiness, models and index statistics.
func (s *Session) Info() models.SystemInfo {
	ready, h := s.acquire()
	defer s.release(h)
	info := models.SystemInfo{
		SessionID:       s.id,
		EmbeddingModel:  s.embedder.ModelID(),
		GenerationModel: s.generationModel,
		Ready:           ready,
		CurrentDocument: s.DocumentPath(),
	}
	s.genMu.Lock()
	if s.genLoaded {
		info.GeneratorLoaded = true
		info.GenerationModel = s.generator.ModelID()
	}
	s.genMu.Unlock()
	if h != nil {
		stats := h.idx.Stats()
		info.Index = &stats
	}
	return info
}

// Close releases the index, the embedder and the generation backend. An
// index still in use by a question is closed when that question finishes.
func (s *Session) Close() error {
	s.mu.Lock()
	h := s.index
	s.index = nil
	s.ready = false
	closeNow := retireLocked(h)
	s.mu.Unlock()
	var errs []error
	if closeNow {
		errs = append(errs, h.idx.Close())
	}
	s.genMu.Lock()
	if s.generator != nil {
		errs = append(errs, s.generator.Close())
		s.generator = nil
		s.genLoaded = false
	}
	s.genMu.Unlock()
	errs = append(errs, s.embedder.Close())
	return errors.Join(errs...)
}
