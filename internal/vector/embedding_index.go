package vector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/docent/internal/embedding"
	"github.com/hyperjump/docent/internal/models"
	"github.com/hyperjump/docent/internal/storage"
	"github.com/hyperjump/docent/pkg/utils"
)

// Suffixes of the two artifacts written by Persist.
const (
	VectorFileSuffix   = ".vec"
	MetadataFileSuffix = ".meta.db"
)

const defaultBatchSize = 32

// snapshot is one fully built index. It is never mutated after construction;
// Build and Restore replace it wholesale.
type snapshot struct {
	flat    FlatIndex
	chunks  []models.Chunk
	dim     int
	modelID string
	source  string
}

// EmbeddingIndex embeds document chunks and answers top-k cosine similarity
// queries over them.
type EmbeddingIndex struct {
	embedder  embedding.Embedder
	indexType string
	batchSize int
	logger    *zap.Logger

	mu   sync.RWMutex
	snap *snapshot
}

// IndexOption configures an EmbeddingIndex.
type IndexOption func(*EmbeddingIndex)

// WithIndexType selects the flat index implementation ("memory" or "faiss").
func WithIndexType(t string) IndexOption {
	return func(e *EmbeddingIndex) { e.indexType = t }
}

// WithBatchSize sets how many chunk texts are embedded per backend call.
func WithBatchSize(n int) IndexOption {
	return func(e *EmbeddingIndex) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) IndexOption {
	return func(e *EmbeddingIndex) { e.logger = utils.OrNop(l) }
}

// NewEmbeddingIndex returns an unbuilt index over the given embedder.
func NewEmbeddingIndex(embedder embedding.Embedder, opts ...IndexOption) *EmbeddingIndex {
	e := &EmbeddingIndex{
		embedder:  embedder,
		indexType: string(IndexTypeMemory),
		batchSize: defaultBatchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type buildConfig struct {
	source string
}

// BuildOption configures a single Build call.
type BuildOption func(*buildConfig)

// WithSource records the path of the document the chunks came from.
func WithSource(path string) BuildOption {
	return func(c *buildConfig) { c.source = path }
}

// Build embeds every chunk, normalizes the vectors and replaces the index.
// Chunk IDs are reassigned to their position. On error the previous index is kept.
func (e *EmbeddingIndex) Build(ctx context.Context, chunks []models.Chunk, opts ...BuildOption) error {
	var cfg buildConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	start := time.Now()

	owned := make([]models.Chunk, len(chunks))
	copy(owned, chunks)
	texts := make([]string, len(owned))
	for i := range owned {
		owned[i].ID = i
		texts[i] = owned[i].Text
	}

	vectors, err := e.embedAll(ctx, texts)
	if err != nil {
		return err
	}
	dim := e.embedder.Dimensions()
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}

	var flat FlatIndex
	if dim > 0 {
		flat, err = e.newFlat(e.indexType, dim)
		if err != nil {
			return err
		}
		if err := flat.Add(ctx, vectors); err != nil {
			_ = flat.Close()
			return fmt.Errorf("add vectors: %w", err)
		}
	}

	e.swap(&snapshot{
		flat:    flat,
		chunks:  owned,
		dim:     dim,
		modelID: e.embedder.ModelID(),
		source:  cfg.source,
	})
	e.logger.Info("embedding index built",
		zap.Int("chunks", len(owned)),
		zap.Int("dimensions", dim),
		zap.String("model", e.embedder.ModelID()),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (e *EmbeddingIndex) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	dim := e.embedder.Dimensions()
	for lo := 0; lo < len(texts); lo += e.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hi := lo + e.batchSize
		if hi > len(texts) {
			hi = len(texts)
		}
		batch, err := e.embedder.EmbedBatch(ctx, texts[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", lo, hi-1, err)
		}
		if len(batch) != hi-lo {
			return nil, fmt.Errorf("embed chunks %d-%d: got %d vectors", lo, hi-1, len(batch))
		}
		for i, v := range batch {
			if dim == 0 {
				dim = len(v)
			}
			if len(v) != dim || dim == 0 {
				return nil, fmt.Errorf("chunk %d: embedding dimension %d, expected %d", lo+i, len(v), dim)
			}
			vec := make([]float32, dim)
			copy(vec, v)
			if !utils.NormalizeL2(vec) {
				e.logger.Debug("zero embedding vector", zap.Int("chunk", lo+i))
			}
			vectors = append(vectors, vec)
		}
	}
	return vectors, nil
}

// newFlat creates a flat index, falling back to memory when FAISS is not compiled in.
func (e *EmbeddingIndex) newFlat(indexType string, dim int) (FlatIndex, error) {
	t, fellBack, err := ResolveIndexType(indexType)
	if err != nil {
		return nil, err
	}
	if fellBack {
		e.logger.Warn("FAISS not available, using memory index")
	}
	return NewFlatIndex(string(t), dim)
}

func (e *EmbeddingIndex) swap(next *snapshot) {
	e.mu.Lock()
	prev := e.snap
	e.snap = next
	e.mu.Unlock()
	if prev != nil && prev.flat != nil {
		_ = prev.flat.Close()
	}
}

// Search embeds query and returns the k most similar chunks by descending
// cosine similarity, ties broken by ascending chunk ID.
func (e *EmbeddingIndex) Search(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	if !e.Built() {
		return nil, ErrNotBuilt
	}
	q, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vec := make([]float32, len(q))
	copy(vec, q)
	utils.NormalizeL2(vec)

	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := e.snap
	if snap == nil {
		return nil, ErrNotBuilt
	}
	n := len(snap.chunks)
	if k <= 0 || n == 0 {
		return []models.SearchResult{}, nil
	}
	if len(vec) != snap.dim {
		return nil, fmt.Errorf("query embedding dimension %d, index has %d", len(vec), snap.dim)
	}
	if k > n {
		k = n
	}
	hits, err := topK(ctx, snap.flat, vec, k, n)
	if err != nil {
		return nil, err
	}
	results := make([]models.SearchResult, 0, len(hits))
	for _, h := range hits {
		if h.ID < 0 || h.ID >= n {
			continue
		}
		results = append(results, models.SearchResult{Chunk: snap.chunks[h.ID], Score: h.Score})
	}
	return results, nil
}

// topK asks the flat index for more candidates until every hit tied with the
// k-th score is in hand, so ties are always broken by ascending ID.
func topK(ctx context.Context, flat FlatIndex, query []float32, k, n int) ([]Hit, error) {
	m := k
	if m < n {
		m = k + 1
	}
	for {
		hits, err := flat.Search(ctx, query, m)
		if err != nil {
			return nil, fmt.Errorf("search %s index: %w", flat.Type(), err)
		}
		sortHits(hits)
		if m >= n || len(hits) <= k || hits[len(hits)-1].Score < hits[k-1].Score {
			if len(hits) > k {
				hits = hits[:k]
			}
			return hits, nil
		}
		m *= 2
		if m > n {
			m = n
		}
	}
}

// Built reports whether Build or Restore has succeeded at least once.
func (e *EmbeddingIndex) Built() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap != nil
}

// Source returns the document path recorded by the last Build or Restore.
func (e *EmbeddingIndex) Source() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.snap == nil {
		return ""
	}
	return e.snap.source
}

// ModelID returns the identifier of the live embedder.
func (e *EmbeddingIndex) ModelID() string {
	return e.embedder.ModelID()
}

// Stats describes the current index.
func (e *EmbeddingIndex) Stats() models.IndexStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	stats := models.IndexStats{
		ModelID:   e.embedder.ModelID(),
		Dimension: e.embedder.Dimensions(),
		IndexType: e.indexType,
	}
	if e.snap == nil {
		return stats
	}
	stats.Built = true
	stats.ModelID = e.snap.modelID
	stats.Dimension = e.snap.dim
	stats.ChunkCount = len(e.snap.chunks)
	if e.snap.flat != nil {
		stats.VectorCount = e.snap.flat.Size()
		stats.IndexType = e.snap.flat.Type()
	}
	return stats
}

// Persist writes the index to path+".vec" and path+".meta.db". Both files
// are written next to their destination and renamed into place.
func (e *EmbeddingIndex) Persist(ctx context.Context, path string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := e.snap
	if snap == nil {
		return ErrNotBuilt
	}
	flat := snap.flat
	if flat == nil {
		if snap.dim <= 0 {
			return fmt.Errorf("cannot persist an empty index of unknown dimension")
		}
		mem, err := NewMemoryIndex(snap.dim)
		if err != nil {
			return err
		}
		flat = mem
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	vecPath, metaPath := path+VectorFileSuffix, path+MetadataFileSuffix
	vecTmp, metaTmp := vecPath+".tmp", metaPath+".tmp"
	defer os.Remove(vecTmp)
	defer os.Remove(metaTmp)

	if err := flat.Save(vecTmp); err != nil {
		return fmt.Errorf("save vectors: %w", err)
	}
	_ = os.Remove(metaTmp)
	store, err := storage.NewSQLiteStorage(metaTmp)
	if err != nil {
		return fmt.Errorf("create metadata: %w", err)
	}
	meta := &storage.IndexMeta{
		ModelID:     snap.modelID,
		Dimension:   snap.dim,
		VectorCount: flat.Size(),
		IndexType:   flat.Type(),
		SourcePath:  snap.source,
	}
	if err := store.SaveIndex(ctx, meta, snap.chunks); err != nil {
		_ = store.Close()
		return fmt.Errorf("save metadata: %w", err)
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("close metadata: %w", err)
	}

	if err := os.Rename(vecTmp, vecPath); err != nil {
		return fmt.Errorf("install vectors: %w", err)
	}
	if err := os.Rename(metaTmp, metaPath); err != nil {
		return fmt.Errorf("install metadata: %w", err)
	}
	e.logger.Info("embedding index saved",
		zap.String("path", path), zap.Int("chunks", len(snap.chunks)))
	return nil
}

// Restore replaces the index with the one saved at path. It fails with
// *IncompatibleIndexError when the saved model or dimension differs from the
// live embedder and with ErrCorruptIndex when the artifacts are missing or
// inconsistent. On error the current index is kept.
func (e *EmbeddingIndex) Restore(ctx context.Context, path string) error {
	vecPath, metaPath := path+VectorFileSuffix, path+MetadataFileSuffix
	for _, p := range []string{vecPath, metaPath} {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			return fmt.Errorf("%w: missing %s", ErrCorruptIndex, p)
		}
	}

	store, err := storage.OpenSQLiteStorage(metaPath)
	if err != nil {
		return fmt.Errorf("%w: open metadata: %v", ErrCorruptIndex, err)
	}
	meta, chunks, err := store.LoadIndex(ctx)
	_ = store.Close()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: read metadata: %v", ErrCorruptIndex, err)
	}

	liveModel, liveDim := e.embedder.ModelID(), e.embedder.Dimensions()
	if meta.ModelID != liveModel || (liveDim > 0 && meta.Dimension != liveDim) {
		return &IncompatibleIndexError{
			StoredModel: meta.ModelID,
			LiveModel:   liveModel,
			StoredDim:   meta.Dimension,
			LiveDim:     liveDim,
		}
	}
	if meta.VectorCount != len(chunks) {
		return fmt.Errorf("%w: %d vectors but %d chunks", ErrCorruptIndex, meta.VectorCount, len(chunks))
	}
	for i, c := range chunks {
		if c.ID != i {
			return fmt.Errorf("%w: chunk %d stored at position %d", ErrCorruptIndex, c.ID, i)
		}
	}

	flat, err := e.newFlat(meta.IndexType, meta.Dimension)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	if err := flat.Load(vecPath); err != nil {
		_ = flat.Close()
		return fmt.Errorf("%w: load vectors: %v", ErrCorruptIndex, err)
	}
	if flat.Size() != meta.VectorCount {
		_ = flat.Close()
		return fmt.Errorf("%w: vector file holds %d vectors, metadata says %d", ErrCorruptIndex, flat.Size(), meta.VectorCount)
	}

	e.swap(&snapshot{
		flat:    flat,
		chunks:  chunks,
		dim:     meta.Dimension,
		modelID: meta.ModelID,
		source:  meta.SourcePath,
	})
	e.logger.Info("embedding index restored",
		zap.String("path", path),
		zap.Int("chunks", len(chunks)),
		zap.String("model", meta.ModelID))
	return nil
}

// Close releases the current index.
func (e *EmbeddingIndex) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snap != nil && e.snap.flat != nil {
		err := e.snap.flat.Close()
		e.snap = nil
		return err
	}
	e.snap = nil
	return nil
}
