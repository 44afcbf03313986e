package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"unicode/utf8"

	"github.com/hyperjump/docent/internal/extract"
	"github.com/hyperjump/docent/internal/fileid"
	"github.com/hyperjump/docent/internal/models"
	"go.uber.org/zap"
)

// Extraction is the cleaned text of one document plus extraction counters.
type Extraction struct {
	Path         string
	DocumentID   string
	Text         string
	Pages        int
	SkippedPages []int
	RawChars     int
	CleanedChars int
}

// Processed is a document segmented into chunks.
type Processed struct {
	*Extraction
	Chunks        []models.Chunk
	AvgChunkWords float64
}

// Pipeline extracts, cleans, and segments documents.
type Pipeline struct {
	extractor *extract.Extractor
	chunker   *Chunker
	logger    *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets a logger for extraction and segmentation events.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates a pipeline. A nil extractor uses extract.NewExtractor().
func NewPipeline(extractor *extract.Extractor, chunker *Chunker, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{extractor: extractor, chunker: chunker}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.extractor == nil {
		p.extractor = extract.NewExtractor(extract.WithLogger(p.logger))
	}
	return p
}

// ExtractAndClean extracts the document at path and returns its cleaned text.
// File-level failures are returned as *extract.ExtractionError.
func (p *Pipeline) ExtractAndClean(ctx context.Context, path string) (*Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	doc, err := p.extractor.Extract(absPath)
	if err != nil {
		return nil, err
	}
	raw := doc.Text()
	cleaned := Clean(raw)
	ex := &Extraction{
		Path:         absPath,
		DocumentID:   fileid.DocumentID(absPath),
		Text:         cleaned,
		Pages:        doc.Total,
		SkippedPages: doc.Skipped,
		RawChars:     utf8.RuneCountInString(raw),
		CleanedChars: utf8.RuneCountInString(cleaned),
	}
	p.logger.Debug("document extracted",
		zap.String("path", absPath),
		zap.String("format", doc.Format),
		zap.Int("pages", doc.Total),
		zap.Int("skipped", len(doc.Skipped)),
		zap.Int("raw_chars", ex.RawChars),
		zap.Int("cleaned_chars", ex.CleanedChars))
	return ex, nil
}

// Process extracts, cleans, and segments the document at path.
func (p *Pipeline) Process(ctx context.Context, path string) (*Processed, error) {
	ex, err := p.ExtractAndClean(ctx, path)
	if err != nil {
		return nil, err
	}
	chunks := p.chunker.Chunk(ex.Text)
	out := &Processed{Extraction: ex, Chunks: chunks}
	if len(chunks) > 0 {
		total := 0
		for _, c := range chunks {
			total += c.WordCount
		}
		out.AvgChunkWords = float64(total) / float64(len(chunks))
	}
	p.logger.Debug("document segmented",
		zap.String("path", ex.Path),
		zap.Int("chunks", len(chunks)),
		zap.Float64("avg_chunk_words", out.AvgChunkWords))
	return out, nil
}
