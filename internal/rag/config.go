package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/docent/internal/config"
	"github.com/hyperjump/docent/internal/embedding"
	"github.com/hyperjump/docent/internal/extract"
	"github.com/hyperjump/docent/internal/generation"
	"github.com/hyperjump/docent/internal/indexer"
	"github.com/hyperjump/docent/internal/vector"
)

// New builds a session from configuration: the embedding backend, the
// ingestion pipeline and a lazy generation loader.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Session, error) {
	chunker, err := indexer.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	emb, err := embedding.New(ctx, cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("embedding backend: %w", err)
	}
	pipeline := indexer.NewPipeline(
		extract.NewExtractor(extract.WithLogger(logger)),
		chunker,
		indexer.WithLogger(logger),
	)
	return NewSession(pipeline, emb, generation.NewLoader(cfg.Generation, logger),
		WithLogger(logger),
		WithMaxContextChunks(cfg.RAG.MaxContextChunks),
		WithMaxOutputTokens(cfg.Generation.MaxOutputTokens),
		WithPreviewChars(cfg.RAG.SourcePreviewChars),
		WithTimeouts(cfg.Embedding.Timeout, cfg.Generation.Timeout),
		WithGenerationModel(cfg.Generation.Model),
		WithIndexOptions(
			vector.WithIndexType(cfg.Vector.IndexType),
			vector.WithBatchSize(cfg.Embedding.BatchSize),
		),
	), nil
}
