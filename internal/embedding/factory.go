package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/docent/internal/config"
	"go.uber.org/zap"
)

// New builds the embedder selected by cfg.Provider. Network backends with an
// unknown dimension are queried once so Dimensions is fixed from the start.
// Remote backends are wrapped in an LRU cache of cfg.CacheSize entries.
func New(ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var e Embedder
	switch cfg.Provider {
	case config.ProviderHash, "":
		return NewHashEmbedder(cfg.Dimensions), nil
	case config.ProviderONNX:
		onnx, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		e = onnx
	case config.ProviderOpenAI:
		oa, err := NewOpenAIEmbedder(cfg.APIKey(), cfg.BaseURL, cfg.Model, cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		e = oa
	case config.ProviderOllama:
		e = NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimensions, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if e.Dimensions() == 0 {
		dimCtx, cancel := dimensionContext(ctx, cfg.Timeout)
		defer cancel()
		if _, err := e.Embed(dimCtx, "dimension check"); err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("discover %s embedding dimension: %w", e.ModelID(), err)
		}
		logger.Info("embedding dimension discovered",
			zap.String("model", e.ModelID()), zap.Int("dimensions", e.Dimensions()))
	}
	return WithCache(e, cfg.CacheSize), nil
}

// dimensionContext bounds the dimension lookup by timeout; zero means no deadline.
func dimensionContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
