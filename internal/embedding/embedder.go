// Package embedding turns text into fixed-dimension vectors through pluggable backends.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyEmbedding is returned when a backend answers with no vector.
var ErrEmptyEmbedding = errors.New("backend returned an empty embedding")

// Embedder produces vector embeddings for text. Dimensions is fixed for the
// lifetime of an Embedder; ModelID names the model so persisted indices can
// be checked against it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelID() string
	Close() error
}

// embedEach implements EmbedBatch for backends that embed one text per call.
func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = emb
	}
	return out, nil
}
