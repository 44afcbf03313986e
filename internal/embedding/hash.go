package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/docent/pkg/utils"
)

// HashEmbedder is a deterministic feature-hashing embedder. Each lowercased
// term adds a signed unit to one bucket, so texts sharing vocabulary get
// similar vectors. It needs no model files and serves as the offline default
// and as the test double.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a HashEmbedder producing vectors of the given
// dimension (384 when dimensions <= 0).
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the unit-length hashed term vector of text. Text without
// terms maps to a fixed basis vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	for _, term := range Terms(text) {
		h := HashString(term)
		sign := float32(1)
		if h&(1<<30) != 0 {
			sign = -1
		}
		emb[h%e.dimensions] += sign
	}
	if !utils.NormalizeL2(emb) {
		emb[0] = 1
	}
	return emb, nil
}

// EmbedBatch embeds each text in order.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int { return e.dimensions }

// ModelID identifies the hashing scheme and dimension.
func (e *HashEmbedder) ModelID() string { return fmt.Sprintf("hash-fnv1a-%d", e.dimensions) }

// Close is a no-op.
func (e *HashEmbedder) Close() error { return nil }
