// Package vector provides flat similarity indexes and the embedding index
// that answers nearest-neighbour queries over document chunks.
package vector

import (
	"context"
	"sort"
)

// FlatIndex stores unit vectors under positional IDs (the i-th added vector
// has ID i) and answers exact inner-product queries.
type FlatIndex interface {
	Add(ctx context.Context, vectors [][]float32) error
	// Search returns up to k hits ordered by descending score. Implementations
	// may order equal scores arbitrarily.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// Hit is a single flat index match.
type Hit struct {
	ID    int
	Score float64 // inner product; cosine similarity for unit vectors
}

// sortHits orders hits by descending score, then ascending ID.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
