package vector

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/hyperjump/docent/internal/embedding"
	"github.com/hyperjump/docent/internal/models"
)

// namedEmbedder reports a fixed model ID over hashed embeddings.
type namedEmbedder struct {
	*embedding.HashEmbedder
	id string
}

func (n namedEmbedder) ModelID() string { return n.id }

func chunksOf(texts ...string) []models.Chunk {
	out := make([]models.Chunk, len(texts))
	for i, t := range texts {
		out[i] = models.Chunk{ID: 100 + i, Text: t}
	}
	return out
}

var corpus = []string{
	"the quarterly revenue grew by twelve percent",
	"employees may work remotely on fridays",
	"the warranty covers manufacturing defects for two years",
	"submit expense reports within thirty days",
}

func TestEmbeddingIndex_SearchBeforeBuild(t *testing.T) {
	idx := NewEmbeddingIndex(embedding.NewHashEmbedder(64))
	if _, err := idx.Search(context.Background(), "anything", 3); !errors.Is(err, ErrNotBuilt) {
		t.Fatalf("expected ErrNotBuilt, got %v", err)
	}
	if err := idx.Persist(context.Background(), filepath.Join(t.TempDir(), "idx")); !errors.Is(err, ErrNotBuilt) {
		t.Fatalf("Persist: expected ErrNotBuilt, got %v", err)
	}
	if idx.Stats().Built {
		t.Error("Stats.Built should be false")
	}
}

func TestEmbeddingIndex_ExactTextRanksFirst(t *testing.T) {
	ctx := context.Background()
	idx := NewEmbeddingIndex(embedding.NewHashEmbedder(256), WithBatchSize(3))
	if err := idx.Build(ctx, chunksOf(corpus...)); err != nil {
		t.Fatal(err)
	}
	for i, text := range corpus {
		results, err := idx.Search(ctx, text, 2)
		if err != nil {
			t.Fatal(err)
		}
		if results[0].Chunk.ID != i {
			t.Errorf("query %d: top chunk %d", i, results[0].Chunk.ID)
		}
		if math.Abs(results[0].Score-1) > 1e-5 {
			t.Errorf("query %d: score %v, want ~1", i, results[0].Score)
		}
	}
}

func TestEmbeddingIndex_ReassignsChunkIDs(t *testing.T) {
	ctx := context.Background()
	idx := NewEmbeddingIndex(embedding.NewHashEmbedder(64))
	in := chunksOf("one two", "three four")
	if err := idx.Build(ctx, in); err != nil {
		t.Fatal(err)
	}
	if in[0].ID != 100 {
		t.Error("Build must not modify the caller's chunks")
	}
	results, _ := idx.Search(ctx, "three four", 2)
	if results[0].Chunk.ID != 1 || results[1].Chunk.ID != 0 {
		t.Errorf("IDs = %d, %d", results[0].Chunk.ID, results[1].Chunk.ID)
	}
}

func TestEmbeddingIndex_OrderingAndTies(t *testing.T) {
	ctx := context.Background()
	idx := NewEmbeddingIndex(embedding.NewHashEmbedder(128))
	texts := []string{"alpha beta", "gamma delta", "alpha beta", "epsilon", "alpha beta"}
	if err := idx.Build(ctx, chunksOf(texts...)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		k    int
		want int
	}{
		{0, 0}, {1, 1}, {2, 2}, {5, 5}, {50, 5},
	}
	for _, tt := range tests {
		results, err := idx.Search(ctx, "alpha beta", tt.k)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != tt.want {
			t.Errorf("k=%d: got %d results, want %d", tt.k, len(results), tt.want)
		}
		for i := 1; i < len(results); i++ {
			prev, cur := results[i-1], results[i]
			if cur.Score > prev.Score || (cur.Score == prev.Score && cur.Chunk.ID < prev.Chunk.ID) {
				t.Errorf("k=%d: results out of order at %d: %+v", tt.k, i, results)
			}
		}
	}

	results, _ := idx.Search(ctx, "alpha beta", 2)
	if results[0].Chunk.ID != 0 || results[1].Chunk.ID != 2 {
		t.Errorf("tied chunks should come back by ascending ID, got %d, %d", results[0].Chunk.ID, results[1].Chunk.ID)
	}
}

func TestEmbeddingIndex_EmptyBuild(t *testing.T) {
	ctx := context.Background()
	idx := NewEmbeddingIndex(embedding.NewHashEmbedder(32))
	if err := idx.Build(ctx, nil); err != nil {
		t.Fatal(err)
	}
	results, err := idx.Search(ctx, "anything", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results", len(results))
	}
	st := idx.Stats()
	if !st.Built || st.VectorCount != 0 || st.ChunkCount != 0 || st.Dimension != 32 {
		t.Errorf("stats = %+v", st)
	}
}

func TestEmbeddingIndex_RebuildReplaces(t *testing.T) {
	ctx := context.Background()
	idx := NewEmbeddingIndex(embedding.NewHashEmbedder(64))
	_ = idx.Build(ctx, chunksOf(corpus...), WithSource("/a.pdf"))
	if err := idx.Build(ctx, chunksOf("only one chunk here"), WithSource("/b.pdf")); err != nil {
		t.Fatal(err)
	}
	results, _ := idx.Search(ctx, corpus[0], 10)
	if len(results) != 1 || results[0].Chunk.Text != "only one chunk here" {
		t.Errorf("old chunks survived rebuild: %+v", results)
	}
	if idx.Source() != "/b.pdf" {
		t.Errorf("Source = %q", idx.Source())
	}
}

func TestEmbeddingIndex_PersistRestore(t *testing.T) {
	ctx := context.Background()
	emb := embedding.NewHashEmbedder(96)
	idx := NewEmbeddingIndex(emb)
	if err := idx.Build(ctx, chunksOf(corpus...), WithSource("/docs/handbook.pdf")); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "indices", "handbook")
	if err := idx.Persist(ctx, path); err != nil {
		t.Fatal(err)
	}
	for _, suffix := range []string{VectorFileSuffix, MetadataFileSuffix} {
		if _, err := os.Stat(path + suffix); err != nil {
			t.Errorf("missing artifact %s: %v", suffix, err)
		}
	}

	restored := NewEmbeddingIndex(emb)
	if err := restored.Restore(ctx, path); err != nil {
		t.Fatal(err)
	}
	if restored.Stats() != idx.Stats() {
		t.Errorf("stats differ: %+v vs %+v", restored.Stats(), idx.Stats())
	}
	if restored.Source() != "/docs/handbook.pdf" {
		t.Errorf("Source = %q", restored.Source())
	}
	const query = "how long is the warranty"
	want, _ := idx.Search(ctx, query, 4)
	got, err := restored.Search(ctx, query, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d results, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Chunk != want[i].Chunk || math.Abs(got[i].Score-want[i].Score) > 1e-6 {
			t.Errorf("result %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestEmbeddingIndex_PersistRestoreEmpty(t *testing.T) {
	ctx := context.Background()
	emb := embedding.NewHashEmbedder(16)
	idx := NewEmbeddingIndex(emb)
	_ = idx.Build(ctx, nil)
	path := filepath.Join(t.TempDir(), "empty")
	if err := idx.Persist(ctx, path); err != nil {
		t.Fatal(err)
	}
	restored := NewEmbeddingIndex(emb)
	if err := restored.Restore(ctx, path); err != nil {
		t.Fatal(err)
	}
	results, err := restored.Search(ctx, "anything", 3)
	if err != nil || len(results) != 0 {
		t.Errorf("results=%v err=%v", results, err)
	}
}

func TestEmbeddingIndex_RestoreIncompatibleModel(t *testing.T) {
	ctx := context.Background()
	a := namedEmbedder{embedding.NewHashEmbedder(64), "model-A"}
	b := namedEmbedder{embedding.NewHashEmbedder(64), "model-B"}

	idx := NewEmbeddingIndex(a)
	_ = idx.Build(ctx, chunksOf(corpus...))
	path := filepath.Join(t.TempDir(), "idx")
	if err := idx.Persist(ctx, path); err != nil {
		t.Fatal(err)
	}

	other := NewEmbeddingIndex(b)
	err := other.Restore(ctx, path)
	var incompatible *IncompatibleIndexError
	if !errors.As(err, &incompatible) {
		t.Fatalf("expected IncompatibleIndexError, got %v", err)
	}
	if incompatible.StoredModel != "model-A" || incompatible.LiveModel != "model-B" {
		t.Errorf("error = %+v", incompatible)
	}
	if other.Built() {
		t.Error("failed restore must leave the index unbuilt")
	}
}

func TestEmbeddingIndex_RestoreIncompatibleDimension(t *testing.T) {
	ctx := context.Background()
	idx := NewEmbeddingIndex(namedEmbedder{embedding.NewHashEmbedder(64), "same"})
	_ = idx.Build(ctx, chunksOf(corpus...))
	path := filepath.Join(t.TempDir(), "idx")
	_ = idx.Persist(ctx, path)

	err := NewEmbeddingIndex(namedEmbedder{embedding.NewHashEmbedder(32), "same"}).Restore(ctx, path)
	var incompatible *IncompatibleIndexError
	if !errors.As(err, &incompatible) || incompatible.StoredDim != 64 || incompatible.LiveDim != 32 {
		t.Fatalf("expected dimension IncompatibleIndexError, got %v", err)
	}
}

func TestEmbeddingIndex_RestoreCorrupt(t *testing.T) {
	ctx := context.Background()
	emb := embedding.NewHashEmbedder(32)
	idx := NewEmbeddingIndex(emb)
	_ = idx.Build(ctx, chunksOf(corpus...))
	dir := t.TempDir()
	path := filepath.Join(dir, "idx")
	if err := idx.Persist(ctx, path); err != nil {
		t.Fatal(err)
	}

	target := NewEmbeddingIndex(emb)
	_ = target.Build(ctx, chunksOf("existing chunk"))

	t.Run("missing vectors", func(t *testing.T) {
		other := filepath.Join(dir, "novec")
		data, _ := os.ReadFile(path + MetadataFileSuffix)
		_ = os.WriteFile(other+MetadataFileSuffix, data, 0644)
		if err := target.Restore(ctx, other); !errors.Is(err, ErrCorruptIndex) {
			t.Fatalf("expected ErrCorruptIndex, got %v", err)
		}
	})
	t.Run("missing metadata", func(t *testing.T) {
		other := filepath.Join(dir, "nometa")
		data, _ := os.ReadFile(path + VectorFileSuffix)
		_ = os.WriteFile(other+VectorFileSuffix, data, 0644)
		if err := target.Restore(ctx, other); !errors.Is(err, ErrCorruptIndex) {
			t.Fatalf("expected ErrCorruptIndex, got %v", err)
		}
	})
	t.Run("truncated vectors", func(t *testing.T) {
		data, _ := os.ReadFile(path + VectorFileSuffix)
		_ = os.WriteFile(path+VectorFileSuffix, data[:len(data)-8], 0644)
		if err := target.Restore(ctx, path); !errors.Is(err, ErrCorruptIndex) {
			t.Fatalf("expected ErrCorruptIndex, got %v", err)
		}
	})
	t.Run("metadata not a database", func(t *testing.T) {
		other := filepath.Join(dir, "garbage")
		_ = os.WriteFile(other+VectorFileSuffix, []byte("x"), 0644)
		_ = os.WriteFile(other+MetadataFileSuffix, []byte("definitely not sqlite, just some text padding it out"), 0644)
		if err := target.Restore(ctx, other); !errors.Is(err, ErrCorruptIndex) {
			t.Fatalf("expected ErrCorruptIndex, got %v", err)
		}
	})

	results, err := target.Search(ctx, "existing chunk", 5)
	if err != nil || len(results) != 1 || results[0].Chunk.Text != "existing chunk" {
		t.Errorf("failed restores must keep the previous index: %v %v", results, err)
	}
}

// reverseTieFlat returns the top m scores with ties in descending ID order,
// the worst case for a flat index that does not break ties itself.
type reverseTieFlat struct {
	scores []float64
}

func (f *reverseTieFlat) Add(context.Context, [][]float32) error { return nil }
func (f *reverseTieFlat) Search(_ context.Context, _ []float32, k int) ([]Hit, error) {
	hits := make([]Hit, len(f.scores))
	for i, s := range f.scores {
		hits[i] = Hit{ID: i, Score: s}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID > hits[j].ID
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}
func (f *reverseTieFlat) Save(string) error { return nil }
func (f *reverseTieFlat) Load(string) error { return nil }
func (f *reverseTieFlat) Size() int         { return len(f.scores) }
func (f *reverseTieFlat) Dimensions() int   { return 1 }
func (f *reverseTieFlat) Type() string      { return "fake" }
func (f *reverseTieFlat) Close() error      { return nil }

func TestTopK_BreaksTiesAcrossCandidates(t *testing.T) {
	flat := &reverseTieFlat{scores: []float64{0.2, 0.9, 0.5, 0.5, 0.5, 0.5, 0.5, 0.1}}
	hits, err := topK(context.Background(), flat, []float32{1}, 3, len(flat.scores))
	if err != nil {
		t.Fatal(err)
	}
	want := []int{1, 2, 3}
	if len(hits) != len(want) {
		t.Fatalf("got %d hits", len(hits))
	}
	for i, h := range hits {
		if h.ID != want[i] {
			t.Fatalf("hits = %+v, want IDs %v", hits, want)
		}
	}
}
