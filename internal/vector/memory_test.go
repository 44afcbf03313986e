package vector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryIndex_AddSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{0, 1, 0},
		{1, 0, 0},
		{0.9, 0.1, 0},
		{1, 0, 0},
	}
	if err := idx.Add(ctx, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 4 {
		t.Errorf("Size=%d", idx.Size())
	}

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	// IDs 1 and 3 tie; the lower ID wins.
	if hits[0].ID != 1 || hits[1].ID != 3 || hits[2].ID != 2 {
		t.Errorf("unexpected order: %+v", hits)
	}
}

func TestMemoryIndex_SearchLimits(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	if hits, err := idx.Search(ctx, []float32{1, 0}, 5); err != nil || len(hits) != 0 {
		t.Errorf("empty index: hits=%v err=%v", hits, err)
	}
	_ = idx.Add(ctx, [][]float32{{1, 0}, {0, 1}})
	if hits, _ := idx.Search(ctx, []float32{1, 0}, 10); len(hits) != 2 {
		t.Errorf("k > n: got %d hits", len(hits))
	}
	if hits, _ := idx.Search(ctx, []float32{1, 0}, 0); len(hits) != 0 {
		t.Errorf("k = 0: got %d hits", len(hits))
	}
	if _, err := idx.Search(ctx, []float32{1, 0, 0}, 1); err == nil {
		t.Error("expected query dimension error")
	}
	if err := idx.Add(ctx, [][]float32{{1, 0, 0}}); err == nil {
		t.Error("expected vector dimension error")
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, [][]float32{{0.6, 0.8}, {1, 0}})

	path := filepath.Join(t.TempDir(), "sub", "idx.vec")
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != memoryHeaderSize+2*2*4 {
		t.Errorf("file size %d", info.Size())
	}

	loaded, _ := NewMemoryIndex(2)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 {
		t.Fatalf("loaded size %d", loaded.Size())
	}
	hits, _ := loaded.Search(ctx, []float32{0.6, 0.8}, 1)
	if hits[0].ID != 0 {
		t.Errorf("top hit %d, want 0", hits[0].ID)
	}

	wrongDim, _ := NewMemoryIndex(3)
	if err := wrongDim.Load(path); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestMemoryIndex_LoadRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	idx, _ := NewMemoryIndex(2)
	_ = idx.Add(context.Background(), [][]float32{{1, 0}})
	good := filepath.Join(dir, "good.vec")
	if err := idx.Save(good); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(good)

	truncated := filepath.Join(dir, "trunc.vec")
	_ = os.WriteFile(truncated, data[:len(data)-2], 0644)
	garbage := filepath.Join(dir, "garbage.vec")
	_ = os.WriteFile(garbage, []byte("not an index at all"), 0644)

	for _, path := range []string{truncated, garbage, filepath.Join(dir, "missing.vec")} {
		m, _ := NewMemoryIndex(2)
		if err := m.Load(path); err == nil {
			t.Errorf("Load(%s): expected error", filepath.Base(path))
		}
	}
}

func TestSortHits(t *testing.T) {
	hits := []Hit{{ID: 4, Score: 0.5}, {ID: 2, Score: 0.9}, {ID: 1, Score: 0.5}, {ID: 0, Score: 0.1}}
	sortHits(hits)
	want := []int{2, 1, 4, 0}
	for i, h := range hits {
		if h.ID != want[i] {
			t.Fatalf("order %v, want IDs %v", hits, want)
		}
	}
}

func TestDot(t *testing.T) {
	if got := dot([]float32{1, 2}, []float32{3, 4}); got != 11 {
		t.Errorf("dot = %v", got)
	}
	if got := dot([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("mismatched lengths = %v", got)
	}
}
