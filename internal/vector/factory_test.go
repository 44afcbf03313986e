package vector

import (
	"context"
	"testing"
)

func TestNewFlatIndex_Memory(t *testing.T) {
	for _, typ := range []string{"memory", ""} {
		idx, err := NewFlatIndex(typ, 3)
		if err != nil {
			t.Fatalf("NewFlatIndex(%q): %v", typ, err)
		}
		if idx.Type() != "memory" || idx.Dimensions() != 3 {
			t.Errorf("type=%s dim=%d", idx.Type(), idx.Dimensions())
		}
		if err := idx.Add(context.Background(), [][]float32{{1, 0, 0}}); err != nil {
			t.Fatalf("Add: %v", err)
		}
		if idx.Size() != 1 {
			t.Errorf("Size=%d, want 1", idx.Size())
		}
		_ = idx.Close()
	}
}

func TestNewFlatIndex_Errors(t *testing.T) {
	if _, err := NewFlatIndex("unknown", 3); err == nil {
		t.Error("expected error for unknown index type")
	}
	if _, err := NewFlatIndex("memory", 0); err == nil {
		t.Error("expected error for zero dimension")
	}
}

func TestNewFlatIndex_FAISS(t *testing.T) {
	if !IsFAISSAvailable() {
		t.Skip("FAISS not available (build with -tags=faiss)")
	}
	idx, err := NewFlatIndex("faiss", 2)
	if err != nil {
		t.Fatalf("NewFlatIndex(faiss): %v", err)
	}
	defer idx.Close()
	ctx := context.Background()
	if err := idx.Add(ctx, [][]float32{{0, 1}, {1, 0}}); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != 1 {
		t.Errorf("hits = %+v, want ID 1", hits)
	}
}

func TestParseIndexType(t *testing.T) {
	tests := []struct {
		in      string
		want    IndexType
		wantErr bool
	}{
		{"", IndexTypeMemory, false},
		{"memory", IndexTypeMemory, false},
		{" FAISS ", IndexTypeFAISS, false},
		{"hnsw", "", true},
	}
	for _, tt := range tests {
		got, err := ParseIndexType(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseIndexType(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestResolveIndexType(t *testing.T) {
	got, fellBack, err := ResolveIndexType("faiss")
	if err != nil {
		t.Fatal(err)
	}
	if IsFAISSAvailable() {
		if got != IndexTypeFAISS || fellBack {
			t.Errorf("got %q fellBack=%t with FAISS compiled in", got, fellBack)
		}
	} else if got != IndexTypeMemory || !fellBack {
		t.Errorf("got %q fellBack=%t without FAISS", got, fellBack)
	}
	if _, _, err := ResolveIndexType("bogus"); err == nil {
		t.Error("expected error for unknown type")
	}
}
