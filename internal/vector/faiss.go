//go:build faiss && cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"
)

// FAISSIndex wraps a FAISS IndexFlatIP. FAISS labels vectors 0..n-1 in
// insertion order, which are the positional IDs FlatIndex requires.
type FAISSIndex struct {
	index      *C.FaissIndex
	dimensions int
	mu         sync.RWMutex
}

// NewFAISSIndex creates a FAISS inner product index with the given dimension.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	var flat *C.FaissIndexFlatIP
	if ret := C.faiss_IndexFlatIP_new_with(&flat, C.idx_t(dimensions)); ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}
	return &FAISSIndex{
		index:      (*C.FaissIndex)(unsafe.Pointer(flat)),
		dimensions: dimensions,
	}, nil
}

// faissLastError returns the last FAISS error message.
func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Add appends vectors to the index.
func (f *FAISSIndex) Add(ctx context.Context, vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	// FAISS takes one contiguous row-major array
	n := len(vectors)
	flat := make([]float32, n*f.dimensions)
	for i, vec := range vectors {
		if len(vec) != f.dimensions {
			return fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(vec), f.dimensions)
		}
		copy(flat[i*f.dimensions:(i+1)*f.dimensions], vec)
	}
	if ret := C.faiss_Index_add(f.index, C.idx_t(n), (*C.float)(unsafe.Pointer(&flat[0]))); ret != 0 {
		return fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
	}
	return nil
}

// Search returns the top-k vectors by inner product, ordered like sortHits.
// FAISS does not order equal scores, so ties are re-sorted by ID here.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.index == nil {
		return nil, ErrNotBuilt
	}

	ntotal := int(C.faiss_Index_ntotal(f.index))
	if k <= 0 || ntotal == 0 {
		return nil, nil
	}
	if k > ntotal {
		k = ntotal
	}
	distances := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}

	hits := make([]Hit, 0, k)
	for i := 0; i < k; i++ {
		if labels[i] < 0 {
			continue
		}
		hits = append(hits, Hit{ID: int(labels[i]), Score: float64(distances[i])})
	}
	sortHits(hits)
	return hits, nil
}

// Save writes the FAISS index to path.
func (f *FAISSIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	if ret := C.faiss_write_index_fname(f.index, cPath); ret != 0 {
		return fmt.Errorf("failed to save FAISS index: %s", faissLastError())
	}
	return nil
}

// Load replaces the index with the one stored at path. The stored dimension must match.
func (f *FAISSIndex) Load(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var loaded *C.FaissIndex
	if ret := C.faiss_read_index_fname(cPath, 0, &loaded); ret != 0 {
		return fmt.Errorf("failed to load FAISS index: %s", faissLastError())
	}
	if d := int(C.faiss_Index_d(loaded)); d != f.dimensions {
		C.faiss_Index_free(loaded)
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", d, f.dimensions)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
	}
	f.index = loaded
	return nil
}

// Size returns the number of vectors in the index.
func (f *FAISSIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.index == nil {
		return 0
	}
	return int(C.faiss_Index_ntotal(f.index))
}

// Dimensions returns the vector dimension.
func (f *FAISSIndex) Dimensions() int {
	return f.dimensions
}

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
