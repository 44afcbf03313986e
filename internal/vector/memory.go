package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
)

const (
	memoryMagic   = "DVEC"
	memoryVersion = 1
	// magic, version, dimensions, count
	memoryHeaderSize = 16
)

// MemoryIndex is a flat in-memory index using brute-force inner product search.
type MemoryIndex struct {
	dimensions int
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		vectors:    make([][]float32, 0),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Add appends vectors; IDs continue from the current size.
func (m *MemoryIndex) Add(ctx context.Context, vectors [][]float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, v := range vectors {
		if len(v) != m.dimensions {
			return fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(v), m.dimensions)
		}
	}
	for _, v := range vectors {
		vec := make([]float32, m.dimensions)
		copy(vec, v)
		m.vectors = append(m.vectors, vec)
	}
	return nil
}

// Search scores every vector and returns the top k, ties broken by ascending ID.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.vectors) == 0 {
		return nil, nil
	}
	hits := make([]Hit, len(m.vectors))
	for i, vec := range m.vectors {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		hits[i] = Hit{ID: i, Score: dot(query, vec)}
	}
	sortHits(hits)
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Save writes the index to path. Format: magic "DVEC", version, dimensions
// and count as little-endian uint32, then count*dimensions float32 values.
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	header := make([]byte, memoryHeaderSize)
	copy(header[0:4], memoryMagic)
	binary.LittleEndian.PutUint32(header[4:8], memoryVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(m.dimensions))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(m.vectors)))
	if _, err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, vec := range m.vectors {
		if _, err := w.Write(float32SliceToBytes(vec)); err != nil {
			f.Close()
			return fmt.Errorf("write vector: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush index file: %w", err)
	}
	return f.Close()
}

// Load replaces the contents of the index with the file at path. The file
// dimension must match and its size must agree with its header.
func (m *MemoryIndex) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	header := make([]byte, memoryHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if string(header[0:4]) != memoryMagic {
		return errors.New("not a vector index file")
	}
	if v := binary.LittleEndian.Uint32(header[4:8]); v != memoryVersion {
		return fmt.Errorf("unsupported vector index version %d", v)
	}
	dim := int(binary.LittleEndian.Uint32(header[8:12]))
	n := int(binary.LittleEndian.Uint32(header[12:16]))
	if dim != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, m.dimensions)
	}
	if want := int64(memoryHeaderSize) + int64(n)*int64(dim)*4; info.Size() != want {
		return fmt.Errorf("index file size %d, expected %d for %d vectors", info.Size(), want, n)
	}

	r := bufio.NewReader(f)
	vectors := make([][]float32, 0, n)
	buf := make([]byte, dim*4)
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}

	m.mu.Lock()
	m.vectors = vectors
	m.mu.Unlock()
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

// dot is the inner product accumulated in float64; for unit vectors it is
// the cosine similarity.
func dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
