package vector

import (
	"fmt"
	"strings"
)

// IndexType names a FlatIndex implementation.
type IndexType string

const (
	// IndexTypeMemory is the brute-force in-process index.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeFAISS is a FAISS IndexFlatIP; needs -tags=faiss and libfaiss_c.
	IndexTypeFAISS IndexType = "faiss"
)

// ParseIndexType normalizes a configured index type. "" means memory.
func ParseIndexType(s string) (IndexType, error) {
	switch t := IndexType(strings.ToLower(strings.TrimSpace(s))); t {
	case "", IndexTypeMemory:
		return IndexTypeMemory, nil
	case IndexTypeFAISS:
		return IndexTypeFAISS, nil
	default:
		return "", fmt.Errorf("unknown index type: %s (supported: memory, faiss)", s)
	}
}

// ResolveIndexType is ParseIndexType followed by the FAISS availability
// check. fellBack reports that FAISS was requested but memory is returned.
func ResolveIndexType(s string) (t IndexType, fellBack bool, err error) {
	t, err = ParseIndexType(s)
	if err != nil {
		return "", false, err
	}
	if t == IndexTypeFAISS && !IsFAISSAvailable() {
		return IndexTypeMemory, true, nil
	}
	return t, false, nil
}

// NewFlatIndex creates an empty flat index of the given type and dimension.
func NewFlatIndex(indexType string, dimensions int) (FlatIndex, error) {
	t, err := ParseIndexType(indexType)
	if err != nil {
		return nil, err
	}
	if t == IndexTypeFAISS {
		return NewFAISSIndex(dimensions)
	}
	return NewMemoryIndex(dimensions)
}

// IsFAISSAvailable reports whether FAISS support is compiled in.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
