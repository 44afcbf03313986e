package vector

import (
	"errors"
	"fmt"
)

var (
	// ErrNotBuilt is returned by Search and Persist before any Build or Restore.
	ErrNotBuilt = errors.New("embedding index not built")
	// ErrCorruptIndex is returned by Restore when the saved artifacts are
	// missing, unreadable or disagree with each other.
	ErrCorruptIndex = errors.New("corrupt embedding index")
)

// IncompatibleIndexError is returned by Restore when a saved index was built
// with a different embedding model or dimension than the live embedder.
type IncompatibleIndexError struct {
	StoredModel string
	LiveModel   string
	StoredDim   int
	LiveDim     int
}

func (e *IncompatibleIndexError) Error() string {
	return fmt.Sprintf("incompatible index: built with %s (dim %d), live embedder is %s (dim %d)",
		e.StoredModel, e.StoredDim, e.LiveModel, e.LiveDim)
}
