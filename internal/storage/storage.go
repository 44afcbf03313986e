// Package storage persists the metadata half of a saved embedding index.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/docent/internal/models"
)

// MetadataFormatVersion is written with every saved index.
const MetadataFormatVersion = 1

// ErrNoMetadata is returned when a store holds no saved index.
var ErrNoMetadata = errors.New("index metadata not found")

// IndexMeta describes a saved embedding index.
type IndexMeta struct {
	FormatVersion int
	ModelID       string
	Dimension     int
	VectorCount   int
	IndexType     string
	SourcePath    string
	CreatedAt     time.Time
}

// MetadataStore saves and loads index metadata together with its chunks.
type MetadataStore interface {
	// SaveIndex replaces any previously saved metadata and chunks.
	SaveIndex(ctx context.Context, meta *IndexMeta, chunks []models.Chunk) error
	// LoadIndex returns the saved metadata and chunks ordered by chunk ID.
	LoadIndex(ctx context.Context) (*IndexMeta, []models.Chunk, error)
	Close() error
}
