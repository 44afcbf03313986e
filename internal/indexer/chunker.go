// Package indexer turns documents into word-window chunks ready for embedding.
package indexer

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/docent/internal/models"
)

// ErrInvalidChunking is returned when chunk size or overlap is out of range.
var ErrInvalidChunking = errors.New("invalid chunking parameters")

// Segment splits text into windows of chunkSize whitespace-delimited words,
// each starting chunkSize-overlap words after the previous one. The last
// window is the first that reaches the end of the text. Text with at most
// chunkSize words becomes a single chunk holding the text as given.
// Empty or whitespace-only text yields no chunks.
func Segment(text string, chunkSize, overlap int) ([]models.Chunk, error) {
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk_size=%d overlap=%d", ErrInvalidChunking, chunkSize, overlap)
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}
	if len(words) <= chunkSize {
		return []models.Chunk{{
			ID:        0,
			Text:      text,
			StartWord: 0,
			EndWord:   len(words),
			WordCount: len(words),
			CharCount: utf8.RuneCountInString(text),
		}}, nil
	}

	step := chunkSize - overlap
	chunks := make([]models.Chunk, 0, (len(words)-overlap+step-1)/step)
	for i := 0; i < len(words); i += step {
		end := i + chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunkText := strings.Join(words[i:end], " ")
		chunks = append(chunks, models.Chunk{
			ID:        len(chunks),
			Text:      chunkText,
			StartWord: i,
			EndWord:   end,
			WordCount: end - i,
			CharCount: utf8.RuneCountInString(chunkText),
		})
		if end >= len(words) {
			break
		}
	}
	return chunks, nil
}

// Chunker holds validated segmentation parameters.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in words).
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	if _, err := Segment("", chunkSize, chunkOverlap); err != nil {
		return nil, err
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// Chunk segments text with the chunker's parameters.
func (c *Chunker) Chunk(text string) []models.Chunk {
	chunks, _ := Segment(text, c.chunkSize, c.chunkOverlap)
	return chunks
}

// Size returns the window size in words.
func (c *Chunker) Size() int { return c.chunkSize }

// Overlap returns the number of words shared by consecutive windows.
func (c *Chunker) Overlap() int { return c.chunkOverlap }
