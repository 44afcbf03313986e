// Package models defines core data structures for chunks, questions, and answers.
package models

import "time"

// Chunk is a contiguous word window of a document. ID equals the chunk's
// position in the index that owns it.
type Chunk struct {
	ID        int    `json:"chunk_id"`
	Text      string `json:"text"`
	StartWord int    `json:"start_word"`
	EndWord   int    `json:"end_word"`
	WordCount int    `json:"word_count"`
	CharCount int    `json:"char_count"`
}

// LoadStats summarizes a successful document load.
type LoadStats struct {
	DocumentPath  string        `json:"document_path"`
	DocumentID    string        `json:"document_id"`
	Pages         int           `json:"pages"`
	SkippedPages  []int         `json:"skipped_pages,omitempty"`
	Chunks        int           `json:"chunks"`
	RawChars      int           `json:"raw_chars"`
	CleanedChars  int           `json:"cleaned_chars"`
	AvgChunkWords float64       `json:"avg_chunk_words"`
	Duration      time.Duration `json:"duration_ns"`
	Status        string        `json:"status"`
}
