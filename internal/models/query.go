package models

import (
	"errors"
	"strings"
)

// ErrEmptyQuestion is returned when a question has no non-space content.
var ErrEmptyQuestion = errors.New("question cannot be empty")

// QuestionRequest is the body of an ask request.
type QuestionRequest struct {
	Question string `json:"question"`
}

// Validate trims the question and rejects it when empty.
func (q *QuestionRequest) Validate() error {
	q.Question = strings.TrimSpace(q.Question)
	if q.Question == "" {
		return ErrEmptyQuestion
	}
	return nil
}

// LoadRequest asks the session to load a document from a local path.
type LoadRequest struct {
	Path string `json:"path"`
}

// IndexRequest names a persisted index location. An empty path means the
// server's default location for the current document.
type IndexRequest struct {
	Path string `json:"path,omitempty"`
}
