package models

import (
	"errors"
	"testing"
)

func TestQuestionRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"empty question", "", "", true},
		{"whitespace only", "  \n\t ", "", true},
		{"valid question", "What is RAG?", "What is RAG?", false},
		{"trims surrounding space", "  why?  ", "why?", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &QuestionRequest{Question: tt.in}
			err := q.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrEmptyQuestion) {
				t.Errorf("expected ErrEmptyQuestion, got %v", err)
			}
			if !tt.wantErr && q.Question != tt.want {
				t.Errorf("Question = %q, want %q", q.Question, tt.want)
			}
		})
	}
}
