package rag

import (
	"strings"

	"github.com/hyperjump/docent/internal/generation"
	"github.com/hyperjump/docent/internal/models"
	"github.com/hyperjump/docent/pkg/utils"
)

const instruction = "Answer the question using only the context above. " +
	"If the answer is not in the context, reply exactly: " + generation.RefusalSentinel

// BuildPrompt joins the retrieved chunk texts, in the given order, into a
// grounded prompt for the question.
func BuildPrompt(results []models.SearchResult, question string) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Chunk.Text
	}
	var b strings.Builder
	b.WriteString(generation.ContextLabel)
	b.WriteString(" ")
	b.WriteString(strings.Join(texts, "\n\n"))
	b.WriteString("\n\n")
	b.WriteString(generation.QuestionLabel)
	b.WriteString(" ")
	b.WriteString(question)
	b.WriteString("\n\n")
	b.WriteString(instruction)
	b.WriteString("\n\n")
	b.WriteString(generation.AnswerLabel)
	return b.String()
}

// Sources converts search results to attribution entries with truncated
// previews and scores rounded to three decimals.
func Sources(results []models.SearchResult, previewChars int) []models.Source {
	out := make([]models.Source, len(results))
	for i, r := range results {
		out[i] = models.Source{
			ChunkID: r.Chunk.ID,
			Text:    utils.Truncate(r.Chunk.Text, previewChars),
			Score:   utils.Round(r.Score, 3),
		}
	}
	return out
}
