package generation

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopwords are ignored when matching question terms against the context.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true, "were": true,
	"what": true, "which": true, "who": true, "whom": true, "when": true, "where": true,
	"why": true, "how": true, "does": true, "did": true, "this": true, "that": true,
	"with": true, "from": true, "into": true, "about": true, "there": true, "their": true,
	"have": true, "has": true, "had": true, "can": true, "could": true, "would": true,
	"should": true, "will": true, "document": true, "tell": true, "you": true, "your": true,
}

// Extractive answers by quoting the context sentence that shares the most
// terms with the question. It is deterministic and needs no model, so it
// serves as the offline backend.
type Extractive struct{}

// NewExtractive returns the extractive generator.
func NewExtractive() *Extractive { return &Extractive{} }

// Generate reads the context and question out of prompt. It replies with
// RefusalSentinel when no context sentence mentions a question term.
func (x *Extractive) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	passages, question := splitPrompt(prompt)
	want := questionTerms(question)
	if len(want) == 0 {
		return RefusalSentinel, nil
	}

	best, bestScore := "", 0
	for _, sentence := range sentences(passages) {
		seen := make(map[string]bool)
		score := 0
		for _, term := range terms(sentence) {
			if want[term] && !seen[term] {
				seen[term] = true
				score++
			}
		}
		if score > bestScore {
			best, bestScore = sentence, score
		}
	}
	if bestScore == 0 {
		return RefusalSentinel, nil
	}
	return limitWords(best, maxTokens), nil
}

// ModelID identifies the backend.
func (x *Extractive) ModelID() string { return "extractive" }

// Close is a no-op.
func (x *Extractive) Close() error { return nil }

// splitPrompt returns the text after ContextLabel and the line after
// QuestionLabel. A prompt without labels is treated as all context.
func splitPrompt(prompt string) (passages, question string) {
	body := prompt
	if i := strings.Index(body, ContextLabel); i >= 0 {
		body = body[i+len(ContextLabel):]
	}
	q := strings.LastIndex(body, "\n"+QuestionLabel)
	if q < 0 {
		return strings.TrimSpace(body), ""
	}
	passages = body[:q]
	rest := body[q+1+len(QuestionLabel):]
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(passages), strings.TrimSpace(rest)
}

func sentences(text string) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		start := 0
		for i, r := range para {
			if r != '.' && r != '!' && r != '?' {
				continue
			}
			next := i + utf8.RuneLen(r)
			if next < len(para) && para[next] != ' ' {
				continue
			}
			if s := strings.TrimSpace(para[start:next]); s != "" {
				out = append(out, s)
			}
			start = next
		}
		if s := strings.TrimSpace(para[start:]); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func terms(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func questionTerms(question string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range terms(question) {
		if utf8.RuneCountInString(t) < 3 || stopwords[t] {
			continue
		}
		out[t] = true
	}
	return out
}

func limitWords(s string, n int) string {
	if n <= 0 {
		return s
	}
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ")
}
