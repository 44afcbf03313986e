package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain returns content as a single section. Invalid UTF-8 sequences
// are replaced with the replacement character.
func extractPlain(content []byte) *Document {
	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\ufffd")
	}
	doc := &Document{Format: "text", Total: 1}
	if strings.TrimSpace(text) == "" {
		doc.Skipped = []int{1}
		return doc
	}
	doc.Sections = []Section{{Number: 1, Text: text}}
	return doc
}
