package indexer

import (
	"strings"
	"unicode/utf8"
)

// minLineRunes is the shortest line kept by Clean.
const minLineRunes = 3

// Clean normalizes extracted text: newline runs collapse to one newline,
// space and tab runs to one space, control characters other than newline are
// dropped, every line is trimmed, and lines shorter than three characters
// are removed.
func Clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	prevNewline, prevBlank := false, false
	for _, r := range text {
		switch {
		case r == '\n':
			if !prevNewline {
				b.WriteByte('\n')
			}
			prevNewline, prevBlank = true, false
			continue
		case r == ' ' || r == '\t':
			if !prevBlank {
				b.WriteByte(' ')
			}
			prevBlank = true
			continue
		case isControl(r):
			continue
		}
		b.WriteRune(r)
		prevNewline, prevBlank = false, false
	}

	lines := strings.Split(b.String(), "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) >= minLineRunes {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// isControl matches C0 controls except newline, DEL, and C1 controls.
// Carriage returns are dropped so CRLF input collapses like LF.
func isControl(r rune) bool {
	return r != '\n' && (r < 0x20 || (r >= 0x7f && r <= 0x9f))
}
