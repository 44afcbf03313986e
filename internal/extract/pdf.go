package extract

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pageStrategy turns one PDF page into text.
type pageStrategy func(p pdf.Page) (string, error)

// plainTextStrategy is the primary strategy: the library's own text layout.
func plainTextStrategy(p pdf.Page) (string, error) {
	return p.GetPlainText(nil)
}

// contentRunsStrategy is the fallback: concatenate raw text runs from the
// page content stream, breaking lines when the baseline moves.
func contentRunsStrategy(p pdf.Page) (string, error) {
	var b strings.Builder
	runs := p.Content().Text
	for i, t := range runs {
		if i > 0 && t.Y != runs[i-1].Y {
			b.WriteByte('\n')
		}
		b.WriteString(t.S)
	}
	return b.String(), nil
}

// safePage runs fn, converting a panic inside the PDF library into an error.
func safePage(fn pageStrategy, p pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf: %v", r)
		}
	}()
	return fn(p)
}

func (e *Extractor) extractPDF(content []byte) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, &ExtractionError{Err: fmt.Errorf("open PDF: %v", r)}
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, &ExtractionError{Err: fmt.Errorf("open PDF: %w", err)}
	}
	doc = &Document{Format: "pdf", Total: r.NumPage()}
	for i := 1; i <= doc.Total; i++ {
		label := "Page " + strconv.Itoa(i)
		page := r.Page(i)
		if page.V.IsNull() {
			e.skip(doc, i, label, nil)
			continue
		}
		text, perr := safePage(plainTextStrategy, page)
		if perr != nil || strings.TrimSpace(text) == "" {
			fallback, ferr := safePage(contentRunsStrategy, page)
			if ferr == nil {
				text, perr = fallback, nil
			} else if perr == nil {
				perr = ferr
			}
		}
		if perr != nil {
			e.skip(doc, i, label, &ExtractionError{Page: i, Err: perr})
			continue
		}
		if strings.TrimSpace(text) == "" {
			e.skip(doc, i, label, nil)
			continue
		}
		doc.Sections = append(doc.Sections, Section{Number: i, Label: label, Text: text})
	}
	return doc, nil
}
