package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel returns one labelled section per non-empty sheet. Rows are
// tab-separated. Sheets whose rows cannot be read are skipped.
func (e *Extractor) extractExcel(content []byte) (*Document, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	doc := &Document{Format: "xlsx", Total: len(sheets)}
	for i, sheet := range sheets {
		n := i + 1
		label := "Sheet " + sheet
		rows, err := f.GetRows(sheet)
		if err != nil {
			e.skip(doc, n, label, fmt.Errorf("get rows for sheet %q: %w", sheet, err))
			continue
		}
		var buf strings.Builder
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t")
			if line == "" {
				continue
			}
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
		text := strings.TrimSpace(buf.String())
		if text == "" {
			e.skip(doc, n, label, nil)
			continue
		}
		doc.Sections = append(doc.Sections, Section{Number: n, Label: label, Text: text})
	}
	return doc, nil
}
