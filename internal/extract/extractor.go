// Package extract provides page-level text extraction from document files.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrUnsupportedFormat is returned for extensions with no extraction strategy.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// ExtractionError reports a file that could not be read or parsed. Page is
// zero for file-level failures and the 1-based page number otherwise.
type ExtractionError struct {
	Path string
	Page int
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("extract %s page %d: %v", e.Path, e.Page, e.Err)
	}
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Section is one addressable unit of a document: a PDF page, a sheet, or the
// whole body of a flat format. Label is empty for flat formats.
type Section struct {
	Number int
	Label  string
	Text   string
}

// Document is the extracted text of one file.
type Document struct {
	Path     string
	Format   string
	Sections []Section
	// Total is the number of pages or sheets seen, including skipped ones.
	Total int
	// Skipped lists the numbers of sections that yielded no text.
	Skipped []int
}

// Text joins the sections, each labelled section preceded by a
// "--- Label ---" header line.
func (d *Document) Text() string {
	var b strings.Builder
	for _, s := range d.Sections {
		if s.Label != "" {
			b.WriteString("\n--- ")
			b.WriteString(s.Label)
			b.WriteString(" ---\n")
		} else if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

// Extractor extracts text from document files.
type Extractor struct {
	logger *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger used to report skipped pages.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Extract reads the file at path and returns its sections. Missing,
// unreadable, or corrupt files fail with *ExtractionError; individual pages
// that cannot be read are skipped and logged.
func (e *Extractor) Extract(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &ExtractionError{Path: path, Err: fmt.Errorf("not a regular file")}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: fmt.Errorf("read file: %w", err)}
	}
	doc, err := e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		var xe *ExtractionError
		if errors.As(err, &xe) {
			xe.Path = path
			return nil, xe
		}
		return nil, &ExtractionError{Path: path, Err: err}
	}
	doc.Path = path
	return doc, nil
}

// ExtractBytes extracts text from content based on the given extension,
// which includes the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (*Document, error) {
	switch ext {
	case ".pdf":
		return e.extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return e.extractExcel(content)
	case ".txt", ".md", ".rst", "":
		return extractPlain(content), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Supported reports whether ext has an extraction strategy.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".docx", ".xlsx", ".txt", ".md", ".rst":
		return true
	}
	return false
}

func (e *Extractor) skip(doc *Document, n int, label string, err error) {
	doc.Skipped = append(doc.Skipped, n)
	fields := []zap.Field{zap.String("format", doc.Format), zap.Int("section", n), zap.String("label", label)}
	if err != nil {
		fields = append(fields, zap.Error(err))
		e.logger.Warn("skipping unreadable section", fields...)
		return
	}
	e.logger.Warn("no text found in section", fields...)
}
