package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const (
	docxDefaultBody     = "word/document.xml"
	contentTypesPath    = "[Content_Types].xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

type contentTypes struct {
	Overrides []struct {
		PartName    string `xml:"PartName,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Override"`
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// docxBodyPath returns the main document part named in [Content_Types].xml,
// or the conventional word/document.xml.
func docxBodyPath(zr *zip.Reader) string {
	for _, f := range zr.File {
		if f.Name != contentTypesPath {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			break
		}
		var ct contentTypes
		if xml.Unmarshal(data, &ct) != nil {
			break
		}
		for _, o := range ct.Overrides {
			if o.ContentType == docxMainContentType {
				return strings.TrimPrefix(o.PartName, "/")
			}
		}
	}
	return docxDefaultBody
}

// docxParagraphs streams the body XML and returns the text of each <w:p>,
// built from its <w:t> runs. Tabs and breaks become spaces.
func docxParagraphs(body []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var (
		paras []string
		cur   strings.Builder
		inT   bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inT = true
			case "tab", "br":
				cur.WriteByte(' ')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inT = false
			case "p":
				if p := strings.TrimSpace(cur.String()); p != "" {
					paras = append(paras, p)
				}
				cur.Reset()
			}
		case xml.CharData:
			if inT {
				cur.Write(t)
			}
		}
	}
	if p := strings.TrimSpace(cur.String()); p != "" {
		paras = append(paras, p)
	}
	return paras, nil
}

// extractDOCX returns the paragraphs of a .docx package as one section.
func extractDOCX(content []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open DOCX: not a zip: %w", err)
	}
	bodyPath := docxBodyPath(zr)
	var body []byte
	for _, f := range zr.File {
		if f.Name == bodyPath {
			if body, err = readZipFile(f); err != nil {
				return nil, fmt.Errorf("open DOCX: read %s: %w", f.Name, err)
			}
			break
		}
	}
	if body == nil {
		return nil, fmt.Errorf("open DOCX: %s not found", bodyPath)
	}
	paras, err := docxParagraphs(body)
	if err != nil {
		return nil, fmt.Errorf("parse DOCX: %w", err)
	}
	doc := &Document{Format: "docx", Total: 1}
	if len(paras) == 0 {
		doc.Skipped = []int{1}
		return doc, nil
	}
	doc.Sections = []Section{{Number: 1, Text: strings.Join(paras, "\n")}}
	return doc, nil
}
