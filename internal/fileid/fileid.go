// Package fileid derives stable identifiers from document paths.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const prefix = "doc:"

func digest(absolutePath string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(absolutePath)))
	return hex.EncodeToString(hash[:])
}

// DocumentID returns a stable ID for the document at the given absolute path.
// The same path always yields the same ID.
func DocumentID(absolutePath string) string {
	return prefix + digest(absolutePath)[:16]
}

// IndexName returns a file-system friendly base name for the persisted index
// of the document at absolutePath, e.g. "report-1a2b3c4d" for /x/report.pdf.
func IndexName(absolutePath string) string {
	base := filepath.Base(absolutePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, stem)
	if stem == "" {
		stem = "document"
	}
	return stem + "-" + digest(absolutePath)[:8]
}
