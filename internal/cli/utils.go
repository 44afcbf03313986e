// Package cli renders answers, load results and status for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/docent/internal/models"
	"github.com/hyperjump/docent/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// Defaults for the chat view's source list.
const (
	ChatSources       = 2
	ChatPreviewLength = 150
)

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (text, json)", s)
}

// WriteAnswer writes an answer to w. In text format at most maxSources
// sources are listed, each previewed to previewChars characters.
func WriteAnswer(w io.Writer, ans *models.Answer, format OutputFormat, maxSources, previewChars int) error {
	if format == OutputJSON {
		return writeJSON(w, ans)
	}
	fmt.Fprintf(w, "\n%s\n", ans.Answer)
	if ans.Error != "" {
		fmt.Fprintf(w, "(%s)\n", ans.Error)
		return nil
	}
	sources := ans.Sources
	if maxSources > 0 && len(sources) > maxSources {
		sources = sources[:maxSources]
	}
	if len(sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for i, src := range sources {
			fmt.Fprintf(w, "  [%d] chunk %d (score %.3f)\n", i+1, src.ChunkID, src.Score)
			fmt.Fprintf(w, "      %s\n", utils.Truncate(oneLine(src.Text), previewChars))
		}
	}
	fmt.Fprintln(w)
	return nil
}

// WriteLoadStats writes the result of loading a document.
func WriteLoadStats(w io.Writer, stats *models.LoadStats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "Loaded %s\n", stats.DocumentPath)
	fmt.Fprintf(w, "  pages:            %d", stats.Pages)
	if len(stats.SkippedPages) > 0 {
		fmt.Fprintf(w, " (%d skipped)", len(stats.SkippedPages))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  characters:       %d raw, %d cleaned\n", stats.RawChars, stats.CleanedChars)
	fmt.Fprintf(w, "  chunks:           %d (avg %.1f words)\n", stats.Chunks, stats.AvgChunkWords)
	fmt.Fprintf(w, "  took:             %s\n", stats.Duration.Round(1e6))
	return nil
}

// WriteInfo writes session status.
func WriteInfo(w io.Writer, info *models.SystemInfo, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, info)
	}
	fmt.Fprintf(w, "Session:          %s\n", info.SessionID)
	fmt.Fprintf(w, "Ready:            %t\n", info.Ready)
	if info.CurrentDocument != "" {
		fmt.Fprintf(w, "Document:         %s\n", info.CurrentDocument)
	}
	fmt.Fprintf(w, "Embedding model:  %s\n", info.EmbeddingModel)
	loaded := "not loaded"
	if info.GeneratorLoaded {
		loaded = "loaded"
	}
	fmt.Fprintf(w, "Generation model: %s (%s)\n", info.GenerationModel, loaded)
	if info.Index != nil {
		fmt.Fprintf(w, "Index:            %d vectors, dim %d, %s\n",
			info.Index.VectorCount, info.Index.Dimension, info.Index.IndexType)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
