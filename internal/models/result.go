package models

// Answer error tags. An Answer with an empty Error is a success.
const (
	ErrNoDocumentLoaded  = "no_document_loaded"
	ErrNoRelevantContent = "no_relevant_content"
	ErrGeneration        = "generation_error"

	StatusSuccess = "success"
)

// SearchResult is a retrieved chunk with its cosine similarity to the query.
type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Source is the attribution entry shown next to an answer.
type Source struct {
	ChunkID int     `json:"chunk_id"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
}

// Answer is the outcome of asking a question. Sources is never nil so it
// always encodes as a JSON array.
type Answer struct {
	Answer   string   `json:"answer"`
	Sources  []Source `json:"sources"`
	Question string   `json:"question,omitempty"`
	Status   string   `json:"status,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// OK reports whether the answer was generated from retrieved context.
func (a *Answer) OK() bool {
	return a.Error == ""
}

// IndexStats describes the current embedding index.
type IndexStats struct {
	VectorCount int    `json:"nb_vectors"`
	Dimension   int    `json:"dimension"`
	ChunkCount  int    `json:"nb_chunks"`
	ModelID     string `json:"model"`
	IndexType   string `json:"index_type"`
	Built       bool   `json:"built"`
}

// SystemInfo reports session readiness and the models in use.
type SystemInfo struct {
	SessionID       string      `json:"session_id"`
	EmbeddingModel  string      `json:"embedding_model"`
	GenerationModel string      `json:"generation_model"`
	GeneratorLoaded bool        `json:"generator_loaded"`
	Ready           bool        `json:"is_ready"`
	CurrentDocument string      `json:"current_pdf,omitempty"`
	Index           *IndexStats `json:"vector_store_stats,omitempty"`
}
