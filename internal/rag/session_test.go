package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/docent/internal/config"
	"github.com/hyperjump/docent/internal/embedding"
	"github.com/hyperjump/docent/internal/extract"
	"github.com/hyperjump/docent/internal/generation"
	"github.com/hyperjump/docent/internal/indexer"
	"github.com/hyperjump/docent/internal/models"
	"github.com/hyperjump/docent/internal/vector"
)

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func (f *fakeGenerator) ModelID() string { return "fake-generator" }
func (f *fakeGenerator) Close() error    { return nil }

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// countingLoader returns gen after failing the first failures calls.
type countingLoader struct {
	mu       sync.Mutex
	count    int
	failures int
	gen      generation.Generator
}

func (c *countingLoader) load(context.Context) (generation.Generator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	if c.count <= c.failures {
		return nil, errors.New("model weights not found")
	}
	return c.gen, nil
}

func (c *countingLoader) loads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

const handbook = `Employee Handbook

The office opens at nine in the morning and closes at six in the evening.
Visitors must sign in at the front desk and wear a badge at all times.

The warranty covers manufacturing defects for two years from the delivery date.
Damage caused by misuse or accidents is not covered by the warranty.

Expense reports must be submitted within thirty days of the purchase.
Receipts are required for every expense above twenty five dollars.`

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestSession(t *testing.T, loader generation.Loader, opts ...Option) *Session {
	t.Helper()
	chunker, err := indexer.NewChunker(20, 5)
	require.NoError(t, err)
	return NewSession(indexer.NewPipeline(nil, chunker), embedding.NewHashEmbedder(256), loader, opts...)
}

func TestGenerateAnswer_NotReady(t *testing.T) {
	loader := &countingLoader{gen: &fakeGenerator{reply: "x"}}
	s := newTestSession(t, loader.load)

	ans := s.GenerateAnswer(context.Background(), "What is covered?")
	assert.Equal(t, models.ErrNoDocumentLoaded, ans.Error)
	assert.Equal(t, NoDocumentMessage, ans.Answer)
	assert.NotNil(t, ans.Sources)
	assert.Empty(t, ans.Sources)
	assert.Zero(t, loader.loads(), "no backend load before a document is ready")
	assert.False(t, ans.OK())
}

func TestLoadDocumentAndAnswer(t *testing.T) {
	gen := &fakeGenerator{reply: "  Two years.  \n"}
	loader := &countingLoader{gen: gen}
	s := newTestSession(t, loader.load)
	ctx := context.Background()

	path := writeDoc(t, "handbook.txt", handbook)
	stats, err := s.LoadDocument(ctx, path)
	require.NoError(t, err)
	assert.True(t, s.IsReady())
	assert.Equal(t, path, s.DocumentPath())
	assert.Equal(t, models.StatusSuccess, stats.Status)
	assert.Greater(t, stats.Chunks, 1)
	assert.True(t, strings.HasPrefix(stats.DocumentID, "doc:"))

	question := "How long does the warranty cover manufacturing defects?"
	ans := s.GenerateAnswer(ctx, question)
	require.True(t, ans.OK(), ans.Answer)
	assert.Equal(t, "Two years.", ans.Answer)
	assert.Equal(t, models.StatusSuccess, ans.Status)
	assert.Equal(t, question, ans.Question)
	require.NotEmpty(t, ans.Sources)
	assert.LessOrEqual(t, len(ans.Sources), defaultMaxContextChunks)
	assert.Contains(t, ans.Sources[0].Text, "warranty")
	for i := 1; i < len(ans.Sources); i++ {
		assert.GreaterOrEqual(t, ans.Sources[i-1].Score, ans.Sources[i].Score)
	}
	for _, src := range ans.Sources {
		assert.InDelta(t, math.Round(src.Score*1000), src.Score*1000, 1e-6, "score rounded to 3 decimals")
	}

	require.Equal(t, 1, gen.calls())
	prompt := gen.prompts[0]
	assert.True(t, strings.HasPrefix(prompt, generation.ContextLabel))
	assert.Contains(t, prompt, generation.QuestionLabel+" "+question)
	assert.Contains(t, prompt, RefusalSentinel)
	assert.True(t, strings.HasSuffix(prompt, generation.AnswerLabel))
}

func TestGenerator_LoadedOnce(t *testing.T) {
	loader := &countingLoader{gen: &fakeGenerator{reply: "ok"}}
	s := newTestSession(t, loader.load)
	ctx := context.Background()
	_, err := s.LoadDocument(ctx, writeDoc(t, "h.txt", handbook))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ans := s.GenerateAnswer(ctx, "When does the office open?")
			assert.True(t, ans.OK())
		}()
	}
	wg.Wait()
	require.NoError(t, s.EnsureGenerator(ctx))
	assert.Equal(t, 1, loader.loads())
	assert.True(t, s.Info().GeneratorLoaded)
}

func TestGenerator_LoadFailureKeepsReady(t *testing.T) {
	loader := &countingLoader{failures: 1, gen: &fakeGenerator{reply: "nine"}}
	s := newTestSession(t, loader.load, WithGenerationModel("flan-t5"))
	ctx := context.Background()
	_, err := s.LoadDocument(ctx, writeDoc(t, "h.txt", handbook))
	require.NoError(t, err)

	ans := s.GenerateAnswer(ctx, "When does the office open?")
	assert.Equal(t, models.ErrGeneration, ans.Error)
	assert.True(t, strings.HasPrefix(ans.Answer, GenerationErrorPrefix))
	assert.Contains(t, ans.Answer, "model weights not found")
	assert.Empty(t, ans.Sources)
	assert.True(t, s.IsReady(), "load failure must not reset readiness")

	require.NoError(t, s.EnsureGenerator(ctx), "second attempt succeeds")

	ans = s.GenerateAnswer(ctx, "When does the office open?")
	assert.True(t, ans.OK())
	assert.Equal(t, 2, loader.loads())
}

func TestEnsureGenerator_BackendError(t *testing.T) {
	loader := &countingLoader{failures: 10}
	s := newTestSession(t, loader.load, WithGenerationModel("flan-t5"))
	err := s.EnsureGenerator(context.Background())
	var be *generation.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "load", be.Op)
	assert.Equal(t, "flan-t5", be.Model)

	s = newTestSession(t, nil)
	require.ErrorAs(t, s.EnsureGenerator(context.Background()), &be)
}

func TestGenerateAnswer_GenerationFailure(t *testing.T) {
	gen := &fakeGenerator{err: &generation.BackendError{Model: "fake", Op: "generate", Err: errors.New("out of memory")}}
	s := newTestSession(t, (&countingLoader{gen: gen}).load)
	ctx := context.Background()
	_, err := s.LoadDocument(ctx, writeDoc(t, "h.txt", handbook))
	require.NoError(t, err)

	ans := s.GenerateAnswer(ctx, "What about receipts?")
	assert.Equal(t, models.ErrGeneration, ans.Error)
	assert.Contains(t, ans.Answer, "out of memory")
	assert.Empty(t, ans.Sources)
}

func TestEmptyDocument(t *testing.T) {
	gen := &fakeGenerator{reply: "never"}
	s := newTestSession(t, (&countingLoader{gen: gen}).load)
	ctx := context.Background()

	stats, err := s.LoadDocument(ctx, writeDoc(t, "blank.txt", "   \n\n  \t "))
	require.NoError(t, err)
	assert.Zero(t, stats.Chunks)
	assert.True(t, s.IsReady())

	ans := s.GenerateAnswer(ctx, "anything")
	assert.Equal(t, models.ErrNoRelevantContent, ans.Error)
	assert.Equal(t, NoRelevantContentMessage, ans.Answer)
	assert.Empty(t, ans.Sources)
	assert.Zero(t, gen.calls(), "generation must not run without context")
}

func TestLoadDocument_FailureLeavesNotReady(t *testing.T) {
	loader := &countingLoader{gen: &fakeGenerator{reply: "x"}}
	s := newTestSession(t, loader.load)
	ctx := context.Background()

	_, err := s.LoadDocument(ctx, filepath.Join(t.TempDir(), "missing.pdf"))
	var ee *extract.ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.False(t, s.IsReady())
	assert.Empty(t, s.DocumentPath())

	ans := s.GenerateAnswer(ctx, "anything")
	assert.Equal(t, models.ErrNoDocumentLoaded, ans.Error)
}

func TestLoadDocument_FailureKeepsPreviousDocument(t *testing.T) {
	s := newTestSession(t, (&countingLoader{gen: &fakeGenerator{reply: "ok"}}).load)
	ctx := context.Background()
	first := writeDoc(t, "first.txt", handbook)
	_, err := s.LoadDocument(ctx, first)
	require.NoError(t, err)

	corrupt := writeDoc(t, "broken.pdf", "%PDF-1.4 this is not really a pdf")
	_, err = s.LoadDocument(ctx, corrupt)
	require.Error(t, err)

	assert.True(t, s.IsReady())
	assert.Equal(t, first, s.DocumentPath())
	assert.True(t, s.GenerateAnswer(ctx, "When does the office open?").OK())
}

func TestLoadDocument_ReplacesIndexDuringQuestion(t *testing.T) {
	gen := &fakeGenerator{reply: "Nine."}
	entered := make(chan struct{})
	unblock := make(chan struct{})
	loader := func(context.Context) (generation.Generator, error) {
		close(entered)
		<-unblock
		return gen, nil
	}
	s := newTestSession(t, loader)
	ctx := context.Background()
	_, err := s.LoadDocument(ctx, writeDoc(t, "first.txt", handbook))
	require.NoError(t, err)
	old := s.index.idx

	answers := make(chan *models.Answer, 1)
	go func() { answers <- s.GenerateAnswer(ctx, "When does the office open?") }()
	<-entered

	second := writeDoc(t, "second.txt", "The cafeteria serves lunch from noon until two every weekday.")
	_, err = s.LoadDocument(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, second, s.DocumentPath())
	close(unblock)

	ans := <-answers
	require.True(t, ans.OK(), ans.Answer)
	assert.Equal(t, "Nine.", ans.Answer)
	require.NotEmpty(t, ans.Sources)
	for _, src := range ans.Sources {
		assert.NotContains(t, src.Text, "cafeteria", "in-flight question keeps the index it started with")
	}

	_, err = old.Search(ctx, "office", 1)
	assert.ErrorIs(t, err, vector.ErrNotBuilt, "replaced index is closed once its last reader finishes")

	ans = s.GenerateAnswer(ctx, "When is lunch served?")
	require.True(t, ans.OK(), ans.Answer)
	require.Len(t, ans.Sources, 1)
	assert.Contains(t, ans.Sources[0].Text, "cafeteria")
}

func TestLoadDocument_ChunkWindows(t *testing.T) {
	words := make([]string, 1200)
	for i := range words {
		words[i] = fmt.Sprintf("token%04d", i)
	}
	chunker, err := indexer.NewChunker(500, 50)
	require.NoError(t, err)
	s := NewSession(indexer.NewPipeline(nil, chunker), embedding.NewHashEmbedder(64), nil)

	stats, err := s.LoadDocument(context.Background(), writeDoc(t, "long.txt", strings.Join(words, " ")))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 3, s.Info().Index.ChunkCount)

	results, err := s.index.idx.Search(context.Background(), "token0000", 3)
	require.NoError(t, err)
	starts := map[int]int{}
	for _, r := range results {
		starts[r.Chunk.ID] = r.Chunk.StartWord
	}
	assert.Equal(t, map[int]int{0: 0, 1: 450, 2: 900}, starts)
}

func TestSourcesTruncated(t *testing.T) {
	long := strings.Repeat("warranty coverage details ", 30)
	s := newTestSession(t, (&countingLoader{gen: &fakeGenerator{reply: "ok"}}).load, WithPreviewChars(50))
	chunker, _ := indexer.NewChunker(500, 50)
	s.pipeline = indexer.NewPipeline(nil, chunker)
	ctx := context.Background()
	_, err := s.LoadDocument(ctx, writeDoc(t, "long.txt", long))
	require.NoError(t, err)

	ans := s.GenerateAnswer(ctx, "warranty coverage")
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, 53, len([]rune(ans.Sources[0].Text)))
	assert.True(t, strings.HasSuffix(ans.Sources[0].Text, "..."))
}

func TestSaveAndRestoreIndex(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{reply: "ok"}
	s := newTestSession(t, (&countingLoader{gen: gen}).load)
	docPath := writeDoc(t, "h.txt", handbook)
	_, err := s.LoadDocument(ctx, docPath)
	require.NoError(t, err)

	indexPath := filepath.Join(t.TempDir(), "indices", "handbook")
	require.NoError(t, s.SaveIndex(ctx, indexPath))

	restored := newTestSession(t, (&countingLoader{gen: gen}).load)
	require.NoError(t, restored.RestoreIndex(ctx, indexPath))
	assert.True(t, restored.IsReady())
	assert.Equal(t, docPath, restored.DocumentPath())

	const q = "Which expenses need receipts?"
	assert.Equal(t, s.GenerateAnswer(ctx, q).Sources, restored.GenerateAnswer(ctx, q).Sources)
	assert.Equal(t, *s.Info().Index, *restored.Info().Index)
}

func TestSaveIndex_NotReady(t *testing.T) {
	s := newTestSession(t, nil)
	assert.ErrorIs(t, s.SaveIndex(context.Background(), filepath.Join(t.TempDir(), "x")), vector.ErrNotBuilt)
}

func TestRestoreIndex_IncompatibleModel(t *testing.T) {
	ctx := context.Background()
	chunker, _ := indexer.NewChunker(20, 5)
	a := NewSession(indexer.NewPipeline(nil, chunker), embedding.NewHashEmbedder(128), nil)
	_, err := a.LoadDocument(ctx, writeDoc(t, "h.txt", handbook))
	require.NoError(t, err)
	indexPath := filepath.Join(t.TempDir(), "idx")
	require.NoError(t, a.SaveIndex(ctx, indexPath))

	b := NewSession(indexer.NewPipeline(nil, chunker), embedding.NewHashEmbedder(64), nil)
	err = b.RestoreIndex(ctx, indexPath)
	var incompatible *vector.IncompatibleIndexError
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, "hash-fnv1a-128", incompatible.StoredModel)
	assert.Equal(t, "hash-fnv1a-64", incompatible.LiveModel)
	assert.False(t, b.IsReady())
}

func TestInfo(t *testing.T) {
	s := newTestSession(t, (&countingLoader{gen: &fakeGenerator{reply: "ok"}}).load, WithGenerationModel("configured-model"))
	info := s.Info()
	assert.Equal(t, s.ID(), info.SessionID)
	assert.Equal(t, "hash-fnv1a-256", info.EmbeddingModel)
	assert.Equal(t, "configured-model", info.GenerationModel)
	assert.False(t, info.Ready)
	assert.Nil(t, info.Index)

	_, err := s.LoadDocument(context.Background(), writeDoc(t, "h.txt", handbook))
	require.NoError(t, err)
	require.NoError(t, s.EnsureGenerator(context.Background()))
	info = s.Info()
	assert.True(t, info.Ready)
	assert.Equal(t, "fake-generator", info.GenerationModel)
	require.NotNil(t, info.Index)
	assert.True(t, info.Index.Built)
	assert.Equal(t, info.Index.VectorCount, info.Index.ChunkCount)
	assert.NoError(t, s.Close())
	assert.False(t, s.IsReady())
}

func TestExtractiveBackendEndToEnd(t *testing.T) {
	ctx := context.Background()
	loader := generation.NewLoader(config.GenerationConfig{Provider: config.ProviderExtractive}, nil)
	s := newTestSession(t, loader)
	_, err := s.LoadDocument(ctx, writeDoc(t, "h.txt", handbook))
	require.NoError(t, err)

	ans := s.GenerateAnswer(ctx, "How many days to submit expense reports?")
	require.True(t, ans.OK())
	assert.NotEmpty(t, ans.Answer)
	assert.Contains(t, ans.Answer, "thirty days")

	ans = s.GenerateAnswer(ctx, "Quantum chromodynamics lattice?")
	require.True(t, ans.OK())
	assert.Equal(t, RefusalSentinel, ans.Answer)
}
