package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sedar-analyst/internal/chunker"
	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/embedding/hashing"
	"sedar-analyst/internal/summarizer"
	"sedar-analyst/internal/vectorstore/memory"
)

const filing = "Management's Discussion and Analysis. " +
	"Revenue for fiscal 2023 was $49.2 billion, up 8% from the prior year. " +
	"Net income was $10.6 billion. Total liabilities were $1,800 million.\n\n" +
	"The bank operates in Canada and the United States. " +
	"Shareholders' equity was $600 million at year end."

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func newIngestor(t *testing.T, emb domain.Embedder, idx domain.VectorIndex, dataDir string) *Ingestor {
	t.Helper()
	ch, err := chunker.NewSentenceChunker(80, 10, nil)
	require.NoError(t, err)
	return NewIngestor(ch, emb, idx, summarizer.NewFrequencySummarizer(),
		IngestConfig{DataDir: dataDir, Concurrency: 3, LockTimeout: 300 * time.Millisecond, SummarySentences: 2}, nil, nil)
}

func TestLoadDocuments_ExpandsDirsAndFiltersExtensions(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.txt":         "alpha",
		"nested/b.md":   "beta",
		"c.pdf":         "binary",
		"nested/d.json": "{}",
	})

	docs, err := LoadDocuments([]string{dir})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, filepath.Join(dir, "a.txt"), docs[0].Path)
	assert.Equal(t, "beta", docs[1].Content)
	assert.NotEqual(t, docs[0].ID, docs[1].ID)

	again, err := LoadDocuments([]string{filepath.Join(dir, "*.txt"), filepath.Join(dir, "a.txt")})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, docs[0].ID, again[0].ID)
}

func TestLoadDocuments_Errors(t *testing.T) {
	_, err := LoadDocuments([]string{filepath.Join(t.TempDir(), "missing.txt")})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	dir := writeFiles(t, map[string]string{"x.pdf": "nope"})
	_, err = LoadDocuments([]string{dir})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIngest_BuildsSearchableCollection(t *testing.T) {
	docs := writeFiles(t, map[string]string{"td-2023.txt": filing})
	emb := hashing.NewEmbedder(128)
	idx := memory.NewStorage("sedar_filings")
	ing := newIngestor(t, emb, idx, t.TempDir())
	ctx := context.Background()

	report, err := ing.Ingest(ctx, []string{docs}, false)
	require.NoError(t, err)

	assert.Greater(t, report.Chunks, 1)
	assert.Equal(t, report.Chunks, report.Collection.Count)
	assert.Equal(t, "hashing-128", report.Collection.Model)
	assert.Equal(t, 128, report.Collection.Dimension)
	require.Len(t, report.Documents, 1)
	assert.Equal(t, report.Chunks, report.Documents[0].Chunks)
	assert.NotEmpty(t, report.Documents[0].Summary)

	q, err := emb.Embed(ctx, "What was net income?")
	require.NoError(t, err)
	hits, err := idx.Search(ctx, q, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Chunk.Text, "Net income")
	assert.Equal(t, filepath.Join(docs, "td-2023.txt"), hits[0].Chunk.SourceRef)
}

func TestIngest_ReingestAccumulatesUnlessReset(t *testing.T) {
	docs := writeFiles(t, map[string]string{"f.txt": filing})
	idx := memory.NewStorage("sedar_filings")
	ing := newIngestor(t, hashing.NewEmbedder(64), idx, t.TempDir())
	ctx := context.Background()

	first, err := ing.Ingest(ctx, []string{docs}, false)
	require.NoError(t, err)
	second, err := ing.Ingest(ctx, []string{docs}, false)
	require.NoError(t, err)
	assert.Equal(t, 2*first.Chunks, second.Collection.Count)

	reset, err := ing.Ingest(ctx, []string{docs}, true)
	require.NoError(t, err)
	assert.Equal(t, first.Chunks, reset.Collection.Count)
}

func TestIngest_ResetOnMissingCollection(t *testing.T) {
	docs := writeFiles(t, map[string]string{"f.txt": filing})
	ing := newIngestor(t, hashing.NewEmbedder(64), memory.NewStorage("fresh"), t.TempDir())

	report, err := ing.Ingest(context.Background(), []string{docs}, true)
	require.NoError(t, err)
	assert.Equal(t, report.Chunks, report.Collection.Count)
}

func TestIngest_FreshCollectionsGiveEquivalentResults(t *testing.T) {
	docs := writeFiles(t, map[string]string{"f.txt": filing})
	emb := hashing.NewEmbedder(64)
	ctx := context.Background()

	var results [2][]string
	for i := range results {
		idx := memory.NewStorage("run")
		_, err := newIngestor(t, emb, idx, t.TempDir()).Ingest(ctx, []string{docs}, false)
		require.NoError(t, err)
		q, err := emb.Embed(ctx, "total liabilities and equity")
		require.NoError(t, err)
		hits, err := idx.Search(ctx, q, 3)
		require.NoError(t, err)
		for _, h := range hits {
			results[i] = append(results[i], h.Chunk.ChunkID)
		}
	}
	assert.Equal(t, results[0], results[1])
}

type failingEmbedder struct{}

func (failingEmbedder) Name() string { return "failing" }

func (failingEmbedder) Embed(context.Context, string) ([]float64, error) {
	return nil, domain.External("embed", errors.New("quota exceeded"))
}

func TestIngest_EmbeddingFailureStoresNothing(t *testing.T) {
	docs := writeFiles(t, map[string]string{"f.txt": filing})
	idx := memory.NewStorage("sedar_filings")
	ing := newIngestor(t, failingEmbedder{}, idx, t.TempDir())

	_, err := ing.Ingest(context.Background(), []string{docs}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExternalService)

	_, err = idx.Info(context.Background())
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
}

func TestIngest_FailedResetKeepsExistingCollection(t *testing.T) {
	docs := writeFiles(t, map[string]string{"f.txt": filing})
	idx := memory.NewStorage("sedar_filings")
	ctx := context.Background()
	dataDir := t.TempDir()

	first, err := newIngestor(t, hashing.NewEmbedder(64), idx, dataDir).Ingest(ctx, []string{docs}, false)
	require.NoError(t, err)

	_, err = newIngestor(t, failingEmbedder{}, idx, dataDir).Ingest(ctx, []string{docs}, true)
	require.ErrorIs(t, err, domain.ErrExternalService)

	info, err := idx.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Chunks, info.Count)
	assert.Equal(t, "hashing-64", info.Model)
}

func TestIngest_EmptyDocuments(t *testing.T) {
	docs := writeFiles(t, map[string]string{"blank.txt": ""})
	ing := newIngestor(t, hashing.NewEmbedder(64), memory.NewStorage("c"), t.TempDir())

	_, err := ing.Ingest(context.Background(), []string{docs}, false)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIngest_LockHeldByAnotherRun(t *testing.T) {
	dataDir := t.TempDir()
	held := flock.New(filepath.Join(dataDir, lockFile))
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = held.Unlock() }()

	docs := writeFiles(t, map[string]string{"f.txt": filing})
	ing := newIngestor(t, hashing.NewEmbedder(64), memory.NewStorage("c"), dataDir)

	_, err = ing.Ingest(context.Background(), []string{docs}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another ingestion is in progress")
}
