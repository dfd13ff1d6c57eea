package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docsearch-mcp/internal/chunker"
	"github.com/dshills/docsearch-mcp/internal/embedder"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

// mockEmbedder implements embedder.Embedder for testing
type mockEmbedder struct {
	dimension        int
	generateBatchErr error
	batchSizes       []int
	mu               sync.Mutex
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{dimension: 8}
}

func (m *mockEmbedder) vector() []float32 {
	vector := make([]float32, m.dimension)
	for i := range vector {
		vector[i] = 0.5
	}
	return vector
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	return &embedder.Embedding{Vector: m.vector(), Dimension: m.dimension, Provider: "mock", Model: "test-v1"}, nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generateBatchErr != nil {
		return nil, m.generateBatchErr
	}
	m.batchSizes = append(m.batchSizes, len(req.Texts))

	embeddings := make([]*embedder.Embedding, len(req.Texts))
	for i := range req.Texts {
		embeddings[i] = &embedder.Embedding{Vector: m.vector(), Dimension: m.dimension, Provider: "mock", Model: "test-v1"}
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: embeddings, Provider: "mock", Model: "test-v1"}, nil
}

func (m *mockEmbedder) Dimension() int   { return m.dimension }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "test-v1" }
func (m *mockEmbedder) Close() error     { return nil }

// memoryTarget is a DocumentIndex backed by maps
type memoryTarget struct {
	mu        sync.Mutex
	docs      map[string]*types.Document
	chunks    map[string][]*types.Chunk
	indexErr  error
	indexCall int
}

func newMemoryTarget() *memoryTarget {
	return &memoryTarget{docs: map[string]*types.Document{}, chunks: map[string][]*types.Chunk{}}
}

func (m *memoryTarget) IndexDocument(ctx context.Context, doc *types.Document, chunks []*types.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexCall++
	if m.indexErr != nil {
		return m.indexErr
	}
	for _, c := range chunks {
		if !c.HasEmbedding() {
			return types.ErrMissingEmbedding
		}
	}
	m.docs[doc.ID] = doc
	m.chunks[doc.ID] = chunks
	return nil
}

func (m *memoryTarget) RemoveDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return types.ErrDocumentNotFound
	}
	delete(m.docs, id)
	delete(m.chunks, id)
	return nil
}

func (m *memoryTarget) Document(id string) (*types.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	return doc, ok
}

func (m *memoryTarget) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func setupTestTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "readme.md"), "# Readme\n\nAuthor: Alice\n\nThe project indexes documents.")
	writeFile(t, filepath.Join(dir, "notes.txt"), "Plain notes about caching.")
	writeFile(t, filepath.Join(dir, "docs", "guide.MD"), "# Guide\n\nNested guide text.")
	writeFile(t, filepath.Join(dir, "main.go"), "package main")
	writeFile(t, filepath.Join(dir, ".hidden", "secret.md"), "# Hidden")
	writeFile(t, filepath.Join(dir, ".draft.md"), "# Draft")
	return dir
}

func TestDiscoverFiles(t *testing.T) {
	dir := setupTestTree(t)
	idx := New(newMemoryTarget(), newMockEmbedder(), nil)

	files, err := idx.DiscoverFiles(dir)
	require.NoError(t, err)

	rel := make([]string, len(files))
	for i, f := range files {
		r, err := filepath.Rel(dir, f)
		require.NoError(t, err)
		rel[i] = filepath.ToSlash(r)
	}
	assert.ElementsMatch(t, []string{"readme.md", "notes.txt", "docs/guide.MD"}, rel)
}

func TestIndexPath(t *testing.T) {
	dir := setupTestTree(t)
	target := newMemoryTarget()
	idx := New(target, newMockEmbedder(), nil)

	stats, err := idx.IndexPath(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Indexed)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, 6, stats.Chunks, "one chunk per paragraph")
	assert.Empty(t, stats.Errors)
	assert.Equal(t, 3, target.count())

	abs, _ := filepath.Abs(filepath.Join(dir, "readme.md"))
	doc, ok := target.Document(DocumentID(abs))
	require.True(t, ok)
	assert.Equal(t, "Readme", doc.Title)
	assert.Equal(t, "Alice", doc.Metadata.Author)
	assert.Equal(t, "md", doc.Metadata.FileType)
	for _, chunk := range target.chunks[doc.ID] {
		assert.NoError(t, chunk.ValidateAgainst(doc))
	}
}

func TestIndexPath_SingleFile(t *testing.T) {
	dir := setupTestTree(t)
	target := newMemoryTarget()
	idx := New(target, newMockEmbedder(), nil)

	stats, err := idx.IndexPath(context.Background(), filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)
}

func TestIndexPath_Missing(t *testing.T) {
	idx := New(newMemoryTarget(), newMockEmbedder(), nil)
	_, err := idx.IndexPath(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestIndexFiles_SkipsUnchanged(t *testing.T) {
	dir := setupTestTree(t)
	target := newMemoryTarget()
	idx := New(target, newMockEmbedder(), nil)
	ctx := context.Background()

	_, err := idx.IndexPath(ctx, dir)
	require.NoError(t, err)

	stats, err := idx.IndexPath(ctx, dir)
	require.NoError(t, err)
	assert.Zero(t, stats.Indexed)
	assert.Equal(t, 3, stats.Skipped)

	writeFile(t, filepath.Join(dir, "notes.txt"), "Updated notes.")
	stats, err = idx.IndexPath(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 2, stats.Skipped)
}

func TestIndexFiles_CollectsFailures(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	bad := filepath.Join(dir, "bad.txt")
	writeFile(t, good, "Valid text.")
	require.NoError(t, os.WriteFile(bad, []byte{0xff, 0xfe, 0xfd}, 0o644))
	missing := filepath.Join(dir, "missing.txt")

	target := newMemoryTarget()
	idx := New(target, newMockEmbedder(), nil)

	stats, err := idx.IndexFiles(context.Background(), []string{good, bad, missing})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 2, stats.Failed)
	assert.Len(t, stats.Errors, 2)
}

func TestIndexFiles_EmbeddingFailure(t *testing.T) {
	dir := setupTestTree(t)
	emb := newMockEmbedder()
	emb.generateBatchErr = errors.New("rate limited")
	target := newMemoryTarget()
	idx := New(target, emb, nil)

	stats, err := idx.IndexPath(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Failed)
	assert.Contains(t, stats.Errors[0], "rate limited")
	assert.Zero(t, target.indexCall)
}

func TestIndexFiles_BatchesEmbeddings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "long.txt")
	var content string
	for i := 0; i < 25; i++ {
		content += fmt.Sprintf("Paragraph number %d.\n\n", i)
	}
	writeFile(t, path, content)

	emb := newMockEmbedder()
	target := newMemoryTarget()
	cfg := DefaultConfig()
	cfg.BatchSize = 10
	cfg.Chunking = chunker.Options{ChunkSize: 100, ChunkOverlap: 10, PreserveParagraphs: true, PreserveSentences: true}
	idx := New(target, emb, &cfg)

	stats, err := idx.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 25, stats.Chunks)
	assert.Equal(t, []int{10, 10, 5}, emb.batchSizes)
}

func TestIndexFiles_Cancelled(t *testing.T) {
	dir := setupTestTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	idx := New(newMemoryTarget(), newMockEmbedder(), nil)
	_, err := idx.IndexPath(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRemovePath(t *testing.T) {
	dir := setupTestTree(t)
	target := newMemoryTarget()
	idx := New(target, newMockEmbedder(), nil)
	ctx := context.Background()

	_, err := idx.IndexPath(ctx, dir)
	require.NoError(t, err)

	require.NoError(t, idx.RemovePath(ctx, filepath.Join(dir, "notes.txt")))
	assert.Equal(t, 2, target.count())
	assert.ErrorIs(t, idx.RemovePath(ctx, filepath.Join(dir, "notes.txt")), types.ErrDocumentNotFound)
}

func TestLoadDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Release Notes.txt")
	writeFile(t, path, "\n\nAuthor: Bob\nVersion two ships today.\n")
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	doc, err := LoadDocument(path)
	require.NoError(t, err)

	abs, _ := filepath.Abs(path)
	assert.Equal(t, DocumentID(abs), doc.ID)
	assert.Equal(t, "Version two ships today.", doc.Title)
	assert.Equal(t, "Bob", doc.Metadata.Author)
	assert.Equal(t, "txt", doc.Metadata.FileType)
	assert.True(t, doc.Metadata.LastModified.Equal(mtime))
	assert.Equal(t, int64(len(doc.Content)), doc.Metadata.Size)
	assert.Equal(t, abs, doc.SourcePath)
	assert.NotEqual(t, [32]byte{}, doc.ContentHash)
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Heading", extractTitle("intro line\n## Heading\n", "/x/a.md"))
	assert.Equal(t, "first", extractTitle("\n  first  \nsecond", "/x/a.md"))
	assert.Equal(t, "a", extractTitle("   \n", "/x/a.md"))
}

func TestDocumentID_Stable(t *testing.T) {
	a := DocumentID("/docs/a.md")
	assert.Equal(t, a, DocumentID("/docs/a.md"))
	assert.NotEqual(t, a, DocumentID("/docs/b.md"))
	assert.Len(t, a, 36)
}

func TestIndexLock(t *testing.T) {
	var lock IndexLock
	require.True(t, lock.TryAcquire())
	assert.True(t, lock.Busy())
	assert.False(t, lock.TryAcquire())
	assert.ErrorIs(t, lock.Run(func() error { return nil }), ErrIndexingInProgress)

	lock.Release()
	called := false
	require.NoError(t, lock.Run(func() error {
		called = true
		assert.True(t, lock.Busy())
		return nil
	}))
	assert.True(t, called)
	assert.False(t, lock.Busy())
}
