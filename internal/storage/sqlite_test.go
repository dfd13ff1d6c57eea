package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func testDocument(id string, content string) (*types.Document, []*types.Chunk) {
	doc := &types.Document{
		ID:         id,
		Title:      "Title " + id,
		Content:    content,
		SourcePath: "/docs/" + id + ".md",
		Metadata: types.DocumentMetadata{
			FileType:     "md",
			Author:       "alice",
			CreatedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			LastModified: time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
			Size:         int64(len(content)),
			Extra:        map[string]string{"lang": "en"},
		},
	}
	doc.ComputeContentHash()

	half := len(content) / 2
	chunks := []*types.Chunk{
		{ID: types.ChunkID(id, 0), DocumentID: id, ChunkIndex: 0, Content: content[:half], StartIndex: 0, EndIndex: half, Embedding: []float32{1, 0, 0}},
		{ID: types.ChunkID(id, 1), DocumentID: id, ChunkIndex: 1, Content: content[half:], StartIndex: half, EndIndex: len(content), Metadata: map[string]string{"k": "v"}},
	}
	for _, c := range chunks {
		c.ComputeContentHash()
		doc.ChunkIDs = append(doc.ChunkIDs, c.ID)
	}
	return doc, chunks
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	assert.NotNil(t, storage.db)
	assert.Equal(t, "sqlite::memory:", storage.Location())
}

func TestSaveAndGetDocument(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	doc, chunks := testDocument("doc1", "First half. Second half.")
	require.NoError(t, storage.SaveDocument(ctx, doc, chunks))

	got, err := storage.GetDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.Content, got.Content)
	assert.Equal(t, doc.SourcePath, got.SourcePath)
	assert.Equal(t, doc.ContentHash, got.ContentHash)
	assert.Equal(t, "md", got.Metadata.FileType)
	assert.Equal(t, "alice", got.Metadata.Author)
	assert.True(t, doc.Metadata.LastModified.Equal(got.Metadata.LastModified))
	assert.True(t, doc.Metadata.CreatedAt.Equal(got.Metadata.CreatedAt))
	assert.Equal(t, doc.Metadata.Size, got.Metadata.Size)
	assert.Equal(t, map[string]string{"lang": "en"}, got.Metadata.Extra)
	assert.Equal(t, []string{"doc1#0", "doc1#1"}, got.ChunkIDs)

	loaded, err := storage.ListChunks(ctx, "doc1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, chunks[0].Content, loaded[0].Content)
	assert.Equal(t, chunks[0].ContentHash, loaded[0].ContentHash)
	assert.Equal(t, []float32{1, 0, 0}, loaded[0].Embedding)
	assert.Nil(t, loaded[1].Embedding)
	assert.Equal(t, map[string]string{"k": "v"}, loaded[1].Metadata)
	for _, c := range loaded {
		assert.NoError(t, c.ValidateAgainst(got))
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	storage := setupTestDB(t)

	_, err := storage.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveDocument_ReplacesChunks(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	doc, chunks := testDocument("doc1", "Original content here.")
	require.NoError(t, storage.SaveDocument(ctx, doc, chunks))

	doc.Content = "Replacement."
	doc.Title = "Updated"
	only := &types.Chunk{ID: "doc1#0", DocumentID: "doc1", Content: "Replacement.", StartIndex: 0, EndIndex: 12}
	require.NoError(t, storage.SaveDocument(ctx, doc, []*types.Chunk{only}))

	got, err := storage.GetDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "Updated", got.Title)
	assert.Equal(t, []string{"doc1#0"}, got.ChunkIDs)

	loaded, err := storage.ListChunks(ctx, "doc1")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "Replacement.", loaded[0].Content)
}

func TestSaveDocument_RollsBackOnFailure(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	doc, chunks := testDocument("doc1", "Some content to split.")
	// Duplicate chunk index violates UNIQUE(document_id, chunk_index)
	chunks[1].ChunkIndex = 0

	err := storage.SaveDocument(ctx, doc, chunks)
	require.Error(t, err)

	_, err = storage.GetDocument(ctx, "doc1")
	assert.ErrorIs(t, err, ErrNotFound, "document insert should be rolled back")
}

func TestDeleteDocument(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	doc, chunks := testDocument("doc1", "Delete me please.")
	require.NoError(t, storage.SaveDocument(ctx, doc, chunks))

	require.NoError(t, storage.DeleteDocument(ctx, "doc1"))
	assert.ErrorIs(t, storage.DeleteDocument(ctx, "doc1"), ErrNotFound)

	loaded, err := storage.ListChunks(ctx, "doc1")
	require.NoError(t, err)
	assert.Empty(t, loaded, "chunks should cascade with their document")
}

func TestListDocuments(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		doc, chunks := testDocument(fmt.Sprintf("doc%d", i), "Content for listing.")
		require.NoError(t, storage.SaveDocument(ctx, doc, chunks))
	}

	docs, err := storage.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "doc0", docs[0].ID)
	assert.Equal(t, []string{"doc2#0", "doc2#1"}, docs[2].ChunkIDs)

	require.NoError(t, storage.ClearDocuments(ctx))
	docs, err = storage.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestVectorIndex(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.Insert(ctx, "a", []float32{1, 0, 0}, map[string]string{"doc": "1"}))
	require.NoError(t, storage.Insert(ctx, "b", []float32{0.8, 0.6, 0}, nil))
	require.NoError(t, storage.Insert(ctx, "c", []float32{0, 1, 0}, nil))
	require.NoError(t, storage.Insert(ctx, "short", []float32{1, 0}, nil))

	t.Run("ranked by similarity", func(t *testing.T) {
		matches, err := storage.Query(ctx, []float32{1, 0, 0}, 10, nil)
		require.NoError(t, err)
		require.Len(t, matches, 3, "vectors of a different dimension are skipped")
		assert.Equal(t, "a", matches[0].ID)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
		assert.Equal(t, map[string]string{"doc": "1"}, matches[0].Metadata)
		assert.Equal(t, "b", matches[1].ID)
		assert.InDelta(t, 0.8, matches[1].Score, 1e-6)
		assert.Equal(t, "c", matches[2].ID)
	})

	t.Run("limit", func(t *testing.T) {
		matches, err := storage.Query(ctx, []float32{1, 0, 0}, 1, nil)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "a", matches[0].ID)
	})

	t.Run("candidates", func(t *testing.T) {
		matches, err := storage.Query(ctx, []float32{1, 0, 0}, 10, []string{"c", "b"})
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "b", matches[0].ID)

		matches, err = storage.Query(ctx, []float32{1, 0, 0}, 10, []string{})
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("upsert replaces", func(t *testing.T) {
		require.NoError(t, storage.Insert(ctx, "c", []float32{1, 0, 0}, nil))
		matches, err := storage.Query(ctx, []float32{1, 0, 0}, 2, nil)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		// Equal scores are ordered by ID
		assert.Equal(t, []string{"a", "c"}, []string{matches[0].ID, matches[1].ID})
	})

	t.Run("delete and clear", func(t *testing.T) {
		require.NoError(t, storage.Delete(ctx, "a", "b", "missing"))
		n, err := storage.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		require.NoError(t, storage.Clear(ctx))
		n, err = storage.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestVectorIndex_ManyCandidates(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	ids := make([]string, 0, maxInParams+10)
	for i := 0; i < maxInParams+10; i++ {
		id := fmt.Sprintf("v%04d", i)
		ids = append(ids, id)
		require.NoError(t, storage.Insert(ctx, id, []float32{float32(i + 1), 1}, nil))
	}

	matches, err := storage.Query(ctx, []float32{1, 0}, 3, ids)
	require.NoError(t, err)
	assert.Len(t, matches, 3)

	require.NoError(t, storage.Delete(ctx, ids...))
	n, err := storage.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	doc, chunks := testDocument("doc1", "Status check content.")
	require.NoError(t, storage.SaveDocument(ctx, doc, chunks))
	require.NoError(t, storage.Insert(ctx, "doc1#0", []float32{1, 0, 0}, nil))

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Documents)
	assert.Equal(t, 2, status.Chunks)
	assert.Equal(t, 1, status.Vectors)
	assert.Equal(t, CurrentSchemaVersion, status.SchemaVersion)
	assert.Equal(t, BuildMode, status.BuildMode)
	assert.False(t, status.LastIndexedAt.IsZero())
}
