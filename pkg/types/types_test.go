package types

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_ValidateAgainst(t *testing.T) {
	doc := &Document{ID: "doc", Title: "Doc", Content: "Hello world. Goodbye."}
	chunk := &Chunk{ID: ChunkID("doc", 0), DocumentID: "doc", Content: "world.", StartIndex: 6, EndIndex: 12}

	require.NoError(t, chunk.Validate())
	require.NoError(t, chunk.ValidateAgainst(doc))

	tests := []struct {
		name   string
		mutate func(c *Chunk)
	}{
		{"empty content", func(c *Chunk) { c.Content = "" }},
		{"negative start", func(c *Chunk) { c.StartIndex = -1 }},
		{"inverted span", func(c *Chunk) { c.StartIndex, c.EndIndex = 12, 6 }},
		{"span length mismatch", func(c *Chunk) { c.EndIndex = 13 }},
		{"wrong document", func(c *Chunk) { c.DocumentID = "other" }},
		{"beyond document", func(c *Chunk) { c.StartIndex, c.EndIndex = 20, 26 }},
		{"content mismatch", func(c *Chunk) { c.Content = "World." }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := chunk.Clone()
			tt.mutate(c)
			assert.Error(t, c.ValidateAgainst(doc))
		})
	}
}

func TestChunk_Clone(t *testing.T) {
	original := &Chunk{ID: "a#0", Embedding: []float32{1, 2}, Metadata: map[string]string{"k": "v"}}
	clone := original.Clone()

	clone.Embedding[0] = 9
	clone.Metadata["k"] = "changed"

	assert.Equal(t, float32(1), original.Embedding[0])
	assert.Equal(t, "v", original.Metadata["k"])
	assert.Nil(t, (*Chunk)(nil).Clone())
	assert.True(t, original.HasEmbedding())
}

func TestDocument_ValidateAndClone(t *testing.T) {
	assert.Error(t, (&Document{Title: "x"}).Validate())
	assert.Error(t, (&Document{ID: "x"}).Validate())

	doc := &Document{
		ID:       "doc",
		Title:    "Doc",
		Content:  "body",
		ChunkIDs: []string{"doc#0"},
		Metadata: DocumentMetadata{Extra: map[string]string{"filename": "doc.md"}},
	}
	require.NoError(t, doc.Validate())
	doc.ComputeContentHash()
	assert.NotEqual(t, [32]byte{}, doc.ContentHash)

	clone := doc.Clone()
	clone.ChunkIDs[0] = "changed"
	clone.Metadata.Extra["filename"] = "changed"
	assert.Equal(t, "doc#0", doc.ChunkIDs[0])
	assert.Equal(t, "doc.md", doc.Metadata.Extra["filename"])
}

func TestDateRange_Contains(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	r := DateRange{From: jan, To: feb}
	assert.True(t, r.Contains(jan), "bounds are inclusive")
	assert.True(t, r.Contains(feb), "bounds are inclusive")
	assert.False(t, r.Contains(mar))
	assert.False(t, r.Contains(jan.Add(-time.Second)))

	assert.True(t, DateRange{From: feb}.Contains(mar), "zero upper bound is open")
	assert.True(t, DateRange{To: feb}.Contains(jan), "zero lower bound is open")
}

func TestSearchFilters_IsEmpty(t *testing.T) {
	assert.True(t, (*SearchFilters)(nil).IsEmpty())
	assert.True(t, (&SearchFilters{}).IsEmpty())
	assert.True(t, (&SearchFilters{DateRange: &DateRange{}}).IsEmpty())
	assert.False(t, (&SearchFilters{FileTypes: []string{"md"}}).IsEmpty())
	assert.False(t, (&SearchFilters{Authors: []string{"ada"}}).IsEmpty())
	assert.False(t, (&SearchFilters{DateRange: &DateRange{From: time.Now()}}).IsEmpty())
}

func TestSearchResult_ValidateAndClone(t *testing.T) {
	result := SearchResult{
		Chunk:    &Chunk{ID: "doc#0", Content: "text"},
		Document: &Document{ID: "doc", Title: "Doc"},
		Score:    0.5,
		Snippet:  "text.",
	}
	require.NoError(t, result.Validate())

	clone := result.Clone()
	clone.Chunk.Content = "changed"
	assert.Equal(t, "text", result.Chunk.Content)

	missingChunk := result
	missingChunk.Chunk = nil
	assert.ErrorIs(t, missingChunk.Validate(), ErrInvalidChunkID)

	missingDoc := result
	missingDoc.Document = nil
	assert.ErrorIs(t, missingDoc.Validate(), ErrMissingDocument)
}

func TestSearchError(t *testing.T) {
	cause := errors.New("provider unavailable")
	err := fmt.Errorf("wrapped: %w", &SearchError{
		Op:      "embed query",
		Store:   "sqlite",
		Query:   "cache",
		Elapsed: 12 * time.Millisecond,
		Err:     cause,
	})

	assert.ErrorIs(t, err, ErrSearchFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrInvalidQuery)

	var searchErr *SearchError
	require.ErrorAs(t, err, &searchErr)
	assert.Equal(t, "embed query", searchErr.Op)
	assert.Contains(t, err.Error(), `search "cache" failed during embed query on sqlite`)
}
