package types

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// Chunk represents a bounded, possibly overlapping section of a document used
// as the unit of retrieval
type Chunk struct {
	// Identification
	ID         string
	DocumentID string
	ChunkIndex int // 0-based position within the document

	// Content
	Content     string
	ContentHash [32]byte // SHA-256 hash for deduplication

	// Location (byte offsets into the parent document content)
	StartIndex int
	EndIndex   int

	// Embedding is attached by the embedder after chunking
	Embedding []float32

	Metadata map[string]string
}

// ValidateContent checks if the chunk content is valid
func (c *Chunk) ValidateContent() error {
	if c.Content == "" {
		return errors.New("chunk content cannot be empty")
	}

	if c.StartIndex < 0 {
		return errors.New("start index must not be negative")
	}

	if c.StartIndex >= c.EndIndex {
		return errors.New("start index must be before end index")
	}

	if c.EndIndex-c.StartIndex != len(c.Content) {
		return fmt.Errorf("offset span %d does not match content length %d", c.EndIndex-c.StartIndex, len(c.Content))
	}

	return nil
}

// ValidateAgainst verifies the chunk is a faithful substring of its document
func (c *Chunk) ValidateAgainst(doc *Document) error {
	if err := c.ValidateContent(); err != nil {
		return err
	}

	if c.DocumentID != doc.ID {
		return fmt.Errorf("chunk %s belongs to %s, not %s", c.ID, c.DocumentID, doc.ID)
	}

	if c.EndIndex > len(doc.Content) {
		return errors.New("end index exceeds document length")
	}

	if doc.Content[c.StartIndex:c.EndIndex] != c.Content {
		return errors.New("chunk content does not match document span")
	}

	return nil
}

// Validate performs comprehensive validation of the chunk
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return errors.New("chunk ID is required")
	}

	if c.DocumentID == "" {
		return errors.New("document ID is required")
	}

	if c.ChunkIndex < 0 {
		return errors.New("chunk index must not be negative")
	}

	return c.ValidateContent()
}

// HasEmbedding reports whether an embedding vector has been attached
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// ComputeContentHash computes the SHA-256 hash of the chunk content
func (c *Chunk) ComputeContentHash() {
	c.ContentHash = sha256.Sum256([]byte(c.Content))
}

// Clone returns a deep copy of the chunk
func (c *Chunk) Clone() *Chunk {
	if c == nil {
		return nil
	}
	dst := *c
	if c.Embedding != nil {
		dst.Embedding = make([]float32, len(c.Embedding))
		copy(dst.Embedding, c.Embedding)
	}
	if c.Metadata != nil {
		dst.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			dst.Metadata[k] = v
		}
	}
	return &dst
}

// ChunkID builds the identifier of the chunk at index within a document
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s#%d", documentID, index)
}
