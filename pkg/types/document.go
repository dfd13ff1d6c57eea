package types

import (
	"crypto/sha256"
	"errors"
	"time"
)

// DocumentMetadata describes the source a document was ingested from
type DocumentMetadata struct {
	FileType     string
	Author       string // Optional
	CreatedAt    time.Time
	LastModified time.Time
	Size         int64
	Extra        map[string]string
}

// Document represents one ingested source file
type Document struct {
	ID          string
	Title       string
	Content     string
	SourcePath  string
	ContentHash [32]byte
	Metadata    DocumentMetadata

	// ChunkIDs lists the document's chunks in chunk index order
	ChunkIDs []string
}

// Validate checks that the document carries the fields the registry requires
func (d *Document) Validate() error {
	if d.ID == "" {
		return errors.New("document ID is required")
	}
	if d.Title == "" {
		return errors.New("document title is required")
	}
	return nil
}

// ComputeContentHash computes the SHA-256 hash of the document content
func (d *Document) ComputeContentHash() {
	d.ContentHash = sha256.Sum256([]byte(d.Content))
}

// Clone returns a deep copy of the document
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	dst := *d
	if d.ChunkIDs != nil {
		dst.ChunkIDs = append([]string(nil), d.ChunkIDs...)
	}
	if d.Metadata.Extra != nil {
		dst.Metadata.Extra = make(map[string]string, len(d.Metadata.Extra))
		for k, v := range d.Metadata.Extra {
			dst.Metadata.Extra[k] = v
		}
	}
	return &dst
}
