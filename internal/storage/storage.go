package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrDimensionMismatch is returned when a vector's length differs from the query's
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// DocumentStore persists documents and their chunks
type DocumentStore interface {
	// SaveDocument replaces any stored version of doc and its chunks atomically
	SaveDocument(ctx context.Context, doc *types.Document, chunks []*types.Chunk) error
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context) ([]*types.Document, error)
	ListChunks(ctx context.Context, documentID string) ([]*types.Chunk, error)
	ClearDocuments(ctx context.Context) error

	// Location identifies the backing store in errors and logs
	Location() string
}

// VectorIndex stores vectors by ID and answers nearest-neighbour queries
type VectorIndex interface {
	Insert(ctx context.Context, id string, vector []float32, metadata map[string]string) error

	// Query returns up to k matches ordered by descending score. A nil
	// candidates slice searches everything; a non-nil one restricts the
	// search to those IDs.
	Query(ctx context.Context, vector []float32, k int, candidates []string) ([]VectorMatch, error)

	Delete(ctx context.Context, ids ...string) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// VectorMatch is one result of a vector query. Score is cosine similarity,
// higher is more similar.
type VectorMatch struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// Status contains statistics about the store
type Status struct {
	Location      string
	SchemaVersion string
	BuildMode     string
	Documents     int
	Chunks        int
	Vectors       int
	SizeMB        float64
	LastIndexedAt time.Time
}
