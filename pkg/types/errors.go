package types

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors
var (
	// Lifecycle errors
	ErrNotInitialized   = errors.New("search index not initialized")
	ErrMissingEmbedding = errors.New("chunk has no embedding")
	ErrDocumentNotFound = errors.New("document not found")

	// Search errors
	ErrSearchFailed = errors.New("search failed")
	ErrInvalidQuery = errors.New("invalid search query")

	// Search result errors
	ErrInvalidChunkID  = errors.New("invalid chunk ID")
	ErrMissingDocument = errors.New("document is required")
	ErrEmptyContent    = errors.New("content cannot be empty")
)

// SearchError wraps any failure inside the search pipeline together with the
// context needed to diagnose it
type SearchError struct {
	Op      string // Pipeline stage, e.g. "embed query"
	Store   string // Backing store identifier
	Query   string
	Elapsed time.Duration
	Err     error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search %q failed during %s on %s after %s: %v",
		e.Query, e.Op, e.Store, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// Is makes every SearchError match ErrSearchFailed
func (e *SearchError) Is(target error) bool {
	return target == ErrSearchFailed
}
