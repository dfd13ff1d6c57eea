package types

import "time"

const (
	// DefaultMaxResults is used when a query does not set MaxResults
	DefaultMaxResults = 10
	// MaxResultsLimit is the hard ceiling on MaxResults
	MaxResultsLimit = 100
)

// DateRange bounds a document's last-modified time. A zero bound is open.
type DateRange struct {
	From time.Time `json:"from,omitzero"`
	To   time.Time `json:"to,omitzero"`
}

// Contains reports whether t falls inside the range (bounds inclusive)
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// SearchFilters narrows a search by document metadata. All set filters must
// match (logical AND); within a list any value may match.
type SearchFilters struct {
	FileTypes []string   `json:"fileTypes,omitempty"`
	Authors   []string   `json:"authors,omitempty"`
	DateRange *DateRange `json:"dateRange,omitempty"`
}

// IsEmpty reports whether no filter is set
func (f *SearchFilters) IsEmpty() bool {
	if f == nil {
		return true
	}
	return len(f.FileTypes) == 0 && len(f.Authors) == 0 &&
		(f.DateRange == nil || (f.DateRange.From.IsZero() && f.DateRange.To.IsZero()))
}

// SearchQuery is a free-text query with result shaping options
type SearchQuery struct {
	Query      string
	MaxResults int
	Threshold  *float64 // Similarity floor in [0, 1]
	Filters    *SearchFilters
}

// SearchResult represents a single ranked match
type SearchResult struct {
	Chunk    *Chunk
	Document *Document

	// Score is the raw similarity returned by the vector index
	Score   float64
	Snippet string
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.Chunk == nil || sr.Chunk.ID == "" {
		return ErrInvalidChunkID
	}

	if sr.Document == nil {
		return ErrMissingDocument
	}

	if sr.Chunk.Content == "" {
		return ErrEmptyContent
	}

	return nil
}

// Clone returns a deep copy of the result
func (sr SearchResult) Clone() SearchResult {
	return SearchResult{
		Chunk:    sr.Chunk.Clone(),
		Document: sr.Document.Clone(),
		Score:    sr.Score,
		Snippet:  sr.Snippet,
	}
}

// SlowQuery records a search that exceeded the slow-query threshold
type SlowQuery struct {
	Query     string
	Duration  time.Duration
	Timestamp time.Time
}

// SearchStats holds running search counters used for diagnostics
type SearchStats struct {
	TotalSearches     int64
	CacheHits         int64
	FailedSearches    int64
	AverageSearchTime time.Duration
	SlowQueries       []SlowQuery // Oldest first, at most 10
}
