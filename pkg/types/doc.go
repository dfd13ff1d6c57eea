// Package types provides shared type definitions for the docsearch server.
//
// This package defines the domain types used across the chunker, searcher,
// indexer and storage layers.
//
// # Core Types
//
// Document represents one ingested text source and owns an ordered list of
// chunk IDs:
//
//	doc := &types.Document{
//	    ID:      "b7c5...",
//	    Title:   "Release notes",
//	    Content: text,
//	    Metadata: types.DocumentMetadata{FileType: "md"},
//	}
//
// Chunk is a substring of a document addressed by byte offsets:
//
//	chunk.Content == doc.Content[chunk.StartIndex:chunk.EndIndex]
//
// # Validation
//
//	if err := chunk.ValidateAgainst(doc); err != nil {
//	    log.Fatal(err)
//	}
//
// # Search
//
// SearchQuery carries the free-text query and a closed set of metadata
// filters (file types, authors, last-modified range). SearchResult pairs a
// chunk and its document with the raw similarity score reported by the
// vector index and a short snippet.
//
// Pipeline failures are reported as *SearchError, which matches
// ErrSearchFailed:
//
//	if errors.Is(err, types.ErrSearchFailed) {
//	    // could not search, as opposed to an empty result
//	}
package types
