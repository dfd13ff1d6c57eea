// Package searcher runs relevance-ranked queries over indexed document chunks.
//
// A Searcher owns the in-memory document registry and a result cache. The
// vector index, document store and embedder are collaborators passed to New.
//
// # Basic Usage
//
//	s := searcher.New(store, index, emb, searcher.WithLogger(logger))
//	if err := s.Load(ctx); err != nil {
//	    return err
//	}
//
//	resp, err := s.Search(ctx, types.SearchQuery{
//	    Query:      "how does eviction work",
//	    MaxResults: 5,
//	    Filters:    &types.SearchFilters{FileTypes: []string{"md"}},
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("%.3f %s: %s\n", r.Score, r.Document.Title, r.Snippet)
//	}
//
// # Pipeline
//
//  1. The result cache is checked under a key derived from the canonical
//     query (see CacheKey)
//  2. The query is rewritten: lower-cased, stripped of punctuation and
//     abbreviations such as "ml" are expanded
//  3. With filters and prefiltering enabled, the candidate chunk set is
//     computed from document metadata before the index is queried
//  4. The query is embedded and the index is asked for twice MaxResults
//     matches
//  5. Matches are deduplicated, resolved against the registry, filtered and
//     cut at the similarity threshold
//  6. Results are stably sorted by score and given snippets
//
// Failures in steps 2-6 are returned as *types.SearchError, which matches
// types.ErrSearchFailed. An empty result is not an error.
//
// # Indexing
//
// IndexDocument writes vectors, then the store, then publishes the document
// to the registry, so searches never see half of a document. Every change to
// the registry invalidates cached results.
package searcher
