// Package indexer ingests plain-text files into the search index.
//
// The indexer reads files, chunks them, embeds the chunks in batches and
// hands each prepared document to a DocumentIndex (normally the searcher).
//
// # Basic Usage
//
//	idx := indexer.New(searcher, embedder, nil)
//
//	stats, err := idx.IndexPath(ctx, "/path/to/docs")
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("Indexed %d files in %v\n", stats.Indexed, stats.Duration)
//
// # Indexing Pipeline
//
//  1. Discovery: walk the tree, skip hidden entries, keep configured extensions
//  2. Load: read UTF-8 text, derive title, author and metadata
//  3. Incremental decision: skip files whose content hash is unchanged
//  4. Chunk and embed: chunks are embedded BatchSize at a time
//  5. Index: the document replaces any previous version atomically
//
// Files are prepared concurrently, bounded by Config.Workers. A file that
// fails is recorded in Statistics.Errors and the run continues; only context
// cancellation aborts it.
//
// # Document IDs
//
// Documents are identified by a UUIDv5 of their absolute path, so indexing a
// file again replaces it instead of adding a duplicate.
//
// # Watching
//
// Watcher keeps an index in sync with a directory. Events are debounced and
// applied together: files that still exist are re-indexed and files that
// disappeared are removed. A sync that finds the IndexLock held is retried
// after the next debounce interval.
package indexer
