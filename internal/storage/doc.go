// Package storage persists documents, chunks and vectors in SQLite.
//
// SQLiteStorage implements both DocumentStore (the durable registry of
// documents and their chunks) and VectorIndex (chunk vectors keyed by chunk
// ID). MemoryIndex is a volatile VectorIndex for tests and the "memory"
// index backend.
//
// # Database Schema
//
// Tables:
//   - documents: document text, source path, SHA-256 hash and metadata
//   - chunks: chunk text with byte offsets into the parent document and the
//     chunk embedding; deleted with their document
//   - vectors: vector index rows (id, little-endian float32 blob, dimension,
//     metadata)
//   - schema_version: applied migrations, compared with semantic versioning
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.docsearch/docsearch.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	// Replace a document and its chunks atomically
//	err = db.SaveDocument(ctx, doc, chunks)
//
//	// Index and query vectors
//	err = db.Insert(ctx, chunk.ID, chunk.Embedding, nil)
//	matches, err := db.Query(ctx, queryVector, 20, nil)
//
// # Build Modes
//
// With the sqlite_vec tag (CGO, github.com/mattn/go-sqlite3) similarity is
// computed in SQL with vec_distance_cosine. The default pure Go build
// (modernc.org/sqlite) ranks candidates in Go. Both return cosine
// similarity, higher is better, ties ordered by ID.
//
// # Candidate Restriction
//
// Query accepts an optional candidate list. nil searches the whole index; an
// empty, non-nil list matches nothing.
package storage
