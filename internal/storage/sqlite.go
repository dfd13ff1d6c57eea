package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

// maxInParams bounds the number of placeholders in one IN (...) clause
const maxInParams = 500

// SQLiteStorage implements DocumentStore and VectorIndex on one SQLite database
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens (or creates) the database at dbPath and applies
// pending migrations
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Location returns the database path
func (s *SQLiteStorage) Location() string {
	return "sqlite:" + s.path
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn in a transaction, committing on success
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Document operations

func (s *SQLiteStorage) SaveDocument(ctx context.Context, doc *types.Document, chunks []*types.Chunk) error {
	return s.withTx(ctx, func(q querier) error {
		if err := upsertDocument(ctx, q, doc); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", doc.ID); err != nil {
			return fmt.Errorf("failed to delete old chunks: %w", err)
		}
		for _, chunk := range chunks {
			if err := insertChunk(ctx, q, chunk); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertDocument(ctx context.Context, q querier, doc *types.Document) error {
	query := `
		INSERT INTO documents (id, title, content, source_path, content_hash, file_type, author,
		                       created_at, last_modified, size_bytes, extra, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			source_path = excluded.source_path,
			content_hash = excluded.content_hash,
			file_type = excluded.file_type,
			author = excluded.author,
			created_at = excluded.created_at,
			last_modified = excluded.last_modified,
			size_bytes = excluded.size_bytes,
			extra = excluded.extra,
			indexed_at = excluded.indexed_at
	`
	md := doc.Metadata
	_, err := q.ExecContext(ctx, query,
		doc.ID, doc.Title, doc.Content, doc.SourcePath, doc.ContentHash[:],
		md.FileType, md.Author, nullTime(md.CreatedAt), nullTime(md.LastModified),
		md.Size, encodeMap(md.Extra), time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func insertChunk(ctx context.Context, q querier, chunk *types.Chunk) error {
	query := `
		INSERT INTO chunks (id, document_id, chunk_index, content, content_hash,
		                    start_index, end_index, embedding, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var embedding []byte
	if chunk.HasEmbedding() {
		embedding = serializeVector(chunk.Embedding)
	}
	_, err := q.ExecContext(ctx, query,
		chunk.ID, chunk.DocumentID, chunk.ChunkIndex, chunk.Content, chunk.ContentHash[:],
		chunk.StartIndex, chunk.EndIndex, embedding, encodeMap(chunk.Metadata))
	if err != nil {
		return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
	}
	return nil
}

const documentColumns = `id, title, content, source_path, content_hash, file_type, author,
	created_at, last_modified, size_bytes, extra`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*types.Document, error) {
	var (
		doc                     types.Document
		sourcePath, fileType    sql.NullString
		author, extra           sql.NullString
		hash                    []byte
		createdAt, lastModified sql.NullTime
	)
	err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &sourcePath, &hash, &fileType, &author,
		&createdAt, &lastModified, &doc.Metadata.Size, &extra)
	if err != nil {
		return nil, err
	}

	doc.SourcePath = sourcePath.String
	copy(doc.ContentHash[:], hash)
	doc.Metadata.FileType = fileType.String
	doc.Metadata.Author = author.String
	if createdAt.Valid {
		doc.Metadata.CreatedAt = createdAt.Time
	}
	if lastModified.Valid {
		doc.Metadata.LastModified = lastModified.Time
	}
	doc.Metadata.Extra = decodeMap(extra.String)
	return &doc, nil
}

func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM chunks WHERE document_id = ? ORDER BY chunk_index", id)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var chunkID string
		if err := rows.Scan(&chunkID); err != nil {
			return nil, err
		}
		doc.ChunkIDs = append(doc.ChunkIDs, chunkID)
	}
	return doc, rows.Err()
}

func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]*types.Document, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+documentColumns+" FROM documents ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := make([]*types.Document, 0)
	byID := make(map[string]*types.Document)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
		byID[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	_ = rows.Close()

	chunkRows, err := s.db.QueryContext(ctx, "SELECT document_id, id FROM chunks ORDER BY document_id, chunk_index")
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk ids: %w", err)
	}
	defer func() { _ = chunkRows.Close() }()

	for chunkRows.Next() {
		var docID, chunkID string
		if err := chunkRows.Scan(&docID, &chunkID); err != nil {
			return nil, err
		}
		if doc, ok := byID[docID]; ok {
			doc.ChunkIDs = append(doc.ChunkIDs, chunkID)
		}
	}

	return docs, chunkRows.Err()
}

func (s *SQLiteStorage) ListChunks(ctx context.Context, documentID string) ([]*types.Chunk, error) {
	query := `
		SELECT id, document_id, chunk_index, content, content_hash,
		       start_index, end_index, embedding, metadata
		FROM chunks
		WHERE document_id = ?
		ORDER BY chunk_index
	`
	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*types.Chunk, 0)
	for rows.Next() {
		var (
			chunk     types.Chunk
			hash      []byte
			embedding []byte
			metadata  sql.NullString
		)
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Content, &hash,
			&chunk.StartIndex, &chunk.EndIndex, &embedding, &metadata); err != nil {
			return nil, err
		}
		copy(chunk.ContentHash[:], hash)
		if len(embedding) > 0 {
			chunk.Embedding = deserializeVector(embedding)
		}
		chunk.Metadata = decodeMap(metadata.String)
		chunks = append(chunks, &chunk)
	}

	return chunks, rows.Err()
}

func (s *SQLiteStorage) ClearDocuments(ctx context.Context) error {
	return s.withTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
			return fmt.Errorf("failed to clear chunks: %w", err)
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM documents"); err != nil {
			return fmt.Errorf("failed to clear documents: %w", err)
		}
		return nil
	})
}

// Vector operations

func (s *SQLiteStorage) Insert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	query := `
		INSERT INTO vectors (id, vector, dimension, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			metadata = excluded.metadata,
			created_at = excluded.created_at
	`
	_, err := s.db.ExecContext(ctx, query, id, serializeVector(vector), len(vector), encodeMap(metadata), time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert vector %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStorage) Query(ctx context.Context, vector []float32, k int, candidates []string) ([]VectorMatch, error) {
	return searchVector(ctx, s.db, vector, k, candidates)
}

func (s *SQLiteStorage) Delete(ctx context.Context, ids ...string) error {
	return s.withTx(ctx, func(q querier) error {
		for start := 0; start < len(ids); start += maxInParams {
			batch := ids[start:min(start+maxInParams, len(ids))]
			clause, args := inClause(batch)
			if _, err := q.ExecContext(ctx, "DELETE FROM vectors WHERE id IN "+clause, args...); err != nil {
				return fmt.Errorf("failed to delete vectors: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStorage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM vectors"); err != nil {
		return fmt.Errorf("failed to clear vectors: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vectors").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	return n, nil
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{
		Location:  s.Location(),
		BuildMode: BuildMode,
	}

	version, err := SchemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = version

	counts := []struct {
		table string
		dest  *int
	}{
		{"documents", &status.Documents},
		{"chunks", &status.Chunks},
		{"vectors", &status.Vectors},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}

	var lastIndexed sql.NullTime
	err = s.db.QueryRowContext(ctx, "SELECT indexed_at FROM documents ORDER BY indexed_at DESC LIMIT 1").Scan(&lastIndexed)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to read last indexed time: %w", err)
	}
	if lastIndexed.Valid {
		status.LastIndexedAt = lastIndexed.Time
	}

	if info, err := os.Stat(s.path); err == nil {
		status.SizeMB = float64(info.Size()) / (1024 * 1024)
	}

	return status, nil
}

// helpers

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func encodeMap(m map[string]string) interface{} {
	if len(m) == 0 {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return string(data)
}

func decodeMap(s string) map[string]string {
	if s == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

func inClause(ids []string) (string, []interface{}) {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")", args
}
