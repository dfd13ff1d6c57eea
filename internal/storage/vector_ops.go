package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"
)

// vecFunctionMissing latches once SQLite reports that vec_distance_cosine is
// not registered on the connection, so later queries skip straight to Go
var vecFunctionMissing atomic.Bool

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, db *sql.DB, queryVector []float32, k int, candidates []string) ([]VectorMatch, error) {
	if k <= 0 || (candidates != nil && len(candidates) == 0) {
		return []VectorMatch{}, nil
	}

	// Use optimized SQL-based search when sqlite-vec is available and the
	// candidate list fits in one statement
	if VectorExtensionAvailable && len(candidates) <= maxInParams {
		return searchVectorSQL(ctx, db, queryVector, k, candidates)
	}
	// Fall back to Go-based computation for purego builds
	return searchVectorFallback(ctx, db, queryVector, k, candidates)
}

// searchVectorSQL ranks inside SQLite and falls back to Go ranking when the
// sqlite-vec functions are not loaded into the driver
func searchVectorSQL(ctx context.Context, db *sql.DB, queryVector []float32, k int, candidates []string) ([]VectorMatch, error) {
	if !vecFunctionMissing.Load() {
		matches, err := searchVectorOptimized(ctx, db, queryVector, k, candidates)
		if !isMissingFunction(err) {
			return matches, err
		}
		vecFunctionMissing.Store(true)
	}
	return searchVectorFallback(ctx, db, queryVector, k, candidates)
}

// isMissingFunction reports whether err is SQLite rejecting an unknown SQL
// function
func isMissingFunction(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such function")
}

// searchVectorOptimized uses sqlite-vec extension for SQL-based vector similarity search
func searchVectorOptimized(ctx context.Context, db *sql.DB, queryVector []float32, k int, candidates []string) ([]VectorMatch, error) {
	queryVectorBlob := serializeVector(queryVector)

	// vec_distance_cosine returns a distance (lower is better), converted
	// to similarity so both paths score alike
	query := `
		SELECT id, metadata, 1.0 - vec_distance_cosine(vector, ?) AS similarity
		FROM vectors
		WHERE dimension = ?
	`
	args := []interface{}{queryVectorBlob, len(queryVector)}

	if candidates != nil {
		clause, inArgs := inClause(candidates)
		query += " AND id IN " + clause
		args = append(args, inArgs...)
	}

	query += " ORDER BY similarity DESC, id LIMIT ?"
	args = append(args, k)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorMatch, 0, k)
	for rows.Next() {
		var (
			match    VectorMatch
			metadata sql.NullString
		)
		if err := rows.Scan(&match.ID, &metadata, &match.Score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		match.Metadata = decodeMap(metadata.String)
		results = append(results, match)
	}

	return results, rows.Err()
}

// searchVectorFallback performs vector search using Go-based cosine similarity computation
// This is used when sqlite-vec extension is not available (purego builds)
func searchVectorFallback(ctx context.Context, db *sql.DB, queryVector []float32, k int, candidates []string) ([]VectorMatch, error) {
	var allowed map[string]struct{}
	if candidates != nil {
		allowed = make(map[string]struct{}, len(candidates))
		for _, id := range candidates {
			allowed[id] = struct{}{}
		}
	}

	rows, err := db.QueryContext(ctx, "SELECT id, vector, metadata FROM vectors WHERE dimension = ?", len(queryVector))
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	scored := make([]VectorMatch, 0)
	for rows.Next() {
		var (
			id       string
			blob     []byte
			metadata sql.NullString
		)
		if err := rows.Scan(&id, &blob, &metadata); err != nil {
			return nil, err
		}
		if allowed != nil {
			if _, ok := allowed[id]; !ok {
				continue
			}
		}

		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		scored = append(scored, VectorMatch{
			ID:       id,
			Score:    cosineSimilarity(queryVector, vector),
			Metadata: decodeMap(metadata.String),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return topK(scored, k), nil
}

// topK sorts matches by descending score (ties by ID) and keeps the first k
func topK(matches []VectorMatch, k int) []VectorMatch {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineSimilarity is an exported helper for other index implementations
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
