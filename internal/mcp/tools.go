package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/docsearch-mcp/internal/indexer"
	"github.com/dshills/docsearch-mcp/internal/searcher"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // Index not loaded
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeDocumentNotFound   = -32005 // No document with the given ID
)

// maxReportedErrors caps the per-file errors included in an indexing response
const maxReportedErrors = 5

// handleIndexDocuments handles the index_documents tool invocation
func (s *Server) handleIndexDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := s.validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	var stats *indexer.Statistics
	err := s.lock.Run(func() error {
		var err error
		stats, err = s.indexer.IndexPath(ctx, path)
		return err
	})
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", map[string]interface{}{
			"path": path,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	s.logger.Info("indexed documents",
		"path", path,
		"indexed", stats.Indexed,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"duration", stats.Duration)

	response := map[string]interface{}{
		"indexed":        true,
		"files_indexed":  stats.Indexed,
		"files_skipped":  stats.Skipped,
		"files_removed":  stats.Removed,
		"files_failed":   stats.Failed,
		"chunks_created": stats.Chunks,
		"duration_ms":    stats.Duration.Milliseconds(),
	}

	if len(stats.Errors) > 0 {
		errorCount := len(stats.Errors)
		if errorCount > maxReportedErrors {
			response["errors"] = stats.Errors[:maxReportedErrors]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.Errors
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchDocuments handles the search_documents tool invocation
func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	maxResults := getIntDefault(args, "max_results", types.DefaultMaxResults)
	if maxResults < 1 || maxResults > types.MaxResultsLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "max_results must be between 1 and 100", map[string]interface{}{
			"param": "max_results",
			"value": maxResults,
		})
	}

	q := types.SearchQuery{Query: query, MaxResults: maxResults}

	if v, ok := args["threshold"].(float64); ok {
		if v < 0 || v > 1 {
			return nil, newMCPError(ErrorCodeInvalidParams, "threshold must be between 0 and 1", map[string]interface{}{
				"param": "threshold",
				"value": v,
			})
		}
		q.Threshold = &v
	}

	if raw, ok := args["filters"].(map[string]interface{}); ok {
		filters, err := parseFilters(raw)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid filters", map[string]interface{}{
				"param":  "filters",
				"reason": err.Error(),
			})
		}
		q.Filters = filters
	}

	resp, err := s.searcher.Search(ctx, q)
	switch {
	case errors.Is(err, types.ErrNotInitialized):
		return nil, newMCPError(ErrorCodeNotIndexed, "index is not loaded", nil)
	case errors.Is(err, types.ErrInvalidQuery):
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid query", map[string]interface{}{
			"error": err.Error(),
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(formatSearchResponse(resp))), nil
}

// handleRemoveDocument handles the remove_document tool invocation
func (s *Server) handleRemoveDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id := getStringDefault(args, "id", "")
	path := getStringDefault(args, "path", "")
	if id == "" && path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "id or path parameter is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or empty",
		})
	}

	var err error
	if id != "" {
		err = s.searcher.RemoveDocument(ctx, id)
	} else {
		if abs, absErr := filepath.Abs(path); absErr == nil {
			id = indexer.DocumentID(abs)
		}
		err = s.indexer.RemovePath(ctx, path)
	}
	if errors.Is(err, types.ErrDocumentNotFound) {
		return nil, newMCPError(ErrorCodeDocumentNotFound, "document not found", map[string]interface{}{
			"id": id,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to remove document", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"removed": true,
		"id":      id,
	})), nil
}

// handleGetStats handles the get_stats tool invocation
func (s *Server) handleGetStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats := s.searcher.Stats()

	slow := make([]map[string]interface{}, 0, len(stats.Search.SlowQueries))
	for _, q := range stats.Search.SlowQueries {
		slow = append(slow, map[string]interface{}{
			"query":       q.Query,
			"duration_ms": q.Duration.Milliseconds(),
			"timestamp":   q.Timestamp.Format(time.RFC3339),
		})
	}

	response := map[string]interface{}{
		"index": map[string]interface{}{
			"documents":            stats.Documents,
			"chunks":               stats.Chunks,
			"indexing_in_progress": s.lock.Busy(),
		},
		"search": map[string]interface{}{
			"total_searches":         stats.Search.TotalSearches,
			"cache_hits":             stats.Search.CacheHits,
			"failed_searches":        stats.Search.FailedSearches,
			"average_search_time_ms": float64(stats.Search.AverageSearchTime.Microseconds()) / 1000,
			"slow_queries":           slow,
		},
		"result_cache": map[string]interface{}{
			"entries":      stats.ResultCache.Entries,
			"memory_bytes": stats.ResultCache.MemoryBytes,
			"hits":         stats.ResultCache.Hits,
			"misses":       stats.ResultCache.Misses,
			"evictions":    stats.ResultCache.Evictions,
		},
	}

	if s.status != nil {
		status, err := s.status.GetStatus(ctx)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
				"error": err.Error(),
			})
		}
		storeInfo := map[string]interface{}{
			"location":       status.Location,
			"schema_version": status.SchemaVersion,
			"build_mode":     status.BuildMode,
			"documents":      status.Documents,
			"chunks":         status.Chunks,
			"vectors":        status.Vectors,
			"size_mb":        fmt.Sprintf("%.2f", status.SizeMB),
		}
		if !status.LastIndexedAt.IsZero() {
			storeInfo["last_indexed_at"] = status.LastIndexedAt.Format(time.RFC3339)
		}
		response["storage"] = storeInfo
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

func formatSearchResponse(resp *searcher.SearchResponse) map[string]interface{} {
	results := make([]map[string]interface{}, 0, len(resp.Results))
	for i, r := range resp.Results {
		doc := r.Document
		results = append(results, map[string]interface{}{
			"rank":            i + 1,
			"relevance_score": r.Score,
			"snippet":         r.Snippet,
			"content":         r.Chunk.Content,
			"document": map[string]interface{}{
				"id":            doc.ID,
				"title":         doc.Title,
				"path":          doc.SourcePath,
				"file_type":     doc.Metadata.FileType,
				"author":        doc.Metadata.Author,
				"last_modified": doc.Metadata.LastModified.Format(time.RFC3339),
			},
			"chunk": map[string]interface{}{
				"id":          r.Chunk.ID,
				"index":       r.Chunk.ChunkIndex,
				"start_index": r.Chunk.StartIndex,
				"end_index":   r.Chunk.EndIndex,
			},
		})
	}

	return map[string]interface{}{
		"query":         resp.Query,
		"results":       results,
		"total_results": resp.TotalResults,
		"cache_hit":     resp.CacheHit,
		"prefiltered":   resp.Prefiltered,
		"duration_ms":   resp.Duration.Milliseconds(),
	}
}

// parseFilters converts the filters argument into SearchFilters
func parseFilters(raw map[string]interface{}) (*types.SearchFilters, error) {
	filters := &types.SearchFilters{}

	var err error
	if filters.FileTypes, err = getStringSlice(raw, "file_types"); err != nil {
		return nil, err
	}
	if filters.Authors, err = getStringSlice(raw, "authors"); err != nil {
		return nil, err
	}

	var dr types.DateRange
	for key, dst := range map[string]*time.Time{"modified_after": &dr.From, "modified_before": &dr.To} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be a string", key)
		}
		t, err := time.Parse(time.RFC3339, str)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		*dst = t
	}
	if !dr.From.IsZero() && !dr.To.IsZero() && dr.From.After(dr.To) {
		return nil, errors.New("modified_after must not be later than modified_before")
	}
	if !dr.From.IsZero() || !dr.To.IsZero() {
		filters.DateRange = &dr
	}

	if filters.IsEmpty() {
		return nil, nil
	}
	return filters, nil
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks that path is absolute and names a readable directory
// or an indexable file
func (s *Server) validatePath(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		if !s.indexer.Accepts(path) {
			return ErrUnsupportedFile
		}
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an optional array of strings
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch items := v.(type) {
	case []string:
		return items, nil
	case []interface{}:
		out := make([]string, 0, len(items))
		for _, item := range items {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s must contain only strings", key)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
}

// Validation helpers

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrUnsupportedFile = errors.New("file extension is not indexed")
)
