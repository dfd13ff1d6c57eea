package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docsearch-mcp/internal/embedder"
	"github.com/dshills/docsearch-mcp/internal/indexer"
	"github.com/dshills/docsearch-mcp/internal/searcher"
	"github.com/dshills/docsearch-mcp/internal/storage"
)

type testEnv struct {
	server *Server
	lock   *indexer.IndexLock
	dir    string
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	emb, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	srch := searcher.New(store, store, emb)
	t.Cleanup(func() { _ = srch.Close() })
	require.NoError(t, srch.Load(context.Background()))

	idx := indexer.New(srch, emb, nil)
	lock := &indexer.IndexLock{}

	server, err := NewServer(Dependencies{
		Searcher: srch,
		Indexer:  idx,
		Lock:     lock,
		Status:   store,
	})
	require.NoError(t, err)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "cache.md"), "# Cache Notes\n\nAuthor: Ada\n\nThe cache eviction policy removes the least recently used entry first.")
	writeFile(t, filepath.Join(dir, "garden.txt"), "Gardening tips for tomatoes and basil during a warm summer.")

	return &testEnv{server: server, lock: lock, dir: dir}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func decodeResult(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireMCPError(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code, mcpErr.Message)
}

func TestNewServer_RequiresComponents(t *testing.T) {
	_, err := NewServer(Dependencies{})
	assert.Error(t, err)
}

func TestIndexAndSearch(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	result, err := env.server.handleIndexDocuments(ctx, callRequest("index_documents", map[string]interface{}{
		"path": env.dir,
	}))
	require.NoError(t, err)
	indexed := decodeResult(t, result)
	assert.Equal(t, true, indexed["indexed"])
	assert.EqualValues(t, 2, indexed["files_indexed"])

	result, err = env.server.handleSearchDocuments(ctx, callRequest("search_documents", map[string]interface{}{
		"query":       "cache eviction",
		"max_results": float64(5),
	}))
	require.NoError(t, err)
	resp := decodeResult(t, result)

	results, ok := resp["results"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, results)
	first := results[0].(map[string]interface{})
	doc := first["document"].(map[string]interface{})
	assert.Equal(t, "Cache Notes", doc["title"])
	assert.Equal(t, "md", doc["file_type"])
	assert.EqualValues(t, 1, first["rank"])
	assert.Equal(t, false, resp["cache_hit"])

	// Same query again is served from the result cache
	result, err = env.server.handleSearchDocuments(ctx, callRequest("search_documents", map[string]interface{}{
		"query":       "cache eviction",
		"max_results": float64(5),
	}))
	require.NoError(t, err)
	assert.Equal(t, true, decodeResult(t, result)["cache_hit"])
}

func TestSearch_Filters(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	_, err := env.server.handleIndexDocuments(ctx, callRequest("index_documents", map[string]interface{}{"path": env.dir}))
	require.NoError(t, err)

	result, err := env.server.handleSearchDocuments(ctx, callRequest("search_documents", map[string]interface{}{
		"query": "cache eviction",
		"filters": map[string]interface{}{
			"file_types": []interface{}{"txt"},
		},
	}))
	require.NoError(t, err)
	resp := decodeResult(t, result)

	results := resp["results"].([]interface{})
	require.Len(t, results, 1)
	doc := results[0].(map[string]interface{})["document"].(map[string]interface{})
	assert.Equal(t, "txt", doc["file_type"])
	assert.Equal(t, true, resp["prefiltered"])
}

func TestSearch_InvalidParams(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing query", map[string]interface{}{}, ErrorCodeEmptyQuery},
		{"max results too large", map[string]interface{}{"query": "x", "max_results": float64(500)}, ErrorCodeInvalidParams},
		{"threshold above one", map[string]interface{}{"query": "x", "threshold": 1.5}, ErrorCodeInvalidParams},
		{"bad file types", map[string]interface{}{"query": "x", "filters": map[string]interface{}{"file_types": "md"}}, ErrorCodeInvalidParams},
		{"bad date", map[string]interface{}{"query": "x", "filters": map[string]interface{}{"modified_after": "yesterday"}}, ErrorCodeInvalidParams},
		{"inverted range", map[string]interface{}{"query": "x", "filters": map[string]interface{}{
			"modified_after":  "2024-02-01T00:00:00Z",
			"modified_before": "2024-01-01T00:00:00Z",
		}}, ErrorCodeInvalidParams},
		{"query empty after rewriting", map[string]interface{}{"query": "?!"}, ErrorCodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.server.handleSearchDocuments(ctx, callRequest("search_documents", tt.args))
			requireMCPError(t, err, tt.code)
		})
	}

	var req mcp.CallToolRequest
	_, err := env.server.handleSearchDocuments(ctx, req)
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestIndex_InvalidPath(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	unsupported := filepath.Join(env.dir, "image.png")
	writeFile(t, unsupported, "binary")

	for _, path := range []string{"", "relative/docs", filepath.Join(env.dir, "missing"), unsupported} {
		_, err := env.server.handleIndexDocuments(ctx, callRequest("index_documents", map[string]interface{}{"path": path}))
		requireMCPError(t, err, ErrorCodeInvalidParams)
	}
}

func TestIndex_InProgress(t *testing.T) {
	env := setupTestServer(t)

	require.True(t, env.lock.TryAcquire())
	defer env.lock.Release()

	_, err := env.server.handleIndexDocuments(context.Background(), callRequest("index_documents", map[string]interface{}{"path": env.dir}))
	requireMCPError(t, err, ErrorCodeIndexingInProgress)
}

func TestRemoveDocument(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	_, err := env.server.handleIndexDocuments(ctx, callRequest("index_documents", map[string]interface{}{"path": env.dir}))
	require.NoError(t, err)

	garden := filepath.Join(env.dir, "garden.txt")
	result, err := env.server.handleRemoveDocument(ctx, callRequest("remove_document", map[string]interface{}{"path": garden}))
	require.NoError(t, err)
	removed := decodeResult(t, result)
	assert.Equal(t, indexer.DocumentID(garden), removed["id"])

	cacheID := indexer.DocumentID(filepath.Join(env.dir, "cache.md"))
	_, err = env.server.handleRemoveDocument(ctx, callRequest("remove_document", map[string]interface{}{"id": cacheID}))
	require.NoError(t, err)

	_, err = env.server.handleRemoveDocument(ctx, callRequest("remove_document", map[string]interface{}{"id": cacheID}))
	requireMCPError(t, err, ErrorCodeDocumentNotFound)

	_, err = env.server.handleRemoveDocument(ctx, callRequest("remove_document", map[string]interface{}{}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestGetStats(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	_, err := env.server.handleIndexDocuments(ctx, callRequest("index_documents", map[string]interface{}{"path": env.dir}))
	require.NoError(t, err)
	_, err = env.server.handleSearchDocuments(ctx, callRequest("search_documents", map[string]interface{}{"query": "basil"}))
	require.NoError(t, err)

	result, err := env.server.handleGetStats(ctx, callRequest("get_stats", map[string]interface{}{}))
	require.NoError(t, err)
	stats := decodeResult(t, result)

	index := stats["index"].(map[string]interface{})
	assert.EqualValues(t, 2, index["documents"])
	assert.Equal(t, false, index["indexing_in_progress"])

	search := stats["search"].(map[string]interface{})
	assert.EqualValues(t, 1, search["total_searches"])

	store := stats["storage"].(map[string]interface{})
	assert.EqualValues(t, 2, store["documents"])
	assert.Equal(t, storage.BuildMode, store["build_mode"])
}
