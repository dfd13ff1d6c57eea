package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexDocumentsTool returns the tool definition for index_documents
func indexDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_documents",
		Description: "Index a text file or a directory of documents to make them searchable",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a file or directory",
				},
			},
			Required: []string{"path"},
		},
	}
}

// searchDocumentsTool returns the tool definition for search_documents
func searchDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_documents",
		Description: "Search indexed documents with a natural language query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"max_results": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"threshold": map[string]interface{}{
					"type":        "number",
					"description": "Minimum similarity score (0.0-1.0)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"filters": map[string]interface{}{
					"type":        "object",
					"description": "Optional metadata filters; all set filters must match",
					"properties": map[string]interface{}{
						"file_types": map[string]interface{}{
							"type":        "array",
							"description": "File extensions without the dot (e.g. md, txt)",
							"items": map[string]interface{}{
								"type": "string",
							},
						},
						"authors": map[string]interface{}{
							"type":        "array",
							"description": "Document authors, compared case-insensitively",
							"items": map[string]interface{}{
								"type": "string",
							},
						},
						"modified_after": map[string]interface{}{
							"type":        "string",
							"description": "RFC 3339 timestamp; only documents modified at or after it",
							"format":      "date-time",
						},
						"modified_before": map[string]interface{}{
							"type":        "string",
							"description": "RFC 3339 timestamp; only documents modified at or before it",
							"format":      "date-time",
						},
					},
				},
			},
			Required: []string{"query"},
		},
	}
}

// removeDocumentTool returns the tool definition for remove_document
func removeDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "remove_document",
		Description: "Remove a document from the index by ID or source path",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Document ID as returned by search_documents",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Source path the document was indexed from",
				},
			},
		},
	}
}

// getStatsTool returns the tool definition for get_stats
func getStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_stats",
		Description: "Report index size, search statistics and cache usage",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
