// Package mcp implements the Model Context Protocol (MCP) server for docsearch.
//
// The server exposes four tools to MCP clients:
//   - index_documents: Index a file or directory of text documents
//   - search_documents: Search indexed documents with a natural language query
//   - remove_document: Remove a document by ID or source path
//   - get_stats: Report index size, search statistics and cache usage
//
// MCP is JSON-RPC 2.0 over stdio. Logs go to stderr since stdout carries the
// protocol.
//
// # Tool: search_documents
//
//	Request:
//	{
//	  "name": "search_documents",
//	  "arguments": {
//	    "query": "how does eviction work",
//	    "max_results": 5,
//	    "threshold": 0.3,
//	    "filters": {
//	      "file_types": ["md"],
//	      "authors": ["Ada"],
//	      "modified_after": "2024-01-01T00:00:00Z"
//	    }
//	  }
//	}
//
//	Response:
//	{
//	  "query": "how does eviction work",
//	  "total_results": 1,
//	  "cache_hit": false,
//	  "results": [
//	    {
//	      "rank": 1,
//	      "relevance_score": 0.71,
//	      "snippet": "the cache eviction policy removes the least recently used entry.",
//	      "document": {"id": "...", "title": "Cache Notes", "file_type": "md"},
//	      "chunk": {"id": "...#0", "index": 0, "start_index": 0, "end_index": 64}
//	    }
//	  ]
//	}
//
// # Error Handling
//
// Tool handlers return *MCPError values:
//   - -32602: Invalid params
//   - -32603: Internal error
//   - -32002: Indexing in progress
//   - -32003: Index not loaded
//   - -32004: Empty query
//   - -32005: Document not found
package mcp
