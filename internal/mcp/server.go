package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/docsearch-mcp/internal/indexer"
	"github.com/dshills/docsearch-mcp/internal/searcher"
	"github.com/dshills/docsearch-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "docsearch-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// StatusReporter reports statistics about the persistent store
type StatusReporter interface {
	GetStatus(ctx context.Context) (*storage.Status, error)
}

// Dependencies are the components the tools operate on. The caller owns
// them and closes them after Serve returns.
type Dependencies struct {
	Searcher *searcher.Searcher
	Indexer  *indexer.Indexer
	Lock     *indexer.IndexLock
	Status   StatusReporter
	Logger   *slog.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	searcher *searcher.Searcher
	indexer  *indexer.Indexer
	lock     *indexer.IndexLock
	status   StatusReporter
	logger   *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(deps Dependencies) (*Server, error) {
	if deps.Searcher == nil || deps.Indexer == nil {
		return nil, errors.New("searcher and indexer are required")
	}

	lock := deps.Lock
	if lock == nil {
		lock = &indexer.IndexLock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:      mcpServer,
		searcher: deps.Searcher,
		indexer:  deps.Indexer,
		lock:     lock,
		status:   deps.Status,
		logger:   logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve runs the MCP protocol on stdio until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(os.Stderr, "", log.LstdFlags))

	s.logger.Info("mcp server started", "name", ServerName, "version", ServerVersion)
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(indexDocumentsTool(), s.handleIndexDocuments)
	s.mcp.AddTool(searchDocumentsTool(), s.handleSearchDocuments)
	s.mcp.AddTool(removeDocumentTool(), s.handleRemoveDocument)
	s.mcp.AddTool(getStatsTool(), s.handleGetStats)

	return nil
}
