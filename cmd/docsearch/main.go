// Package main provides the CLI entry point for the docsearch MCP server.
//
// # Basic Usage
//
// Index a directory and search it from the shell:
//
//	docsearch index ~/notes
//	docsearch search "how does eviction work" --max 5 --file-type md
//
// Serve the MCP protocol on stdio, keeping ~/notes in sync:
//
//	docsearch serve --watch ~/notes
//
// # Environment Variables
//
//   - DOCSEARCH_CONFIG: Path to the YAML configuration file
//   - DOCSEARCH_DB_PATH: Database file (default: ~/.docsearch/docsearch.db)
//   - DOCSEARCH_INDEX_BACKEND: sqlite or memory
//   - DOCSEARCH_EMBEDDING_PROVIDER: jina, openai or local
//   - DOCSEARCH_LOG_LEVEL, DOCSEARCH_LOG_FORMAT: Logging
//   - DOCSEARCH_METRICS_ADDR: Address for the Prometheus endpoint
//   - JINA_API_KEY, OPENAI_API_KEY: Embedding provider credentials
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/docsearch-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	rootCmd := buildRootCmd()

	if err := rootCmd.Execute(); err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("command failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached
func buildRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "docsearch",
		Short: "docsearch - semantic search over local documents",
		Long: `docsearch indexes plain-text documents into a vector index and
serves relevance-ranked search over the Model Context Protocol.`,
		Version: fmt.Sprintf("%s (built: %s, mode: %s, driver: %s, vector extension: %v)",
			version, buildTime, storage.BuildMode, storage.DriverName, storage.VectorExtensionAvailable),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("DOCSEARCH_CONFIG"), "Path to YAML configuration file")

	rootCmd.AddCommand(
		buildServeCmd(&configPath),
		buildIndexCmd(&configPath),
		buildSearchCmd(&configPath),
		buildRemoveCmd(&configPath),
		buildStatsCmd(&configPath),
		buildWatchCmd(&configPath),
	)

	return rootCmd
}
