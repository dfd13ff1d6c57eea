package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/docsearch-mcp/internal/indexer"
)

func buildServeCmd(configPath *string) *cobra.Command {
	var (
		watchDir    string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP protocol on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, *configPath, watchDir, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&watchDir, "watch", "", "Directory to keep in sync while serving")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (overrides config)")
	return cmd
}

func buildIndexCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index [file-or-directory]",
		Short: "Index documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, *configPath, args[0])
		},
	}
	return cmd
}

func buildSearchCmd(configPath *string) *cobra.Command {
	var opts searchOptions
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search indexed documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.threshold = -1
			if cmd.Flags().Changed("threshold") {
				opts.threshold = opts.thresholdFlag
			}
			return runSearch(cmd, *configPath, args[0], opts)
		},
	}
	cmd.Flags().IntVarP(&opts.maxResults, "max", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().Float64Var(&opts.thresholdFlag, "threshold", 0, "Minimum similarity score (0-1)")
	cmd.Flags().StringSliceVar(&opts.fileTypes, "file-type", nil, "Only search these file types (repeatable)")
	cmd.Flags().StringSliceVar(&opts.authors, "author", nil, "Only search documents by these authors (repeatable)")
	cmd.Flags().StringVar(&opts.after, "after", "", "Only documents modified at or after this RFC 3339 time")
	cmd.Flags().StringVar(&opts.before, "before", "", "Only documents modified at or before this RFC 3339 time")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print results as JSON")
	return cmd
}

func buildRemoveCmd(configPath *string) *cobra.Command {
	var byID bool
	cmd := &cobra.Command{
		Use:   "remove [path-or-id]",
		Short: "Remove a document from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd, *configPath, args[0], byID)
		},
	}
	cmd.Flags().BoolVar(&byID, "id", false, "Treat the argument as a document ID")
	return cmd
}

func buildStatsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, *configPath)
		},
	}
	return cmd
}

func buildWatchCmd(configPath *string) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch [directory]",
		Short: "Index a directory and keep it in sync until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, *configPath, args[0], debounce)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", indexer.DefaultDebounce, "Delay before applying file changes")
	return cmd
}
