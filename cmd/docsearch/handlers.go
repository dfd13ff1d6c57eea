package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/docsearch-mcp/internal/indexer"
	"github.com/dshills/docsearch-mcp/internal/mcp"
	"github.com/dshills/docsearch-mcp/internal/metrics"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

// runServe handles the serve command
func runServe(cmd *cobra.Command, configPath, watchDir, metricsAddr string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if metricsAddr == "" {
		metricsAddr = a.cfg.MetricsAddr
	}
	if metricsAddr != "" {
		if err := metrics.Serve(ctx, metricsAddr, a.registry, a.logger); err != nil {
			return err
		}
	}

	if watchDir != "" {
		w, err := a.watch(ctx, watchDir, indexer.DefaultDebounce)
		if err != nil {
			return err
		}
		defer func() { _ = w.Close() }()
	}

	server, err := mcp.NewServer(mcp.Dependencies{
		Searcher: a.searcher,
		Indexer:  a.indexer,
		Lock:     a.lock,
		Status:   a.store,
		Logger:   a.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	err = server.Serve(ctx)
	a.logger.Info("server stopped")
	return err
}

// runIndex handles the index command
func runIndex(cmd *cobra.Command, configPath, path string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	stats, err := a.index(ctx, path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexed:  %d\n", stats.Indexed)
	fmt.Fprintf(out, "Skipped:  %d\n", stats.Skipped)
	fmt.Fprintf(out, "Failed:   %d\n", stats.Failed)
	fmt.Fprintf(out, "Chunks:   %d\n", stats.Chunks)
	fmt.Fprintf(out, "Duration: %s\n", stats.Duration.Round(time.Millisecond))
	for _, msg := range stats.Errors {
		fmt.Fprintf(out, "  error: %s\n", msg)
	}
	return nil
}

type searchOptions struct {
	maxResults    int
	threshold     float64 // negative when unset
	thresholdFlag float64
	fileTypes     []string
	authors       []string
	after         string
	before        string
	json          bool
}

func (o searchOptions) query(text string) (types.SearchQuery, error) {
	q := types.SearchQuery{Query: text, MaxResults: o.maxResults}
	if o.threshold >= 0 {
		threshold := o.threshold
		q.Threshold = &threshold
	}

	filters := &types.SearchFilters{FileTypes: o.fileTypes, Authors: o.authors}
	var dr types.DateRange
	for _, bound := range []struct {
		value string
		dst   *time.Time
		flag  string
	}{
		{o.after, &dr.From, "after"},
		{o.before, &dr.To, "before"},
	} {
		if bound.value == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, bound.value)
		if err != nil {
			return q, fmt.Errorf("invalid --%s: %w", bound.flag, err)
		}
		*bound.dst = t
	}
	if !dr.From.IsZero() || !dr.To.IsZero() {
		filters.DateRange = &dr
	}
	if !filters.IsEmpty() {
		q.Filters = filters
	}
	return q, nil
}

// runSearch handles the search command
func runSearch(cmd *cobra.Command, configPath, text string, opts searchOptions) error {
	q, err := opts.query(text)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	resp, err := a.searcher.Search(cmd.Context(), q)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp.Results)
	}

	if len(resp.Results) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for i, r := range resp.Results {
		fmt.Fprintf(out, "%d. [%.3f] %s (%s)\n", i+1, r.Score, r.Document.Title, r.Document.SourcePath)
		fmt.Fprintf(out, "   %s\n", r.Snippet)
	}
	fmt.Fprintf(out, "\n%d results in %s\n", resp.TotalResults, resp.Duration.Round(time.Microsecond))
	return nil
}

// runRemove handles the remove command
func runRemove(cmd *cobra.Command, configPath, target string, byID bool) error {
	a, err := openApp(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if byID {
		err = a.searcher.RemoveDocument(cmd.Context(), target)
	} else {
		err = a.indexer.RemovePath(cmd.Context(), target)
	}
	if errors.Is(err, types.ErrDocumentNotFound) {
		return fmt.Errorf("%s is not indexed", target)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", target)
	return nil
}

// runStats handles the stats command
func runStats(cmd *cobra.Command, configPath string) error {
	a, err := openApp(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	status, err := a.store.GetStatus(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	stats := a.searcher.Stats()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Index Statistics")
	fmt.Fprintln(out, "================")
	fmt.Fprintf(out, "Database:        %s\n", status.Location)
	fmt.Fprintf(out, "Schema Version:  %s\n", status.SchemaVersion)
	fmt.Fprintf(out, "Build Mode:      %s\n", status.BuildMode)
	fmt.Fprintf(out, "Index Backend:   %s\n", a.cfg.IndexBackend)
	fmt.Fprintf(out, "Embedder:        %s (%s, %d dims)\n", a.embedder.Provider(), a.embedder.Model(), a.embedder.Dimension())
	fmt.Fprintf(out, "Documents:       %d\n", stats.Documents)
	fmt.Fprintf(out, "Chunks:          %d\n", stats.Chunks)
	fmt.Fprintf(out, "Vectors:         %d\n", status.Vectors)
	fmt.Fprintf(out, "Size:            %.2f MB\n", status.SizeMB)
	if !status.LastIndexedAt.IsZero() {
		fmt.Fprintf(out, "Last Indexed:    %s\n", status.LastIndexedAt.Format(time.RFC3339))
	}
	return nil
}

// runWatch handles the watch command
func runWatch(cmd *cobra.Command, configPath, dir string, debounce time.Duration) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if a.cfg.MetricsAddr != "" {
		if err := metrics.Serve(ctx, a.cfg.MetricsAddr, a.registry, a.logger); err != nil {
			return err
		}
	}

	w, err := a.watch(ctx, dir, debounce)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	<-ctx.Done()
	a.logger.Info("watch stopped")
	return nil
}

// watch indexes dir and starts a watcher keeping it in sync
func (a *app) watch(ctx context.Context, dir string, debounce time.Duration) (*indexer.Watcher, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	stats, err := a.index(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("initial indexing failed: %w", err)
	}
	a.logger.Info("initial indexing complete",
		"root", root,
		"indexed", stats.Indexed,
		"skipped", stats.Skipped,
		"removed", stats.Removed,
		"failed", stats.Failed)

	w := indexer.NewWatcher(a.indexer, root, debounce, a.lock)
	w.OnSync = func(stats *indexer.Statistics) {
		a.metrics.ObserveIndexing(stats)
	}
	if err := w.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start watcher: %w", err)
	}
	return w, nil
}
