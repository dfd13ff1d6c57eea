package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dshills/docsearch-mcp/internal/config"
	"github.com/dshills/docsearch-mcp/internal/embedder"
	"github.com/dshills/docsearch-mcp/internal/indexer"
	"github.com/dshills/docsearch-mcp/internal/metrics"
	"github.com/dshills/docsearch-mcp/internal/searcher"
	"github.com/dshills/docsearch-mcp/internal/storage"
)

// app holds the wired components shared by every command
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *storage.SQLiteStorage
	embedder embedder.Embedder
	searcher *searcher.Searcher
	indexer  *indexer.Indexer
	lock     *indexer.IndexLock

	registry *prometheus.Registry
	metrics  *metrics.SearchMetrics
}

// openApp loads configuration, opens the store and loads the index
func openApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Logs go to stderr; stdout is reserved for MCP and command output
	logger, err := config.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}

	dbPath := cfg.DBPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embCfg := cfg.EmbedderConfig()
	embCfg.Cache.Logger = logger
	emb, err := embedder.New(embCfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	var index searcher.VectorIndex = store
	if cfg.IndexBackend == config.BackendMemory {
		index = storage.NewMemoryIndex()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	searchMetrics := metrics.NewSearchMetrics(registry)

	searchCfg := cfg.SearcherConfig()
	searchCfg.Cache.Logger = logger
	srch := searcher.New(store, index, emb,
		searcher.WithConfig(searchCfg),
		searcher.WithLogger(logger),
		searcher.WithObserver(searchMetrics),
	)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		embedder: emb,
		searcher: srch,
		indexer:  indexer.New(srch, emb, ptr(cfg.IndexerConfig(logger))),
		lock:     &indexer.IndexLock{},
		registry: registry,
		metrics:  searchMetrics,
	}

	if err := a.registerCaches(); err != nil {
		_ = a.Close()
		return nil, err
	}

	if err := srch.Load(ctx); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to load index: %w", err)
	}

	logger.Debug("index loaded",
		"db", dbPath,
		"backend", cfg.IndexBackend,
		"provider", emb.Provider(),
		"model", emb.Model(),
		"build_mode", storage.BuildMode)

	return a, nil
}

func (a *app) registerCaches() error {
	if err := metrics.RegisterCache(a.registry, "search", a.searcher.ResultCacheStats); err != nil {
		return fmt.Errorf("failed to register search cache metrics: %w", err)
	}
	if statter, ok := a.embedder.(embedder.CacheStatter); ok {
		if err := metrics.RegisterCache(a.registry, "embedding", statter.CacheStats); err != nil {
			return fmt.Errorf("failed to register embedding cache metrics: %w", err)
		}
	}
	return nil
}

// index runs an ingestion under the index lock and records its metrics
func (a *app) index(ctx context.Context, path string) (*indexer.Statistics, error) {
	var stats *indexer.Statistics
	err := a.lock.Run(func() error {
		var err error
		stats, err = a.indexer.IndexPath(ctx, path)
		return err
	})
	if stats != nil {
		a.metrics.ObserveIndexing(stats)
	}
	return stats, err
}

// Close releases the searcher, embedder and store
func (a *app) Close() error {
	return errors.Join(
		a.searcher.Close(),
		a.embedder.Close(),
		a.store.Close(),
	)
}

func ptr[T any](v T) *T {
	return &v
}
