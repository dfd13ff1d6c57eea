package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/docsearch-mcp/internal/cache"
	"github.com/dshills/docsearch-mcp/internal/indexer"
)

const namespace = "docsearch"

// SearchMetrics tracks search and ingestion activity.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewSearchMetrics(reg)
//	s := searcher.New(store, index, emb, searcher.WithObserver(m))
type SearchMetrics struct {
	// Searches counts completed searches.
	// Labels: outcome (hit|miss|error)
	Searches *prometheus.CounterVec

	// SearchDuration measures search latency in seconds.
	// Buckets: 1ms to 5s
	SearchDuration prometheus.Histogram

	// IndexedFiles counts files handled by ingestion runs.
	// Labels: result (indexed|skipped|removed|failed)
	IndexedFiles *prometheus.CounterVec

	// IndexedChunks counts chunks written by ingestion runs
	IndexedChunks prometheus.Counter
}

// NewSearchMetrics creates the search metrics and registers them with reg
func NewSearchMetrics(reg prometheus.Registerer) *SearchMetrics {
	factory := promauto.With(reg)
	return &SearchMetrics{
		Searches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "searches_total",
				Help:      "Total number of searches by outcome",
			},
			[]string{"outcome"},
		),
		SearchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Duration of searches in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		IndexedFiles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "indexed_files_total",
				Help:      "Total number of files handled by ingestion by result",
			},
			[]string{"result"},
		),
		IndexedChunks: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "indexed_chunks_total",
				Help:      "Total number of chunks written by ingestion",
			},
		),
	}
}

// ObserveSearch records one completed search
func (m *SearchMetrics) ObserveSearch(outcome string, elapsed time.Duration) {
	m.Searches.WithLabelValues(outcome).Inc()
	m.SearchDuration.Observe(elapsed.Seconds())
}

// ObserveIndexing records the result of an ingestion run
func (m *SearchMetrics) ObserveIndexing(stats *indexer.Statistics) {
	if stats == nil {
		return
	}
	m.IndexedFiles.WithLabelValues("indexed").Add(float64(stats.Indexed))
	m.IndexedFiles.WithLabelValues("skipped").Add(float64(stats.Skipped))
	m.IndexedFiles.WithLabelValues("removed").Add(float64(stats.Removed))
	m.IndexedFiles.WithLabelValues("failed").Add(float64(stats.Failed))
	m.IndexedChunks.Add(float64(stats.Chunks))
}

// cacheCollector exports a cache's counters at scrape time
type cacheCollector struct {
	name  string
	stats func() cache.Stats

	entries     *prometheus.Desc
	memory      *prometheus.Desc
	hits        *prometheus.Desc
	misses      *prometheus.Desc
	evictions   *prometheus.Desc
	expirations *prometheus.Desc
}

// RegisterCache exports the statistics of a named cache. stats is called on
// every scrape.
func RegisterCache(reg prometheus.Registerer, name string, stats func() cache.Stats) error {
	labels := prometheus.Labels{"cache": name}
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", metric), help, nil, labels)
	}

	c := &cacheCollector{
		name:        name,
		stats:       stats,
		entries:     desc("entries", "Number of live cache entries"),
		memory:      desc("memory_bytes", "Approximate bytes held by cache values"),
		hits:        desc("hits_total", "Total number of cache hits"),
		misses:      desc("misses_total", "Total number of cache misses"),
		evictions:   desc("evictions_total", "Total number of LRU evictions"),
		expirations: desc("expirations_total", "Total number of expired entries removed"),
	}
	if err := reg.Register(c); err != nil {
		return fmt.Errorf("failed to register %s cache metrics: %w", name, err)
	}
	return nil
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.memory
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.expirations
}

func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Entries))
	ch <- prometheus.MustNewConstMetric(c.memory, prometheus.GaugeValue, float64(s.MemoryBytes))
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions))
	ch <- prometheus.MustNewConstMetric(c.expirations, prometheus.CounterValue, float64(s.Expirations))
}

// Handler returns an HTTP handler exposing the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	logger.Info("serving metrics", "addr", listener.Addr().String())
	return nil
}
