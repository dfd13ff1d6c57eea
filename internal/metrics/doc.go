// Package metrics exposes Prometheus collectors for search, ingestion and
// the bounded caches.
//
// Collectors register with a caller-supplied prometheus.Registerer so tests
// and embedders can use isolated registries. SearchMetrics implements the
// searcher's Observer interface.
package metrics
