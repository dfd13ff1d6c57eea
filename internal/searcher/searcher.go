package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/docsearch-mcp/internal/cache"
	"github.com/dshills/docsearch-mcp/internal/embedder"
	"github.com/dshills/docsearch-mcp/internal/storage"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

// ResultKeyPrefix namespaces search results in the result cache
const ResultKeyPrefix = "search:"

// Search outcomes reported to an Observer
const (
	OutcomeHit   = "hit"
	OutcomeMiss  = "miss"
	OutcomeError = "error"
)

// DocumentStore persists the registry
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc *types.Document, chunks []*types.Chunk) error
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context) ([]*types.Document, error)
	ListChunks(ctx context.Context, documentID string) ([]*types.Chunk, error)
	ClearDocuments(ctx context.Context) error
	Location() string
}

// VectorIndex answers nearest-neighbour queries over chunk embeddings
type VectorIndex interface {
	Insert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Query(ctx context.Context, vector []float32, k int, candidates []string) ([]storage.VectorMatch, error)
	Delete(ctx context.Context, ids ...string) error
	Clear(ctx context.Context) error
}

// volatileIndex is implemented by indexes that lose their contents on restart
type volatileIndex interface {
	Volatile() bool
}

// Observer receives one call per completed search
type Observer interface {
	ObserveSearch(outcome string, elapsed time.Duration)
}

// Config controls the search pipeline
type Config struct {
	EnablePrefiltering   bool
	EnableResultCaching  bool
	EnableQueryRewriting bool

	// MaxResults is used when a query does not set one
	MaxResults int

	// LargeResultTTL replaces the cache default for responses with more
	// than largeResultCount results
	LargeResultTTL time.Duration

	// SlowQueryThreshold marks searches recorded in the slow-query ring
	SlowQueryThreshold time.Duration

	// Cache configures the result cache owned by the searcher
	Cache cache.Config
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() Config {
	return Config{
		EnablePrefiltering:   true,
		EnableResultCaching:  true,
		EnableQueryRewriting: true,
		MaxResults:           types.DefaultMaxResults,
		LargeResultTTL:       5 * time.Minute,
		SlowQueryThreshold:   time.Second,
		Cache: cache.Config{
			Name:           "search",
			MaxEntries:     cache.DefaultMaxEntries,
			MaxMemoryBytes: cache.DefaultMaxMemoryBytes,
			DefaultTTL:     cache.DefaultTTL,
			SweepInterval:  time.Minute,
		},
	}
}

// Option configures a Searcher
type Option func(*Searcher)

// WithConfig replaces the default configuration
func WithConfig(cfg Config) Option {
	return func(s *Searcher) {
		s.cfg = cfg
	}
}

// WithLogger sets the logger used by the searcher
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) {
		s.logger = logger
	}
}

// WithResultCache makes the searcher use an existing result cache instead of
// creating its own. The searcher does not close a cache it did not create.
func WithResultCache(c *cache.Cache[*SearchResponse]) Option {
	return func(s *Searcher) {
		s.cache = c
	}
}

// WithObserver registers a search observer, typically metrics
func WithObserver(o Observer) Option {
	return func(s *Searcher) {
		s.observer = o
	}
}

// SearchResponse contains ranked results and metadata about the search
type SearchResponse struct {
	Results      []types.SearchResult
	TotalResults int
	Query        string // Query text sent to the embedder
	Duration     time.Duration
	CacheHit     bool
	Prefiltered  bool
}

// ApproxSize reports the bytes held by the response for cache accounting
func (r *SearchResponse) ApproxSize() int64 {
	size := int64(len(r.Query)) + 64
	for _, res := range r.Results {
		size += int64(len(res.Snippet)) + 64
		if res.Chunk != nil {
			size += int64(len(res.Chunk.Content)) + int64(len(res.Chunk.Embedding))*4
		}
		if res.Document != nil {
			size += int64(len(res.Document.Content) + len(res.Document.Title) + len(res.Document.SourcePath))
		}
	}
	return size
}

// Clone returns a deep copy of the response
func (r *SearchResponse) Clone() *SearchResponse {
	dst := *r
	dst.Results = make([]types.SearchResult, len(r.Results))
	for i, res := range r.Results {
		dst.Results[i] = res.Clone()
	}
	return &dst
}

// Stats is a point-in-time view of the searcher
type Stats struct {
	Search      types.SearchStats
	Documents   int
	Chunks      int
	ResultCache cache.Stats
}

// Searcher owns the document registry and the result cache and runs the
// search pipeline against a vector index
type Searcher struct {
	store    DocumentStore
	index    VectorIndex
	embedder embedder.Embedder

	cfg       Config
	logger    *slog.Logger
	observer  Observer
	cache     *cache.Cache[*SearchResponse]
	ownsCache bool

	// mu guards the registry; writeMu serializes registry mutations so
	// index, store and registry updates never interleave
	mu       sync.RWMutex
	writeMu  sync.Mutex
	registry *registry
	loaded   atomic.Bool

	// generation is bumped under mu on every registry change. A search only
	// caches its response if the generation it started from is still current.
	generation atomic.Uint64

	stats *statsRecorder
	now   func() time.Time
}

// New creates a Searcher. Load must be called before searching.
func New(store DocumentStore, index VectorIndex, emb embedder.Embedder, opts ...Option) *Searcher {
	s := &Searcher{
		store:    store,
		index:    index,
		embedder: emb,
		cfg:      DefaultConfig(),
		registry: newRegistry(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.cache == nil {
		cacheCfg := s.cfg.Cache
		if cacheCfg.Name == "" {
			cacheCfg.Name = "search"
		}
		if cacheCfg.Logger == nil {
			cacheCfg.Logger = s.logger
		}
		s.cache = cache.New[*SearchResponse](cacheCfg)
		s.ownsCache = true
	}
	s.stats = newStatsRecorder(s.cfg.SlowQueryThreshold)

	return s
}

// Load restores the registry from the document store. When the vector index
// does not survive restarts, stored chunk embeddings are re-inserted.
func (s *Searcher) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	reinsert := false
	if v, ok := s.index.(volatileIndex); ok && v.Volatile() {
		reinsert = true
	}

	reg := newRegistry()
	vectors := 0
	for _, doc := range docs {
		chunks, err := s.store.ListChunks(ctx, doc.ID)
		if err != nil {
			return fmt.Errorf("failed to list chunks for %s: %w", doc.ID, err)
		}
		if reinsert {
			for _, chunk := range chunks {
				if !chunk.HasEmbedding() {
					continue
				}
				if err := s.index.Insert(ctx, chunk.ID, chunk.Embedding, vectorMetadata(chunk)); err != nil {
					return fmt.Errorf("failed to restore vector %s: %w", chunk.ID, err)
				}
				vectors++
			}
		}
		reg.put(doc, chunks)
	}

	s.mu.Lock()
	s.registry = reg
	s.generation.Add(1)
	s.mu.Unlock()
	s.loaded.Store(true)

	s.logger.Info("search registry loaded",
		"store", s.store.Location(),
		"documents", len(reg.documents),
		"chunks", len(reg.chunks),
		"restored_vectors", vectors)

	return nil
}

// Search runs a query through the pipeline. An empty result is not an
// error; any failure after the cache lookup is returned as *types.SearchError
// and no partial results are returned.
func (s *Searcher) Search(ctx context.Context, q types.SearchQuery) (*SearchResponse, error) {
	if !s.loaded.Load() {
		return nil, types.ErrNotInitialized
	}

	start := s.now()
	key := CacheKey(q)

	if s.cfg.EnableResultCaching {
		if cached, ok := s.cache.Get(key); ok {
			resp := cached.Clone()
			resp.CacheHit = true
			resp.Duration = s.now().Sub(start)
			s.finish(q.Query, OutcomeHit, resp.Duration)
			return resp, nil
		}
	}

	fail := func(op string, err error) error {
		elapsed := s.now().Sub(start)
		s.finish(q.Query, OutcomeError, elapsed)
		s.logger.Warn("search failed", "op", op, "query", q.Query, "error", err)
		return &types.SearchError{
			Op:      op,
			Store:   s.store.Location(),
			Query:   q.Query,
			Elapsed: elapsed,
			Err:     err,
		}
	}

	prepared := q
	if s.cfg.EnableQueryRewriting {
		prepared = OptimizeQuery(prepared)
	}
	prepared, err := ValidateQuery(prepared, s.cfg.MaxResults)
	if err != nil {
		return nil, fail("validate query", err)
	}

	resp := &SearchResponse{Query: prepared.Query, Results: []types.SearchResult{}}
	generation := s.generation.Load()

	var candidates []string
	if s.cfg.EnablePrefiltering && !prepared.Filters.IsEmpty() {
		candidates = s.candidates(prepared.Filters)
		resp.Prefiltered = true
		if len(candidates) == 0 {
			resp.Duration = s.now().Sub(start)
			s.finish(q.Query, OutcomeMiss, resp.Duration)
			return resp, nil
		}
	}

	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: prepared.Query})
	if err != nil {
		return nil, fail("embed query", err)
	}

	k := prepared.MaxResults * 2
	if candidates != nil && k > len(candidates) {
		k = len(candidates)
	}

	matches, err := s.index.Query(ctx, emb.Vector, k, candidates)
	if err != nil {
		return nil, fail("query index", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fail("query index", err)
	}

	results := s.collect(matches, prepared, resp.Prefiltered)

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	tokens := queryTokens(prepared.Query)
	for i := range results {
		results[i].Snippet = ExtractSnippet(results[i].Chunk.Content, tokens)
	}

	resp.Results = results
	resp.TotalResults = len(results)
	resp.Duration = s.now().Sub(start)

	if s.cfg.EnableResultCaching && len(results) > 0 {
		if !s.cacheResponse(key, resp, generation) {
			s.logger.Debug("registry changed during search, response not cached", "query", q.Query)
		}
	}

	s.finish(q.Query, OutcomeMiss, resp.Duration)
	s.logger.Debug("search completed",
		"query", q.Query,
		"rewritten", prepared.Query,
		"results", resp.TotalResults,
		"prefiltered", resp.Prefiltered,
		"duration", resp.Duration)

	return resp, nil
}

// largeResultCount is the result count above which LargeResultTTL applies
const largeResultCount = 20

// cacheResponse stores resp unless the registry changed since generation.
// Holding mu makes the check and the write atomic with respect to registry
// updates, whose invalidation always follows the generation bump.
func (s *Searcher) cacheResponse(key string, resp *SearchResponse, generation uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.generation.Load() != generation {
		return false
	}

	var ttl time.Duration
	if len(resp.Results) > largeResultCount {
		ttl = s.cfg.LargeResultTTL
	}
	s.cache.Set(key, resp.Clone(), ttl)
	return true
}

// collect resolves index matches against the registry, dropping duplicates,
// stale IDs, filtered documents and scores under the threshold
func (s *Searcher) collect(matches []storage.VectorMatch, q types.SearchQuery, prefiltered bool) []types.SearchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	checkFilters := !prefiltered && !q.Filters.IsEmpty()
	seen := make(map[string]struct{}, len(matches))
	results := make([]types.SearchResult, 0, min(len(matches), q.MaxResults))

	for _, m := range matches {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}

		chunk, doc, ok := s.registry.resolve(m.ID)
		if !ok {
			continue
		}
		if checkFilters && !MatchFilters(doc, q.Filters) {
			continue
		}
		if q.Threshold != nil && m.Score < *q.Threshold {
			continue
		}

		results = append(results, types.SearchResult{
			Chunk:    chunk.Clone(),
			Document: doc.Clone(),
			Score:    m.Score,
		})
		if len(results) >= q.MaxResults {
			break
		}
	}

	return results
}

// candidates returns the chunk IDs of every document matching filters
func (s *Searcher) candidates(filters *types.SearchFilters) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.candidates(filters)
}

func (s *Searcher) finish(query, outcome string, elapsed time.Duration) {
	s.stats.record(query, outcome, elapsed, s.now())
	if s.observer != nil {
		s.observer.ObserveSearch(outcome, elapsed)
	}
}

// IndexDocument adds or replaces a document and its chunks. Every chunk must
// carry an embedding. Vectors are written first, then the store, and only
// then is the document published to searches.
func (s *Searcher) IndexDocument(ctx context.Context, doc *types.Document, chunks []*types.Chunk) error {
	if !s.loaded.Load() {
		return types.ErrNotInitialized
	}
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("invalid document: %w", err)
	}

	stored := doc.Clone()
	storedChunks := make([]*types.Chunk, len(chunks))
	for i, chunk := range chunks {
		if !chunk.HasEmbedding() {
			return fmt.Errorf("chunk %s: %w", chunk.ID, types.ErrMissingEmbedding)
		}
		if err := chunk.ValidateAgainst(doc); err != nil {
			return fmt.Errorf("invalid chunk %s: %w", chunk.ID, err)
		}
		storedChunks[i] = chunk.Clone()
	}
	sort.SliceStable(storedChunks, func(i, j int) bool {
		return storedChunks[i].ChunkIndex < storedChunks[j].ChunkIndex
	})
	stored.ChunkIDs = make([]string, len(storedChunks))
	for i, chunk := range storedChunks {
		stored.ChunkIDs[i] = chunk.ID
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	previous := s.registry.chunksOf(doc.ID)
	s.mu.RUnlock()

	inserted := make([]string, 0, len(storedChunks))
	for _, chunk := range storedChunks {
		if err := s.index.Insert(ctx, chunk.ID, chunk.Embedding, vectorMetadata(chunk)); err != nil {
			s.restoreVectors(ctx, inserted, previous)
			return fmt.Errorf("failed to insert vector %s: %w", chunk.ID, err)
		}
		inserted = append(inserted, chunk.ID)
	}

	if err := s.store.SaveDocument(ctx, stored, storedChunks); err != nil {
		s.restoreVectors(ctx, inserted, previous)
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}

	stale := make([]string, 0)
	current := make(map[string]struct{}, len(inserted))
	for _, id := range inserted {
		current[id] = struct{}{}
	}
	for id := range previous {
		if _, ok := current[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := s.index.Delete(ctx, stale...); err != nil {
			s.logger.Warn("failed to delete stale vectors", "document", doc.ID, "count", len(stale), "error", err)
		}
	}

	s.mu.Lock()
	s.registry.put(stored, storedChunks)
	s.generation.Add(1)
	s.mu.Unlock()

	removed := s.cache.InvalidatePattern(ResultKeyPrefix)
	s.logger.Debug("document indexed",
		"document", doc.ID,
		"chunks", len(storedChunks),
		"replaced", len(previous) > 0,
		"invalidated_results", removed)

	return nil
}

// restoreVectors undoes a partial vector write: new IDs are deleted and IDs
// that belonged to the previous version get their old embedding back
func (s *Searcher) restoreVectors(ctx context.Context, inserted []string, previous map[string]*types.Chunk) {
	ctx = context.WithoutCancel(ctx)
	var orphans []string
	for _, id := range inserted {
		old, ok := previous[id]
		if !ok {
			orphans = append(orphans, id)
			continue
		}
		if err := s.index.Insert(ctx, id, old.Embedding, vectorMetadata(old)); err != nil {
			s.logger.Warn("failed to restore vector", "chunk", id, "error", err)
		}
	}
	if len(orphans) > 0 {
		if err := s.index.Delete(ctx, orphans...); err != nil {
			s.logger.Warn("failed to remove orphaned vectors", "count", len(orphans), "error", err)
		}
	}
}

// RemoveDocument deletes a document, its chunks and their vectors
func (s *Searcher) RemoveDocument(ctx context.Context, id string) error {
	if !s.loaded.Load() {
		return types.ErrNotInitialized
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	_, exists := s.registry.documents[id]
	chunkIDs := s.registry.chunkIDsOf(id)
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%w: %s", types.ErrDocumentNotFound, id)
	}

	if err := s.store.DeleteDocument(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}

	s.mu.Lock()
	s.registry.remove(id)
	s.generation.Add(1)
	s.mu.Unlock()

	if len(chunkIDs) > 0 {
		if err := s.index.Delete(ctx, chunkIDs...); err != nil {
			s.logger.Warn("failed to delete vectors", "document", id, "count", len(chunkIDs), "error", err)
		}
	}

	s.cache.InvalidatePattern(ResultKeyPrefix)
	s.logger.Debug("document removed", "document", id, "chunks", len(chunkIDs))

	return nil
}

// Clear removes every document, vector and cached result
func (s *Searcher) Clear(ctx context.Context) error {
	if !s.loaded.Load() {
		return types.ErrNotInitialized
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.store.ClearDocuments(ctx); err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}
	if err := s.index.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear vector index: %w", err)
	}

	s.mu.Lock()
	s.registry = newRegistry()
	s.generation.Add(1)
	s.mu.Unlock()

	s.cache.Clear()
	s.logger.Info("search registry cleared", "store", s.store.Location())

	return nil
}

// Document returns a copy of a registered document
func (s *Searcher) Document(id string) (*types.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.registry.documents[id]
	if !ok {
		return nil, false
	}
	return doc.Clone(), true
}

// Documents returns copies of all registered documents ordered by ID
func (s *Searcher) Documents() []*types.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*types.Document, 0, len(s.registry.documents))
	for _, doc := range s.registry.documents {
		docs = append(docs, doc.Clone())
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

// Stats returns search counters, registry sizes and result cache statistics
func (s *Searcher) Stats() Stats {
	s.mu.RLock()
	docs, chunks := len(s.registry.documents), len(s.registry.chunks)
	s.mu.RUnlock()

	return Stats{
		Search:      s.stats.snapshot(),
		Documents:   docs,
		Chunks:      chunks,
		ResultCache: s.cache.Stats(),
	}
}

// ResultCacheStats returns result cache statistics
func (s *Searcher) ResultCacheStats() cache.Stats {
	return s.cache.Stats()
}

// ClearCache drops every cached search result
func (s *Searcher) ClearCache() {
	s.cache.Clear()
}

// Close stops the result cache sweeper when the searcher owns the cache
func (s *Searcher) Close() error {
	if s.ownsCache {
		return s.cache.Close()
	}
	return nil
}

func vectorMetadata(chunk *types.Chunk) map[string]string {
	return map[string]string{
		"document_id": chunk.DocumentID,
		"chunk_index": fmt.Sprintf("%d", chunk.ChunkIndex),
	}
}
