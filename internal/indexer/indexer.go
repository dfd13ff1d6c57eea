package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/docsearch-mcp/internal/chunker"
	"github.com/dshills/docsearch-mcp/internal/embedder"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

// DocumentIndex receives prepared documents. The searcher implements it.
type DocumentIndex interface {
	IndexDocument(ctx context.Context, doc *types.Document, chunks []*types.Chunk) error
	RemoveDocument(ctx context.Context, id string) error
	Document(id string) (*types.Document, bool)
}

// Indexer coordinates the ingestion pipeline: read -> chunk -> embed -> index
type Indexer struct {
	chunker  *chunker.Chunker
	embedder embedder.Embedder
	target   DocumentIndex
	config   Config
	logger   *slog.Logger
}

// Config contains configuration for the indexer
type Config struct {
	Workers    int      // Number of files prepared concurrently (default: runtime.NumCPU())
	BatchSize  int      // Chunks per embedding request (default: embedder.DefaultBatchSize)
	Extensions []string // File extensions to ingest, with leading dot
	Chunking   chunker.Options
	Logger     *slog.Logger
}

// DefaultExtensions lists the plain-text formats ingested when none are configured
var DefaultExtensions = []string{".txt", ".md", ".markdown", ".rst", ".text"}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() Config {
	return Config{
		Workers:    runtime.NumCPU(),
		BatchSize:  embedder.DefaultBatchSize,
		Extensions: DefaultExtensions,
		Chunking:   chunker.DefaultOptions(),
	}
}

// Statistics contains statistics about an ingestion run
type Statistics struct {
	Indexed  int
	Skipped  int
	Removed  int
	Failed   int
	Chunks   int
	Duration time.Duration
	Errors   []string // One "path: error" entry per failed file
}

// New creates a new Indexer. A nil config uses DefaultConfig.
func New(target DocumentIndex, emb embedder.Embedder, config *Config) *Indexer {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = embedder.DefaultBatchSize
	}
	if cfg.BatchSize > embedder.MaxBatchSize {
		cfg.BatchSize = embedder.MaxBatchSize
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	if cfg.Chunking.ChunkSize <= 0 {
		cfg.Chunking = chunker.DefaultOptions()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Indexer{
		chunker:  chunker.NewWithOptions(cfg.Chunking),
		embedder: emb,
		target:   target,
		config:   cfg,
		logger:   logger,
	}
}

// IndexPath ingests a single file or every matching file below a directory
func (idx *Indexer) IndexPath(ctx context.Context, root string) (*Statistics, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return idx.IndexFiles(ctx, []string{root})
	}

	files, err := idx.DiscoverFiles(root)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	return idx.IndexFiles(ctx, files)
}

// DiscoverFiles finds files with a configured extension, skipping hidden
// directories
func (idx *Indexer) DiscoverFiles(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if idx.Accepts(path) {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// Accepts reports whether path has an extension the indexer ingests
func (idx *Indexer) Accepts(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range idx.config.Extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// IndexFiles ingests files concurrently. A failing file is recorded in
// Statistics.Errors and does not stop the others; only cancellation aborts
// the run.
func (idx *Indexer) IndexFiles(ctx context.Context, paths []string) (*Statistics, error) {
	startTime := time.Now()
	stats := &Statistics{Errors: make([]string, 0)}

	var (
		indexed atomic.Int32
		skipped atomic.Int32
		failed  atomic.Int32
		chunks  atomic.Int32
		mu      sync.Mutex // Protect stats.Errors
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.config.Workers)

	for _, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			n, wasSkipped, err := idx.indexFile(gctx, path)
			switch {
			case err != nil && gctx.Err() != nil:
				return gctx.Err()
			case err != nil:
				failed.Add(1)
				mu.Lock()
				stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", path, err))
				mu.Unlock()
				idx.logger.Warn("failed to index file", "path", path, "error", err)
			case wasSkipped:
				skipped.Add(1)
			default:
				indexed.Add(1)
				chunks.Add(int32(n))
			}
			return nil
		})
	}

	err := g.Wait()

	stats.Indexed = int(indexed.Load())
	stats.Skipped = int(skipped.Load())
	stats.Failed = int(failed.Load())
	stats.Chunks = int(chunks.Load())
	stats.Duration = time.Since(startTime)

	if err != nil {
		return stats, fmt.Errorf("indexing interrupted: %w", err)
	}

	idx.logger.Info("indexing complete",
		"indexed", stats.Indexed,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"chunks", stats.Chunks,
		"duration", stats.Duration)

	return stats, nil
}

// indexFile ingests one file and returns the number of chunks written
func (idx *Indexer) indexFile(ctx context.Context, path string) (int, bool, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return 0, false, err
	}

	// Unchanged content is skipped
	if existing, ok := idx.target.Document(doc.ID); ok && existing.ContentHash == doc.ContentHash {
		return 0, true, nil
	}

	chunks := idx.chunker.ChunkDocument(doc)
	if err := idx.embedChunks(ctx, chunks); err != nil {
		return 0, false, fmt.Errorf("failed to embed chunks: %w", err)
	}

	if err := idx.target.IndexDocument(ctx, doc, chunks); err != nil {
		return 0, false, err
	}

	idx.logger.Debug("file indexed", "path", path, "document", doc.ID, "chunks", len(chunks))
	return len(chunks), false, nil
}

// embedChunks attaches embeddings to chunks in batches
func (idx *Indexer) embedChunks(ctx context.Context, chunks []*types.Chunk) error {
	for start := 0; start < len(chunks); start += idx.config.BatchSize {
		end := min(start+idx.config.BatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Content
		}

		resp, err := idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
		if err != nil {
			return err
		}
		if len(resp.Embeddings) != len(batch) {
			return fmt.Errorf("%w: got %d embeddings for %d chunks", embedder.ErrProviderFailed, len(resp.Embeddings), len(batch))
		}
		for i, emb := range resp.Embeddings {
			if emb == nil {
				return fmt.Errorf("%w: missing embedding for chunk %s", embedder.ErrProviderFailed, batch[i].ID)
			}
			batch[i].Embedding = emb.Vector
		}
	}
	return nil
}

// RemovePath removes the document ingested from path
func (idx *Indexer) RemovePath(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return idx.target.RemoveDocument(ctx, DocumentID(abs))
}

// removeMissing removes path if it was indexed, ignoring unknown paths
func (idx *Indexer) removeMissing(ctx context.Context, path string) (bool, error) {
	err := idx.RemovePath(ctx, path)
	if errors.Is(err, types.ErrDocumentNotFound) {
		return false, nil
	}
	return err == nil, err
}
