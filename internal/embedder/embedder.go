package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/docsearch-mcp/internal/cache"
)

// Common errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// CacheKeyPrefix namespaces embedding entries in their cache
const CacheKeyPrefix = "embedding:"

// Embedding represents a vector embedding with metadata
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // Content hash for caching
}

// ApproxSize reports the bytes held by the embedding for cache accounting
func (e *Embedding) ApproxSize() int64 {
	return int64(len(e.Vector))*4 + int64(len(e.Provider)+len(e.Model)+len(e.Hash)) + 32
}

// Clone returns a deep copy of the embedding
func (e *Embedding) Clone() *Embedding {
	vectorCopy := make([]float32, len(e.Vector))
	copy(vectorCopy, e.Vector)
	clone := *e
	clone.Vector = vectorCopy
	return &clone
}

// EmbeddingRequest represents a request to generate embeddings
type EmbeddingRequest struct {
	Text  string
	Model string // Optional: override default model
}

// BatchEmbeddingRequest represents a batch request
type BatchEmbeddingRequest struct {
	Texts []string
	Model string // Optional: override default model
}

// BatchEmbeddingResponse represents a batch response
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder interface defines methods for generating embeddings
type Embedder interface {
	// GenerateEmbedding generates a single embedding for the given text
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)

	// GenerateBatch generates embeddings for multiple texts efficiently
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	// Dimension returns the embedding dimension for this provider
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// DefaultCacheConfig returns the budget used for the embedding cache
func DefaultCacheConfig() cache.Config {
	return cache.Config{
		Name:           "embedding",
		MaxEntries:     10000,
		MaxMemoryBytes: 100 * 1024 * 1024,
		DefaultTTL:     24 * time.Hour,
		SweepInterval:  5 * time.Minute,
	}
}

// Cache holds embeddings by content hash in a bounded cache of its own
type Cache struct {
	cache *cache.Cache[*Embedding]
}

// NewCache creates an embedding cache with the given budget
func NewCache(cfg cache.Config) *Cache {
	if cfg.Name == "" {
		cfg.Name = "embedding"
	}
	return &Cache{
		cache: cache.New[*Embedding](cfg),
	}
}

// Get retrieves a deep copy of an embedding from cache
// Returns a copy to prevent caller mutations from affecting cached values
func (c *Cache) Get(hash string) (*Embedding, bool) {
	emb, ok := c.cache.Get(CacheKeyPrefix + hash)
	if !ok {
		return nil, false
	}
	return emb.Clone(), true
}

// Set stores a copy of an embedding using the cache's default TTL
func (c *Cache) Set(hash string, emb *Embedding) {
	c.cache.Set(CacheKeyPrefix+hash, emb.Clone(), 0)
}

// GetOrGenerate returns the cached embedding for text or generates it once,
// even when several goroutines ask for the same text concurrently
func (c *Cache) GetOrGenerate(ctx context.Context, text string, generate func(ctx context.Context) (*Embedding, error)) (*Embedding, error) {
	hash := ComputeHash(text)
	emb, err := c.cache.GetOrSet(ctx, CacheKeyPrefix+hash, func(ctx context.Context) (*Embedding, error) {
		emb, err := generate(ctx)
		if err != nil {
			return nil, err
		}
		stored := emb.Clone()
		stored.Hash = hash
		return stored, nil
	}, 0)
	if err != nil {
		return nil, err
	}
	return emb.Clone(), nil
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Clear()
}

// Stats returns the underlying cache counters
func (c *Cache) Stats() cache.Stats {
	return c.cache.Stats()
}

// Close stops the cache's background sweeper
func (c *Cache) Close() error {
	return c.cache.Close()
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// ValidateRequest validates an embedding request
func ValidateRequest(req EmbeddingRequest) error {
	if req.Text == "" {
		return ErrEmptyText
	}
	return nil
}

// ValidateBatchRequest validates a batch embedding request
func ValidateBatchRequest(req BatchEmbeddingRequest) error {
	if len(req.Texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}

	for i, text := range req.Texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}

	return nil
}
