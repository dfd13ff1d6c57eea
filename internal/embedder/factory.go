package embedder

import (
	"fmt"
	"os"
	"strings"

	"github.com/dshills/docsearch-mcp/internal/cache"
)

// EnvProvider selects the embedding provider explicitly
const EnvProvider = "DOCSEARCH_EMBEDDING_PROVIDER"

// Config holds embedder configuration
type Config struct {
	// Provider is jina, openai or local; empty auto-detects from API keys
	Provider string
	APIKey   string

	// Cache is the embedding cache budget. A zero MaxEntries disables the
	// cache.
	Cache cache.Config

	// Options are applied to remote providers
	Options []ProviderOption
}

// NewFromEnv creates an embedder based on environment variables
// Priority:
// 1. DOCSEARCH_EMBEDDING_PROVIDER (jina, openai, local)
// 2. Check for API keys: JINA_API_KEY, OPENAI_API_KEY
// 3. Default to local if no API keys found
func NewFromEnv() (Embedder, error) {
	return New(Config{
		Provider: os.Getenv(EnvProvider),
		Cache:    DefaultCacheConfig(),
	})
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var c *Cache
	if cfg.Cache.MaxEntries > 0 {
		c = NewCache(cfg.Cache)
	}

	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = detect(cfg.APIKey)
	}

	var (
		emb Embedder
		err error
	)
	switch provider {
	case ProviderJina:
		emb, err = NewJinaProvider(cfg.APIKey, c, cfg.Options...)
	case ProviderOpenAI:
		emb, err = NewOpenAIProvider(cfg.APIKey, c, cfg.Options...)
	case ProviderLocal:
		emb, err = NewLocalProvider(c)
	default:
		err = fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
	if err != nil {
		if c != nil {
			_ = c.Close()
		}
		return nil, err
	}

	if c == nil {
		return emb, nil
	}
	return &cachedEmbedder{Embedder: emb, cache: c}, nil
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}
	return detect("")
}

// detect picks a provider from the available keys. An explicit key without
// a provider name is assumed to be a Jina key.
func detect(apiKey string) string {
	if apiKey != "" || os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}

// cachedEmbedder ties the embedding cache's lifetime to the embedder
type cachedEmbedder struct {
	Embedder
	cache *Cache
}

// CacheStats returns the embedding cache counters
func (c *cachedEmbedder) CacheStats() cache.Stats {
	return c.cache.Stats()
}

func (c *cachedEmbedder) Close() error {
	err := c.Embedder.Close()
	_ = c.cache.Close()
	return err
}

// CacheStatter is implemented by embedders that own an embedding cache
type CacheStatter interface {
	CacheStats() cache.Stats
}
