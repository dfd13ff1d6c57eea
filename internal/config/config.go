package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dshills/docsearch-mcp/internal/cache"
	"github.com/dshills/docsearch-mcp/internal/chunker"
	"github.com/dshills/docsearch-mcp/internal/embedder"
	"github.com/dshills/docsearch-mcp/internal/indexer"
	"github.com/dshills/docsearch-mcp/internal/searcher"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

// Environment variables that override the configuration file
const (
	EnvDBPath       = "DOCSEARCH_DB_PATH"
	EnvIndexBackend = "DOCSEARCH_INDEX_BACKEND"
	EnvLogLevel     = "DOCSEARCH_LOG_LEVEL"
	EnvLogFormat    = "DOCSEARCH_LOG_FORMAT"
	EnvMetricsAddr  = "DOCSEARCH_METRICS_ADDR"
)

// Index backends
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// DefaultDBPath is the default location of the database file
const DefaultDBPath = "~/.docsearch/docsearch.db"

// Config is the main configuration structure
type Config struct {
	DatabasePath string         `yaml:"database_path"`
	IndexBackend string         `yaml:"index_backend"`
	Chunking     ChunkingConfig `yaml:"chunking"`
	Search       SearchConfig   `yaml:"search"`
	Cache        CacheConfig    `yaml:"cache"`
	Embedder     EmbedderConfig `yaml:"embedder"`
	Indexer      IndexerConfig  `yaml:"indexer"`
	Log          LogConfig      `yaml:"log"`
	MetricsAddr  string         `yaml:"metrics_addr"`
}

type ChunkingConfig struct {
	ChunkSize          int  `yaml:"chunk_size"`
	ChunkOverlap       int  `yaml:"chunk_overlap"`
	PreserveSentences  bool `yaml:"preserve_sentences"`
	PreserveParagraphs bool `yaml:"preserve_paragraphs"`
}

type SearchConfig struct {
	EnablePrefiltering   bool          `yaml:"enable_prefiltering"`
	EnableResultCaching  bool          `yaml:"enable_result_caching"`
	EnableQueryRewriting bool          `yaml:"enable_query_rewriting"`
	MaxResults           int           `yaml:"max_results"`
	LargeResultTTL       time.Duration `yaml:"large_result_ttl"`
	SlowQueryThreshold   time.Duration `yaml:"slow_query_threshold"`
}

type CacheConfig struct {
	Search    CacheLimits `yaml:"search"`
	Embedding CacheLimits `yaml:"embedding"`
}

type CacheLimits struct {
	MaxEntries     int           `yaml:"max_entries"`
	MaxMemoryBytes int64         `yaml:"max_memory_bytes"`
	DefaultTTL     time.Duration `yaml:"default_ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

type EmbedderConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
}

type IndexerConfig struct {
	Workers    int      `yaml:"workers"`
	Extensions []string `yaml:"extensions"`
	BatchSize  int      `yaml:"batch_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration
func Default() *Config {
	embeddingCache := embedder.DefaultCacheConfig()
	return &Config{
		DatabasePath: DefaultDBPath,
		IndexBackend: BackendSQLite,
		Chunking: ChunkingConfig{
			ChunkSize:          chunker.DefaultChunkSize,
			ChunkOverlap:       chunker.DefaultChunkOverlap,
			PreserveSentences:  true,
			PreserveParagraphs: true,
		},
		Search: SearchConfig{
			EnablePrefiltering:   true,
			EnableResultCaching:  true,
			EnableQueryRewriting: true,
			MaxResults:           types.DefaultMaxResults,
			LargeResultTTL:       5 * time.Minute,
			SlowQueryThreshold:   time.Second,
		},
		Cache: CacheConfig{
			Search: CacheLimits{
				MaxEntries:     cache.DefaultMaxEntries,
				MaxMemoryBytes: cache.DefaultMaxMemoryBytes,
				DefaultTTL:     cache.DefaultTTL,
				SweepInterval:  time.Minute,
			},
			Embedding: CacheLimits{
				MaxEntries:     embeddingCache.MaxEntries,
				MaxMemoryBytes: embeddingCache.MaxMemoryBytes,
				DefaultTTL:     embeddingCache.DefaultTTL,
				SweepInterval:  embeddingCache.SweepInterval,
			},
		},
		Indexer: IndexerConfig{
			Workers:    4,
			Extensions: append([]string(nil), indexer.DefaultExtensions...),
			BatchSize:  embedder.DefaultBatchSize,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, a .env file in the working
// directory, the YAML file at path (optional) and environment overrides.
// Values in the YAML file may reference environment variables as ${VAR}.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(ExpandHome(path))
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.parse(data); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse overlays YAML onto the receiver. Keys absent from the document keep
// their current values.
func (c *Config) parse(data []byte) error {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv(EnvIndexBackend); v != "" {
		c.IndexBackend = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv(embedder.EnvProvider); v != "" {
		c.Embedder.Provider = v
	}
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return errors.New("database_path is required")
	}

	switch c.IndexBackend {
	case BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("index_backend must be %q or %q, got %q", BackendSQLite, BackendMemory, c.IndexBackend)
	}

	if err := c.ChunkerOptions().Validate(); err != nil {
		return fmt.Errorf("chunking: %w", err)
	}

	if c.Search.MaxResults < 1 || c.Search.MaxResults > types.MaxResultsLimit {
		return fmt.Errorf("search.max_results must be between 1 and %d", types.MaxResultsLimit)
	}
	if c.Search.LargeResultTTL < 0 || c.Search.SlowQueryThreshold < 0 {
		return errors.New("search durations must not be negative")
	}

	for name, limits := range map[string]CacheLimits{"search": c.Cache.Search, "embedding": c.Cache.Embedding} {
		if limits.MaxEntries < 0 || limits.MaxMemoryBytes < 0 || limits.DefaultTTL < 0 || limits.SweepInterval < 0 {
			return fmt.Errorf("cache.%s limits must not be negative", name)
		}
	}

	switch strings.ToLower(c.Embedder.Provider) {
	case "", embedder.ProviderJina, embedder.ProviderOpenAI, embedder.ProviderLocal:
	default:
		return fmt.Errorf("unknown embedder provider %q", c.Embedder.Provider)
	}

	if c.Indexer.Workers < 0 {
		return errors.New("indexer.workers must not be negative")
	}
	if c.Indexer.BatchSize < 0 || c.Indexer.BatchSize > embedder.MaxBatchSize {
		return fmt.Errorf("indexer.batch_size must be between 0 and %d", embedder.MaxBatchSize)
	}
	for _, ext := range c.Indexer.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("indexer extension %q must start with a dot", ext)
		}
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// DBPath returns the database path with ~ expanded
func (c *Config) DBPath() string {
	return ExpandHome(c.DatabasePath)
}

// ChunkerOptions converts the chunking section
func (c *Config) ChunkerOptions() chunker.Options {
	return chunker.Options{
		ChunkSize:          c.Chunking.ChunkSize,
		ChunkOverlap:       c.Chunking.ChunkOverlap,
		PreserveSentences:  c.Chunking.PreserveSentences,
		PreserveParagraphs: c.Chunking.PreserveParagraphs,
	}
}

// SearcherConfig converts the search and result cache sections
func (c *Config) SearcherConfig() searcher.Config {
	return searcher.Config{
		EnablePrefiltering:   c.Search.EnablePrefiltering,
		EnableResultCaching:  c.Search.EnableResultCaching,
		EnableQueryRewriting: c.Search.EnableQueryRewriting,
		MaxResults:           c.Search.MaxResults,
		LargeResultTTL:       c.Search.LargeResultTTL,
		SlowQueryThreshold:   c.Search.SlowQueryThreshold,
		Cache:                c.Cache.Search.cacheConfig("search"),
	}
}

// EmbedderConfig converts the embedder and embedding cache sections
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider: c.Embedder.Provider,
		APIKey:   c.Embedder.APIKey,
		Cache:    c.Cache.Embedding.cacheConfig("embedding"),
	}
}

// IndexerConfig converts the indexer section
func (c *Config) IndexerConfig(logger *slog.Logger) indexer.Config {
	return indexer.Config{
		Workers:    c.Indexer.Workers,
		BatchSize:  c.Indexer.BatchSize,
		Extensions: c.Indexer.Extensions,
		Chunking:   c.ChunkerOptions(),
		Logger:     logger,
	}
}

func (l CacheLimits) cacheConfig(name string) cache.Config {
	return cache.Config{
		Name:           name,
		MaxEntries:     l.MaxEntries,
		MaxMemoryBytes: l.MaxMemoryBytes,
		DefaultTTL:     l.DefaultTTL,
		SweepInterval:  l.SweepInterval,
	}
}

// NewLogger creates a structured logger writing to w. Servers pass stderr
// since stdout carries the MCP protocol.
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
