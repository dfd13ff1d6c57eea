package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docsearch-mcp/internal/cache"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvJinaAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")
}

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		jinaKey  string
		openai   string
		want     string
	}{
		{name: "no keys", want: ProviderLocal},
		{name: "explicit provider wins", provider: "OpenAI", jinaKey: "k", want: ProviderOpenAI},
		{name: "jina key", jinaKey: "k", want: ProviderJina},
		{name: "openai key", openai: "k", want: ProviderOpenAI},
		{name: "jina preferred over openai", jinaKey: "k", openai: "k", want: ProviderJina},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearProviderEnv(t)
			t.Setenv(EnvProvider, tt.provider)
			t.Setenv(EnvJinaAPIKey, tt.jinaKey)
			t.Setenv(EnvOpenAIAPIKey, tt.openai)

			assert.Equal(t, tt.want, DetectProvider())
		})
	}
}

func TestNewFromEnv(t *testing.T) {
	t.Run("local provider without keys", func(t *testing.T) {
		clearProviderEnv(t)

		emb, err := NewFromEnv()
		require.NoError(t, err)
		defer emb.Close()

		assert.Equal(t, ProviderLocal, emb.Provider())
		_, ok := emb.(CacheStatter)
		assert.True(t, ok, "default embedder should carry a cache")
	})

	t.Run("explicit provider without key", func(t *testing.T) {
		clearProviderEnv(t)
		t.Setenv(EnvProvider, "jina")

		_, err := NewFromEnv()
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})

	t.Run("openai from key", func(t *testing.T) {
		clearProviderEnv(t)
		t.Setenv(EnvOpenAIAPIKey, "test-openai-key")

		emb, err := NewFromEnv()
		require.NoError(t, err)
		defer emb.Close()
		assert.Equal(t, ProviderOpenAI, emb.Provider())
	})
}

func TestNew(t *testing.T) {
	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(Config{Provider: "word2vec"})
		assert.ErrorIs(t, err, ErrUnsupportedModel)
	})

	t.Run("without cache", func(t *testing.T) {
		emb, err := New(Config{Provider: ProviderLocal})
		require.NoError(t, err)
		_, ok := emb.(CacheStatter)
		assert.False(t, ok)
	})

	t.Run("cache stats", func(t *testing.T) {
		emb, err := New(Config{Provider: ProviderLocal, Cache: cache.Config{MaxEntries: 10}})
		require.NoError(t, err)
		defer emb.Close()

		v1 := mustEmbed(t, emb, "cached text")
		v2 := mustEmbed(t, emb, "cached text")
		assert.Equal(t, v1, v2)

		stats := emb.(CacheStatter).CacheStats()
		assert.Equal(t, "embedding", stats.Name)
		assert.Equal(t, 1, stats.Entries)
		assert.Equal(t, uint64(1), stats.Hits)
	})

	t.Run("explicit key selects jina", func(t *testing.T) {
		clearProviderEnv(t)
		emb, err := New(Config{APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, ProviderJina, emb.Provider())
	})
}
