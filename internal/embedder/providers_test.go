package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embeddingServer serves OpenAI-style embedding responses. Each input gets a
// vector whose first component is its length so responses can be checked.
func embeddingServer(t *testing.T, failures int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if n <= failures {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("temporarily unavailable"))
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		// Reverse order to check placement by index
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Index: i, Embedding: []float32{float32(len(req.Input[i])), 1, 0}})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "data": data})
	}))
	t.Cleanup(server.Close)

	return server, &calls
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestRemoteProviders(t *testing.T) {
	constructors := map[string]func(string, *Cache, ...ProviderOption) (Embedder, error){
		ProviderJina: func(key string, c *Cache, opts ...ProviderOption) (Embedder, error) {
			return NewJinaProvider(key, c, opts...)
		},
		ProviderOpenAI: func(key string, c *Cache, opts ...ProviderOption) (Embedder, error) {
			return NewOpenAIProvider(key, c, opts...)
		},
	}

	for name, newProvider := range constructors {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("single embedding", func(t *testing.T) {
				server, calls := embeddingServer(t, 0)
				p, err := newProvider("test-key", newTestCache(t), WithEndpoint(server.URL), WithRetryConfig(fastRetry()))
				require.NoError(t, err)
				defer p.Close()

				emb, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello"})
				require.NoError(t, err)
				assert.Equal(t, []float32{5, 1, 0}, emb.Vector)
				assert.Equal(t, name, emb.Provider)
				assert.Equal(t, ComputeHash("hello"), emb.Hash)

				// Second call is served from cache
				_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello"})
				require.NoError(t, err)
				assert.Equal(t, int32(1), calls.Load())
			})

			t.Run("batch keeps input order and skips cached texts", func(t *testing.T) {
				server, calls := embeddingServer(t, 0)
				p, err := newProvider("test-key", newTestCache(t), WithEndpoint(server.URL), WithRetryConfig(fastRetry()))
				require.NoError(t, err)

				_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "bb"})
				require.NoError(t, err)

				resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a", "bb", "cccc"}})
				require.NoError(t, err)
				require.Len(t, resp.Embeddings, 3)
				assert.Equal(t, float32(1), resp.Embeddings[0].Vector[0])
				assert.Equal(t, float32(2), resp.Embeddings[1].Vector[0])
				assert.Equal(t, float32(4), resp.Embeddings[2].Vector[0])
				assert.Equal(t, int32(2), calls.Load())
			})

			t.Run("retries transient failures", func(t *testing.T) {
				server, calls := embeddingServer(t, 2)
				p, err := newProvider("test-key", nil, WithEndpoint(server.URL), WithRetryConfig(fastRetry()))
				require.NoError(t, err)

				emb, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "abc"})
				require.NoError(t, err)
				assert.Equal(t, float32(3), emb.Vector[0])
				assert.Equal(t, int32(3), calls.Load())
			})

			t.Run("gives up after max retries", func(t *testing.T) {
				server, calls := embeddingServer(t, 10)
				p, err := newProvider("test-key", nil, WithEndpoint(server.URL), WithRetryConfig(fastRetry()))
				require.NoError(t, err)

				_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "abc"})
				assert.ErrorIs(t, err, ErrProviderFailed)
				assert.Equal(t, int32(3), calls.Load())
			})

			t.Run("batch too large", func(t *testing.T) {
				p, err := newProvider("test-key", nil)
				require.NoError(t, err)

				texts := make([]string, MaxBatchSize+1)
				for i := range texts {
					texts[i] = "x"
				}
				_, err = p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts})
				assert.ErrorIs(t, err, ErrBatchTooLarge)
			})

			t.Run("missing api key", func(t *testing.T) {
				t.Setenv(EnvJinaAPIKey, "")
				t.Setenv(EnvOpenAIAPIKey, "")
				_, err := newProvider("", nil)
				assert.ErrorIs(t, err, ErrNoProviderEnabled)
			})
		})
	}
}

func TestRemoteProviderMetadata(t *testing.T) {
	jina, err := NewJinaProvider("k", nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderJina, jina.Provider())
	assert.Equal(t, JinaDimension, jina.Dimension())
	assert.Equal(t, DefaultJinaModel, jina.Model())
	assert.Equal(t, DefaultJinaEndpoint, jina.endpoint)

	openai, err := NewOpenAIProvider("k", nil, WithModel("text-embedding-3-large"))
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, openai.Provider())
	assert.Equal(t, OpenAIDimension, openai.Dimension())
	assert.Equal(t, "text-embedding-3-large", openai.Model())
	assert.NoError(t, openai.Close())
}

func TestRemoteProvider_ContextCancellation(t *testing.T) {
	server, _ := embeddingServer(t, 100)
	p, err := NewJinaProvider("test-key", nil, WithEndpoint(server.URL), WithRetryConfig(RetryConfig{
		MaxRetries: 10, BaseDelay: 50 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Multiplier: 2,
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "abc"})
	assert.ErrorIs(t, err, ErrProviderFailed)
}

func TestRemoteProvider_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	p, err := NewOpenAIProvider("bad-key", nil, WithEndpoint(server.URL), WithRetryConfig(fastRetry()))
	require.NoError(t, err)

	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "abc"})
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.ErrorContains(t, err, "401")
	assert.Equal(t, int32(1), calls.Load())
}
