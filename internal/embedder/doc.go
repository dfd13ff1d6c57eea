// Package embedder generates vector embeddings for document chunks and queries.
//
// The embedder supports remote providers (Jina AI, OpenAI) and an offline
// feature-hashing provider, with batching, retry and a bounded embedding
// cache.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider: "local",
//	    Cache:    embedder.DefaultCacheConfig(),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "how are cache entries evicted?",
//	})
//
// # Batch Processing
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: []string{chunk1.Content, chunk2.Content},
//	})
//
// Remote providers only send texts that are not already cached, and place
// results by the index the API reports.
//
// # Provider Selection
//
//  1. Config.Provider or DOCSEARCH_EMBEDDING_PROVIDER if set
//  2. Else if JINA_API_KEY is set → Jina AI
//  3. Else if OPENAI_API_KEY is set → OpenAI
//  4. Else → local provider (offline)
//
// # Caching
//
// Embeddings are cached by SHA-256 of the input text under the "embedding:"
// key prefix, in a cache instance owned by the embedder. Concurrent requests
// for the same uncached text share one provider call. Cached vectors are
// copied on the way in and out.
//
// # Error Handling
//
// Remote calls are retried with exponential backoff; exhausted retries are
// reported as ErrProviderFailed:
//
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // API unavailable
//	}
package embedder
