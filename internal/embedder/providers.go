package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Environment variables holding API keys
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "local-hashing-v1"

	// Default endpoints
	DefaultJinaEndpoint   = "https://api.jina.ai/v1/embeddings"
	DefaultOpenAIEndpoint = "https://api.openai.com/v1/embeddings"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// ProviderOption customizes a remote provider
type ProviderOption func(*remoteProvider)

// WithEndpoint overrides the embeddings endpoint URL
func WithEndpoint(url string) ProviderOption {
	return func(p *remoteProvider) {
		p.endpoint = url
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *remoteProvider) {
		p.httpClient = client
	}
}

// WithRetryConfig replaces the retry policy
func WithRetryConfig(cfg RetryConfig) ProviderOption {
	return func(p *remoteProvider) {
		p.retry = cfg
	}
}

// WithModel overrides the default model
func WithModel(model string) ProviderOption {
	return func(p *remoteProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// remoteProvider talks to an OpenAI-compatible embeddings endpoint. Jina and
// OpenAI share the same request and response shape.
type remoteProvider struct {
	name       string
	endpoint   string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
	retry      RetryConfig
	cache      *Cache
}

func newRemoteProvider(name, envKey, apiKey, endpoint, model string, dimension int, cache *Cache, opts []ProviderOption) (*remoteProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(envKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, envKey)
	}

	p := &remoteProvider{
		name:      name,
		endpoint:  endpoint,
		apiKey:    apiKey,
		model:     model,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: DefaultRetryConfig(),
		cache: cache,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *remoteProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	generate := func(ctx context.Context) (*Embedding, error) {
		embeddings, err := p.fetch(ctx, []string{req.Text}, req.Model)
		if err != nil {
			return nil, err
		}
		return embeddings[0], nil
	}

	if p.cache != nil {
		return p.cache.GetOrGenerate(ctx, req.Text, generate)
	}

	emb, err := generate(ctx)
	if err != nil {
		return nil, err
	}
	emb.Hash = ComputeHash(req.Text)
	return emb, nil
}

func (p *remoteProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	// Only texts missing from the cache go to the API
	embeddings := make([]*Embedding, len(req.Texts))
	var missing []int
	for i, text := range req.Texts {
		if p.cache != nil {
			if emb, ok := p.cache.Get(ComputeHash(text)); ok {
				embeddings[i] = emb
				continue
			}
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = req.Texts[i]
		}

		fetched, err := p.fetch(ctx, texts, model)
		if err != nil {
			return nil, err
		}

		for j, i := range missing {
			emb := fetched[j]
			emb.Hash = ComputeHash(req.Texts[i])
			if p.cache != nil {
				p.cache.Set(emb.Hash, emb)
			}
			embeddings[i] = emb
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   p.name,
		Model:      model,
	}, nil
}

// fetch calls the API with retry and returns one embedding per text, in order
func (p *remoteProvider) fetch(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	if model == "" {
		model = p.model
	}

	embeddings, err := retryWithBackoff(ctx, p.retry, func() ([]*Embedding, error) {
		return p.callAPI(ctx, texts, model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrProviderFailed, len(texts), len(embeddings))
	}
	for i, emb := range embeddings {
		if emb == nil {
			return nil, fmt.Errorf("%w: missing embedding for input %d", ErrProviderFailed, i)
		}
	}

	return embeddings, nil
}

func (p *remoteProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
		if !retryableStatus(resp.StatusCode) {
			return nil, permanent(err)
		}
		return nil, err
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// Results are placed by their index field, not their array position
	embeddings := make([]*Embedding, len(apiResp.Data))
	for pos, data := range apiResp.Data {
		idx := data.Index
		if idx < 0 || idx >= len(embeddings) || embeddings[idx] != nil {
			idx = pos
		}
		embeddings[idx] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  p.name,
			Model:     apiResp.Model,
		}
	}

	return embeddings, nil
}

func (p *remoteProvider) Dimension() int {
	return p.dimension
}

func (p *remoteProvider) Provider() string {
	return p.name
}

func (p *remoteProvider) Model() string {
	return p.model
}

func (p *remoteProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// JinaProvider implements Embedder using Jina AI API
type JinaProvider struct {
	*remoteProvider
}

// NewJinaProvider creates a new Jina AI embedder. An empty apiKey falls back
// to JINA_API_KEY.
func NewJinaProvider(apiKey string, cache *Cache, opts ...ProviderOption) (*JinaProvider, error) {
	p, err := newRemoteProvider(ProviderJina, EnvJinaAPIKey, apiKey, DefaultJinaEndpoint, DefaultJinaModel, JinaDimension, cache, opts)
	if err != nil {
		return nil, err
	}
	return &JinaProvider{remoteProvider: p}, nil
}

// OpenAIProvider implements Embedder using OpenAI API
type OpenAIProvider struct {
	*remoteProvider
}

// NewOpenAIProvider creates a new OpenAI embedder. An empty apiKey falls back
// to OPENAI_API_KEY.
func NewOpenAIProvider(apiKey string, cache *Cache, opts ...ProviderOption) (*OpenAIProvider, error) {
	p, err := newRemoteProvider(ProviderOpenAI, EnvOpenAIAPIKey, apiKey, DefaultOpenAIEndpoint, DefaultOpenAIModel, OpenAIDimension, cache, opts)
	if err != nil {
		return nil, err
	}
	return &OpenAIProvider{remoteProvider: p}, nil
}

// LocalProvider embeds text offline by feature hashing its word unigrams and
// bigrams into a fixed-size vector. Texts sharing vocabulary get a high
// cosine similarity, which is enough for keyword-style retrieval without a
// model download.
type LocalProvider struct {
	model     string
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{
		model:     DefaultLocalModel,
		dimension: LocalDimension,
		cache:     cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	generate := func(ctx context.Context) (*Embedding, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &Embedding{
			Vector:    l.embed(req.Text),
			Dimension: l.dimension,
			Provider:  ProviderLocal,
			Model:     l.model,
			Hash:      ComputeHash(req.Text),
		}, nil
	}

	if l.cache != nil {
		return l.cache.GetOrGenerate(ctx, req.Text, generate)
	}
	return generate(ctx)
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

// embed hashes each token into a signed bucket, dampens repeated terms and
// normalizes the result to unit length
func (l *LocalProvider) embed(text string) []float32 {
	tokens := tokenize(text)
	counts := make(map[string]int, len(tokens)*2)
	for i, tok := range tokens {
		counts[tok]++
		if i > 0 {
			counts[tokens[i-1]+" "+tok]++
		}
	}

	vector := make([]float32, l.dimension)
	for feature, n := range counts {
		h := fnv.New64a()
		_, _ = h.Write([]byte(feature))
		sum := h.Sum64()

		bucket := int(sum % uint64(l.dimension))
		weight := float32(1 + math.Log(float64(n)))
		if sum&(1<<63) != 0 {
			weight = -weight
		}
		vector[bucket] += weight
	}

	return NormalizeVector(vector)
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// tokenize lowercases text and splits it into runs of letters and digits
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
