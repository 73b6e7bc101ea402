package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// Provider names
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
)

// Default models and dimensions
const (
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	LocalModel         = "local-hash-v1"

	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// MaxBatchSize bounds how many texts go in one API request
	MaxBatchSize = 100
)

// Jina task hints for asymmetric retrieval embeddings
const (
	jinaTaskPassage = "retrieval.passage"
	jinaTaskQuery   = "retrieval.query"
)

// API endpoints
const (
	jinaEndpoint   = "https://api.jina.ai/v1/embeddings"
	openaiEndpoint = "https://api.openai.com/v1/embeddings"
)

const requestTimeout = 30 * time.Second

// httpProvider talks to an OpenAI-compatible embeddings API. Jina and
// OpenAI share the wire format; Jina additionally accepts a per-request
// task hint which httpProvider sets for asymmetric embedding.
type httpProvider struct {
	name      string
	endpoint  string
	apiKey    string
	model     string
	dimension int
	taskHints bool
	client    *http.Client
	cache     *Cache
}

// embeddingRequest is the OpenAI-compatible request body. Task is only
// set for providers that support it and is omitted otherwise.
type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
	Task  string   `json:"task,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// NewJinaProvider creates an embedder backed by the Jina embeddings API
func NewJinaProvider(apiKey, model string) Embedder {
	if model == "" {
		model = DefaultJinaModel
	}
	return &httpProvider{
		name:      ProviderJina,
		endpoint:  jinaEndpoint,
		apiKey:    apiKey,
		model:     model,
		dimension: JinaDimension,
		taskHints: true,
		client:    &http.Client{Timeout: requestTimeout},
		cache:     NewCache(DefaultCacheSize),
	}
}

// NewOpenAIProvider creates an embedder backed by the OpenAI embeddings API
func NewOpenAIProvider(apiKey, model string) Embedder {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &httpProvider{
		name:      ProviderOpenAI,
		endpoint:  openaiEndpoint,
		apiKey:    apiKey,
		model:     model,
		dimension: OpenAIDimension,
		taskHints: false,
		client:    &http.Client{Timeout: requestTimeout},
		cache:     NewCache(DefaultCacheSize),
	}
}

func (p *httpProvider) EmbedDocument(ctx context.Context, text, title string) (*Embedding, error) {
	embs, err := p.embed(ctx, []string{FormatDocument(text, title)}, jinaTaskPassage)
	if err != nil {
		return nil, err
	}
	return embs[0], nil
}

func (p *httpProvider) EmbedDocuments(ctx context.Context, texts, titles []string) ([]*Embedding, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}

	framed := make([]string, len(texts))
	for i, text := range texts {
		framed[i] = FormatDocument(text, titleAt(titles, i))
	}

	var results []*Embedding
	for start := 0; start < len(framed); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(framed) {
			end = len(framed)
		}
		embs, err := p.embed(ctx, framed[start:end], jinaTaskPassage)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		results = append(results, embs...)
	}
	return results, nil
}

func (p *httpProvider) EmbedQuery(ctx context.Context, text string) (*Embedding, error) {
	embs, err := p.embed(ctx, []string{FormatQuery(text)}, jinaTaskQuery)
	if err != nil {
		return nil, err
	}
	return embs[0], nil
}

// embed sends one API request for the framed inputs, consulting the
// cache first and only requesting the misses.
func (p *httpProvider) embed(ctx context.Context, framed []string, task string) ([]*Embedding, error) {
	if err := validateTexts(framed); err != nil {
		return nil, err
	}

	results := make([]*Embedding, len(framed))
	var missing []string
	var missingIdx []int
	for i, input := range framed {
		hash := ComputeHash(input)
		if emb, ok := p.cache.Get(hash); ok {
			results[i] = emb
			continue
		}
		missing = append(missing, input)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return results, nil
	}

	vectors, err := retryWithBackoff(ctx, func() ([][]float32, error) {
		return p.request(ctx, missing, task)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrProviderFailed, len(missing), len(vectors))
	}

	for j, vec := range vectors {
		hash := ComputeHash(missing[j])
		emb := &Embedding{
			Vector:    vec,
			Dimension: len(vec),
			Provider:  p.name,
			Model:     p.model,
			Hash:      hash,
		}
		p.cache.Set(hash, emb)
		results[missingIdx[j]] = emb
	}
	return results, nil
}

func (p *httpProvider) request(ctx context.Context, inputs []string, task string) ([][]float32, error) {
	reqBody := embeddingRequest{
		Input: inputs,
		Model: p.model,
	}
	if p.taskHints {
		reqBody.Task = task
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Data) != len(inputs) {
		return nil, fmt.Errorf("response has %d embeddings for %d inputs", len(parsed.Data), len(inputs))
	}

	// Responses are not guaranteed to arrive in request order
	vectors := make([][]float32, len(inputs))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("response index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	for i, vec := range vectors {
		if vec == nil {
			return nil, fmt.Errorf("response missing embedding for input %d", i)
		}
	}
	return vectors, nil
}

func (p *httpProvider) Dimension() int   { return p.dimension }
func (p *httpProvider) Provider() string { return p.name }
func (p *httpProvider) Model() string    { return p.model }
func (p *httpProvider) Close() error     { return nil }

// LocalProvider produces deterministic vectors derived from the input
// hash. It exists so indexing and tests run without network access; the
// vectors are stable but semantically meaningless.
type LocalProvider struct {
	cache *Cache
}

// NewLocalProvider creates a deterministic offline embedder
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{cache: NewCache(DefaultCacheSize)}
}

func (p *LocalProvider) EmbedDocument(ctx context.Context, text, title string) (*Embedding, error) {
	return p.embedFramed(ctx, FormatDocument(text, title))
}

func (p *LocalProvider) EmbedDocuments(ctx context.Context, texts, titles []string) ([]*Embedding, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}
	results := make([]*Embedding, len(texts))
	for i, text := range texts {
		emb, err := p.embedFramed(ctx, FormatDocument(text, titleAt(titles, i)))
		if err != nil {
			return nil, err
		}
		results[i] = emb
	}
	return results, nil
}

func (p *LocalProvider) EmbedQuery(ctx context.Context, text string) (*Embedding, error) {
	return p.embedFramed(ctx, FormatQuery(text))
}

func (p *LocalProvider) embedFramed(ctx context.Context, framed string) (*Embedding, error) {
	if err := validateTexts([]string{framed}); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := ComputeHash(framed)
	if emb, ok := p.cache.Get(hash); ok {
		return emb, nil
	}

	emb := &Embedding{
		Vector:    localVector(framed),
		Dimension: LocalDimension,
		Provider:  ProviderLocal,
		Model:     LocalModel,
		Hash:      hash,
	}
	p.cache.Set(hash, emb)
	return emb, nil
}

// localVector derives a unit-length vector by chaining SHA-256 over the
// input until enough bytes exist to fill the dimension.
func localVector(text string) []float32 {
	vec := make([]float32, LocalDimension)

	seed := sha256.Sum256([]byte(text))
	block := seed
	filled := 0
	for filled < LocalDimension {
		for i := 0; i+4 <= len(block) && filled < LocalDimension; i += 4 {
			bits := binary.LittleEndian.Uint32(block[i : i+4])
			// Map uniformly into [-1, 1)
			vec[filled] = float32(bits)/float32(math.MaxUint32)*2 - 1
			filled++
		}
		block = sha256.Sum256(block[:])
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

func (p *LocalProvider) Dimension() int   { return LocalDimension }
func (p *LocalProvider) Provider() string { return ProviderLocal }
func (p *LocalProvider) Model() string    { return LocalModel }
func (p *LocalProvider) Close() error     { return nil }
