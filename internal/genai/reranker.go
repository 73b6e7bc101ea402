package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"
)

// Reranker environment variables
const (
	EnvJinaAPIKey  = "JINA_API_KEY"
	EnvRerankModel = "QMD_RERANK_MODEL"
)

// Reranker defaults
const (
	DefaultRerankModel    = "jina-reranker-v2-base-multilingual"
	DefaultRerankEndpoint = "https://api.jina.ai/v1/rerank"
	rerankTimeout         = 30 * time.Second
)

// jinaReranker talks to the Jina rerank API.
type jinaReranker struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// NewJinaReranker creates a reranker backed by the Jina rerank API
func NewJinaReranker(apiKey, model string) Reranker {
	if model == "" {
		model = DefaultRerankModel
	}
	return &jinaReranker{
		endpoint: DefaultRerankEndpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: rerankTimeout},
	}
}

// NewRerankerFromEnv creates a reranker from environment variables.
// Without JINA_API_KEY the returned reranker reports unavailable.
func NewRerankerFromEnv() Reranker {
	apiKey := os.Getenv(EnvJinaAPIKey)
	if apiKey == "" {
		return DisabledReranker{}
	}
	return NewJinaReranker(apiKey, os.Getenv(EnvRerankModel))
}

func (r *jinaReranker) Rerank(ctx context.Context, query string, docs []RerankDocument) ([]RerankResult, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(docs))
	for i, d := range docs {
		if d.Title != "" {
			inputs[i] = d.Title + "\n" + d.Text
		} else {
			inputs[i] = d.Text
		}
	}

	payload, err := json.Marshal(rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: inputs,
		TopN:      len(docs),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrProviderError, resp.StatusCode, string(body))
	}

	var parsed rerankResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	results := make([]RerankResult, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		if item.Index < 0 || item.Index >= len(docs) {
			return nil, fmt.Errorf("%w: result index %d out of range", ErrProviderError, item.Index)
		}
		results = append(results, RerankResult{
			File:  docs[item.Index].File,
			Index: item.Index,
			Score: item.RelevanceScore,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

func (r *jinaReranker) Available() bool { return r.apiKey != "" }
func (r *jinaReranker) Close() error    { return nil }

// DisabledReranker is the no-key placeholder; every call fails with
// ErrNotAvailable.
type DisabledReranker struct{}

func (DisabledReranker) Rerank(context.Context, string, []RerankDocument) ([]RerankResult, error) {
	return nil, ErrNotAvailable
}

func (DisabledReranker) Available() bool { return false }
func (DisabledReranker) Close() error    { return nil }
