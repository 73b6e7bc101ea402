package genai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rerankServer(t *testing.T, capture *rerankRequest, scores []float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if capture != nil {
			*capture = req
		}

		resp := rerankResponse{}
		for i, s := range scores {
			resp.Results = append(resp.Results, struct {
				Index          int     `json:"index"`
				RelevanceScore float64 `json:"relevance_score"`
			}{Index: i, RelevanceScore: s})
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func testReranker(endpoint string) *jinaReranker {
	return &jinaReranker{
		endpoint: endpoint,
		apiKey:   "test-key",
		model:    DefaultRerankModel,
		client:   http.DefaultClient,
	}
}

func TestJinaReranker_Rerank(t *testing.T) {
	var captured rerankRequest
	srv := rerankServer(t, &captured, []float64{0.2, 0.9, 0.5})
	defer srv.Close()

	rr := testReranker(srv.URL)

	docs := []RerankDocument{
		{File: "qmd://notes/a.md", Text: "alpha body", Title: "Alpha"},
		{File: "qmd://notes/b.md", Text: "beta body"},
		{File: "qmd://notes/c.md", Text: "gamma body", Title: "Gamma"},
	}

	results, err := rr.Rerank(context.Background(), "beta", docs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Ordered by descending relevance
	assert.Equal(t, "qmd://notes/b.md", results[0].File)
	assert.Equal(t, 0.9, results[0].Score)
	assert.Equal(t, "qmd://notes/c.md", results[1].File)
	assert.Equal(t, "qmd://notes/a.md", results[2].File)

	// Titles are prepended to the document text sent upstream
	assert.Equal(t, "beta", captured.Query)
	assert.Equal(t, "Alpha\nalpha body", captured.Documents[0])
	assert.Equal(t, "beta body", captured.Documents[1])
}

func TestJinaReranker_EmptyDocs(t *testing.T) {
	rr := testReranker("http://unused")

	results, err := rr.Rerank(context.Background(), "query", nil)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestJinaReranker_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	rr := testReranker(srv.URL)
	_, err := rr.Rerank(context.Background(), "query", []RerankDocument{{File: "f", Text: "t"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderError)
}

func TestJinaReranker_BadIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"index":5,"relevance_score":0.5}]}`))
	}))
	defer srv.Close()

	rr := testReranker(srv.URL)
	_, err := rr.Rerank(context.Background(), "query", []RerankDocument{{File: "f", Text: "t"}})
	require.Error(t, err)
}

func TestDisabledReranker(t *testing.T) {
	rr := DisabledReranker{}
	assert.False(t, rr.Available())

	_, err := rr.Rerank(context.Background(), "q", nil)
	assert.ErrorIs(t, err, ErrNotAvailable)
}

func TestNewRerankerFromEnv(t *testing.T) {
	t.Setenv(EnvJinaAPIKey, "")
	assert.False(t, NewRerankerFromEnv().Available())

	t.Setenv(EnvJinaAPIKey, "jina-test")
	assert.True(t, NewRerankerFromEnv().Available())
}
