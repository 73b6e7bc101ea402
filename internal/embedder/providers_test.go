package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddingServer speaks just enough of the OpenAI embeddings wire
// format to exercise the HTTP provider.
func fakeEmbeddingServer(t *testing.T, dim int, capture *embeddingRequest, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if capture != nil {
			*capture = req
		}

		resp := embeddingResponse{}
		// Return embeddings in reverse order to verify index handling
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dim)
			vec[0] = float32(i + 1)
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: vec, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func testHTTPProvider(endpoint string, taskHints bool) *httpProvider {
	return &httpProvider{
		name:      ProviderJina,
		endpoint:  endpoint,
		apiKey:    "test-key",
		model:     DefaultJinaModel,
		dimension: JinaDimension,
		taskHints: taskHints,
		client:    http.DefaultClient,
		cache:     NewCache(DefaultCacheSize),
	}
}

func TestHTTPProvider_EmbedDocument(t *testing.T) {
	var captured embeddingRequest
	srv := fakeEmbeddingServer(t, 8, &captured, nil)
	defer srv.Close()

	p := testHTTPProvider(srv.URL, true)

	emb, err := p.EmbedDocument(context.Background(), "body", "Guide")
	require.NoError(t, err)

	assert.Equal(t, []string{"title: Guide\nbody"}, captured.Input)
	assert.Equal(t, jinaTaskPassage, captured.Task)
	assert.Equal(t, 8, emb.Dimension)
	assert.Equal(t, DefaultJinaModel, emb.Model)
}

func TestHTTPProvider_EmbedQuery_TaskHint(t *testing.T) {
	var captured embeddingRequest
	srv := fakeEmbeddingServer(t, 8, &captured, nil)
	defer srv.Close()

	p := testHTTPProvider(srv.URL, true)

	_, err := p.EmbedQuery(context.Background(), "find things")
	require.NoError(t, err)

	assert.Equal(t, []string{"query: find things"}, captured.Input)
	assert.Equal(t, jinaTaskQuery, captured.Task)
}

func TestHTTPProvider_NoTaskHintWhenUnsupported(t *testing.T) {
	var captured embeddingRequest
	srv := fakeEmbeddingServer(t, 8, &captured, nil)
	defer srv.Close()

	p := testHTTPProvider(srv.URL, false)

	_, err := p.EmbedQuery(context.Background(), "find things")
	require.NoError(t, err)
	assert.Empty(t, captured.Task)
}

func TestHTTPProvider_BatchOrderPreserved(t *testing.T) {
	srv := fakeEmbeddingServer(t, 4, nil, nil)
	defer srv.Close()

	p := testHTTPProvider(srv.URL, true)

	embs, err := p.EmbedDocuments(context.Background(), []string{"a", "b", "c"}, nil)
	require.NoError(t, err)
	require.Len(t, embs, 3)

	// The fake server tags vector[0] with index+1 and replies in reverse
	// order; results must still line up with the inputs.
	assert.Equal(t, float32(1), embs[0].Vector[0])
	assert.Equal(t, float32(2), embs[1].Vector[0])
	assert.Equal(t, float32(3), embs[2].Vector[0])
}

func TestHTTPProvider_CacheHitSkipsRequest(t *testing.T) {
	var calls atomic.Int64
	srv := fakeEmbeddingServer(t, 4, nil, &calls)
	defer srv.Close()

	p := testHTTPProvider(srv.URL, true)
	ctx := context.Background()

	first, err := p.EmbedDocument(ctx, "cached text", "T")
	require.NoError(t, err)
	second, err := p.EmbedDocument(ctx, "cached text", "T")
	require.NoError(t, err)

	assert.Equal(t, first.Vector, second.Vector)
	assert.Equal(t, int64(1), calls.Load())
}

func TestHTTPProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "bad model"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p := testHTTPProvider(srv.URL, true)

	_, err := p.EmbedQuery(context.Background(), "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Contains(t, err.Error(), "400")
}

func TestHTTPProvider_MismatchedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := embeddingResponse{}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := testHTTPProvider(srv.URL, true)

	_, err := p.EmbedQuery(context.Background(), "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderFailed)
}

func TestNewJinaProvider_Defaults(t *testing.T) {
	p := NewJinaProvider("key", "")
	assert.Equal(t, ProviderJina, p.Provider())
	assert.Equal(t, DefaultJinaModel, p.Model())
	assert.Equal(t, JinaDimension, p.Dimension())
}

func TestNewOpenAIProvider_Defaults(t *testing.T) {
	p := NewOpenAIProvider("key", "custom-model")
	assert.Equal(t, ProviderOpenAI, p.Provider())
	assert.Equal(t, "custom-model", p.Model())
	assert.Equal(t, OpenAIDimension, p.Dimension())
}
