package embedder

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDocument(t *testing.T) {
	assert.Equal(t, "title: Guide\nbody text", FormatDocument("body text", "Guide"))
	assert.Equal(t, "body text", FormatDocument("body text", ""))
	assert.Equal(t, "body text", FormatDocument("body text", "   "))
}

func TestFormatQuery(t *testing.T) {
	assert.Equal(t, "query: rotate logs", FormatQuery("rotate logs"))
}

func TestComputeHash(t *testing.T) {
	h1 := ComputeHash("hello")
	h2 := ComputeHash("hello")
	h3 := ComputeHash("world")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}

func TestCache_GetSet(t *testing.T) {
	cache := NewCache(10)

	emb := &Embedding{
		Vector:    []float32{1, 2, 3},
		Dimension: 3,
		Provider:  ProviderLocal,
		Model:     LocalModel,
		Hash:      "abc",
	}
	cache.Set("abc", emb)

	got, ok := cache.Get("abc")
	require.True(t, ok)
	assert.Equal(t, emb.Vector, got.Vector)

	// Mutating the returned copy must not touch the cached value
	got.Vector[0] = 99
	again, ok := cache.Get("abc")
	require.True(t, ok)
	assert.Equal(t, float32(1), again.Vector[0])

	_, ok = cache.Get("missing")
	assert.False(t, ok)
}

func TestCache_Eviction(t *testing.T) {
	cache := NewCache(2)

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("k%d", i)
		cache.Set(key, &Embedding{Hash: key})
	}

	assert.Equal(t, 2, cache.Size())
	_, ok := cache.Get("k0")
	assert.False(t, ok)
	_, ok = cache.Get("k2")
	assert.True(t, ok)
}

func TestLocalProvider_Deterministic(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider()

	e1, err := p.EmbedDocument(ctx, "some content", "Title")
	require.NoError(t, err)
	e2, err := p.EmbedDocument(ctx, "some content", "Title")
	require.NoError(t, err)

	assert.Equal(t, e1.Vector, e2.Vector)
	assert.Equal(t, LocalDimension, e1.Dimension)
	assert.Len(t, e1.Vector, LocalDimension)
	assert.Equal(t, ProviderLocal, e1.Provider)
}

func TestLocalProvider_Normalized(t *testing.T) {
	p := NewLocalProvider()

	emb, err := p.EmbedDocument(context.Background(), "normalize me", "")
	require.NoError(t, err)

	var norm float64
	for _, v := range emb.Vector {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 0.001)
}

func TestLocalProvider_AsymmetricFraming(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider()

	doc, err := p.EmbedDocument(ctx, "same text", "")
	require.NoError(t, err)
	query, err := p.EmbedQuery(ctx, "same text")
	require.NoError(t, err)

	// Document and query framings differ, so the vectors must too
	assert.NotEqual(t, doc.Vector, query.Vector)
}

func TestLocalProvider_TitleChangesVector(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider()

	a, err := p.EmbedDocument(ctx, "content", "Title A")
	require.NoError(t, err)
	b, err := p.EmbedDocument(ctx, "content", "Title B")
	require.NoError(t, err)

	assert.NotEqual(t, a.Vector, b.Vector)
}

func TestLocalProvider_Batch(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider()

	texts := []string{"first chunk", "second chunk", "third chunk"}
	titles := []string{"Doc", "Doc"}

	embs, err := p.EmbedDocuments(ctx, texts, titles)
	require.NoError(t, err)
	require.Len(t, embs, 3)

	single, err := p.EmbedDocument(ctx, "first chunk", "Doc")
	require.NoError(t, err)
	assert.Equal(t, single.Vector, embs[0].Vector)

	// Third text had no title, so it embeds untitled
	untitled, err := p.EmbedDocument(ctx, "third chunk", "")
	require.NoError(t, err)
	assert.Equal(t, untitled.Vector, embs[2].Vector)
}

func TestLocalProvider_EmptyInput(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider()

	_, err := p.EmbedQuery(ctx, "")
	assert.Error(t, err)

	_, err = p.EmbedDocuments(ctx, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.EmbedDocuments(ctx, []string{"ok", "  "}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLocalProvider_ContextCancelled(t *testing.T) {
	p := NewLocalProvider()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.EmbedQuery(ctx, "anything")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	attempts := 0
	result, err := retryWithBackoff(ctx, func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, fmt.Errorf("transient failure %d", attempts)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_AllFail(t *testing.T) {
	ctx := context.Background()

	attempts := 0
	_, err := retryWithBackoff(ctx, func() (int, error) {
		attempts++
		return 0, fmt.Errorf("permanent failure")
	})
	require.Error(t, err)
	assert.Equal(t, MaxRetries+1, attempts)
	assert.Contains(t, err.Error(), "permanent failure")
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	_, err := retryWithBackoff(ctx, func() (int, error) {
		attempts++
		cancel()
		return 0, fmt.Errorf("fail then cancel")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
