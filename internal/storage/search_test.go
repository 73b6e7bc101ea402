package storage

import (
	"context"
	"testing"

	"github.com/pyroth/qmd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchFTS(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()
	ctx := context.Background()

	addDoc(t, store, "notes", "errors.md", "Error Handling",
		"# Error Handling\n\nWrap errors with context before returning them.")
	addDoc(t, store, "notes", "config.md", "Configuration",
		"# Configuration\n\nSettings live in a YAML file.")
	addDoc(t, store, "wiki", "faq.md", "FAQ",
		"# FAQ\n\nCommon questions about error messages.")

	results, err := store.SearchFTS(ctx, "error", "", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, r := range results {
		assert.Equal(t, types.SourceFTS, r.Source)
		assert.Greater(t, r.Score, 0.0)
		assert.NotEmpty(t, r.Ref.Docid)
		assert.Greater(t, r.BodyLength, 0)
	}
}

func TestSearchFTS_CollectionFilter(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()
	ctx := context.Background()

	addDoc(t, store, "notes", "a.md", "A", "shared keyword here")
	addDoc(t, store, "wiki", "b.md", "B", "shared keyword there")

	results, err := store.SearchFTS(ctx, "shared", "wiki", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "wiki", results[0].Ref.Collection)
}

func TestSearchFTS_ExcludesInactive(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()
	ctx := context.Background()

	doc := addDoc(t, store, "notes", "gone.md", "Gone", "unique disappearing phrase")

	results, err := store.SearchFTS(ctx, "disappearing", "", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	require.NoError(t, store.DeactivateDocument(ctx, doc.ID))

	results, err = store.SearchFTS(ctx, "disappearing", "", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchFTS_ReflectsUpdates(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()
	ctx := context.Background()

	doc := addDoc(t, store, "notes", "doc.md", "Doc", "original wording")

	newHash, err := store.InsertContent(ctx, "completely rewritten text")
	require.NoError(t, err)
	require.NoError(t, store.UpdateDocument(ctx, doc.ID, newHash, "Doc"))

	results, err := store.SearchFTS(ctx, "original", "", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = store.SearchFTS(ctx, "rewritten", "", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchFTS_HostileQueries(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()
	ctx := context.Background()

	addDoc(t, store, "notes", "a.md", "A", "plain text body")

	// FTS5 syntax in user queries must not error out
	hostile := []string{
		`"unbalanced`,
		`(paren`,
		`term*`,
		`col:value`,
		`a AND b OR c NOT d`,
		`NEAR(x y)`,
		`-negated +required`,
	}
	for _, q := range hostile {
		_, err := store.SearchFTS(ctx, q, "", 10)
		assert.NoError(t, err, q)
	}
}

func TestSearchFTS_EmptyQuery(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()
	ctx := context.Background()

	addDoc(t, store, "notes", "a.md", "A", "body")

	results, err := store.SearchFTS(ctx, "   ", "", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = store.SearchFTS(ctx, `"*()"`, "", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchFTS_LimitAndOrder(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()
	ctx := context.Background()

	addDoc(t, store, "notes", "dense.md", "Dense",
		"token token token token token")
	addDoc(t, store, "notes", "sparse.md", "Sparse",
		"token appears once in this much longer body of unrelated filler words")

	results, err := store.SearchFTS(ctx, "token", "", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "dense.md", results[0].Ref.Path)

	results, err = store.SearchFTS(ctx, "token", "", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSanitizeFTSQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain terms", "error handling", `"error" "handling"`},
		{"operators lowered", "a AND b", `"a" "and" "b"`},
		{"syntax stripped", `foo* (bar)`, `"foo" "bar"`},
		{"empty", "   ", ""},
		{"only syntax", `*()"`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeFTSQuery(tt.input))
		})
	}
}
