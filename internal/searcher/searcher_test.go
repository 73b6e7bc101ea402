package searcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyroth/qmd/internal/chunker"
	"github.com/pyroth/qmd/internal/embedder"
	"github.com/pyroth/qmd/internal/genai"
	"github.com/pyroth/qmd/internal/storage"
	"github.com/pyroth/qmd/pkg/types"
)

func setupStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func addDoc(t *testing.T, store *storage.Store, collection, path, title, body string) *storage.Document {
	t.Helper()
	ctx := context.Background()

	hash, err := store.InsertContent(ctx, body)
	require.NoError(t, err)

	doc := &storage.Document{Collection: collection, Path: path, Title: title, Hash: hash}
	require.NoError(t, store.InsertDocument(ctx, doc))
	return doc
}

// embedDoc chunks and embeds one document so the vector channel can see it.
func embedDoc(t *testing.T, store *storage.Store, emb embedder.Embedder, doc *storage.Document, body string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.EnsureVectorTable(ctx, emb.Dimension()))

	c, err := chunker.New(chunker.DefaultTargetTokens, chunker.DefaultOverlapTokens, chunker.EstimateTokens)
	require.NoError(t, err)

	for _, chunk := range c.Split(body) {
		e, err := emb.EmbedDocument(ctx, chunk.Text, doc.Title)
		require.NoError(t, err)
		require.NoError(t, store.InsertEmbedding(ctx, &storage.Embedding{
			Hash:   doc.Hash,
			Seq:    chunk.Seq,
			Pos:    chunk.Pos,
			Vector: e.Vector,
			Model:  e.Model,
		}))
	}
}

func TestValidateRequest(t *testing.T) {
	req := Request{Query: "q"}
	require.NoError(t, validateRequest(&req))
	assert.Equal(t, DefaultLimit, req.Limit)
	assert.Equal(t, ModeHybrid, req.Mode)

	req = Request{Query: "q", Limit: 500}
	require.NoError(t, validateRequest(&req))
	assert.Equal(t, MaxLimit, req.Limit)

	req = Request{}
	assert.Error(t, validateRequest(&req))
}

func TestSearch_FTS(t *testing.T) {
	store := setupStore(t)
	addDoc(t, store, "notes", "logging.md", "Logging", "How to rotate log files on a schedule.")
	addDoc(t, store, "notes", "other.md", "Other", "Nothing relevant here.")

	s := New(store, nil)
	resp, err := s.Search(context.Background(), Request{Query: "rotate log", Mode: ModeFTS, Limit: 5})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "qmd://notes/logging.md", resp.Results[0].Ref.File())
	assert.Equal(t, ModeFTS, resp.Mode)
	assert.Equal(t, 1, resp.FTSHits)
}

func TestSearch_FTS_CollectionFilter(t *testing.T) {
	store := setupStore(t)
	addDoc(t, store, "work", "a.md", "A", "shared keyword here")
	addDoc(t, store, "home", "b.md", "B", "shared keyword here")

	s := New(store, nil)
	resp, err := s.Search(context.Background(), Request{Query: "shared keyword", Mode: ModeFTS, Collection: "work"})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "work", resp.Results[0].Ref.Collection)
}

func TestSearch_Vector(t *testing.T) {
	store := setupStore(t)
	emb := embedder.NewLocalProvider()

	body := "Detailed notes about backup retention policies."
	doc := addDoc(t, store, "notes", "backup.md", "Backups", body)
	embedDoc(t, store, emb, doc, body)

	s := New(store, emb)
	resp, err := s.Search(context.Background(), Request{Query: "backup retention", Mode: ModeVector, Limit: 5})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "qmd://notes/backup.md", resp.Results[0].Ref.File())
}

func TestSearch_Vector_RequiresEmbedder(t *testing.T) {
	store := setupStore(t)

	s := New(store, nil)
	_, err := s.Search(context.Background(), Request{Query: "anything", Mode: ModeVector})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedder")
}

func TestSearch_Hybrid(t *testing.T) {
	store := setupStore(t)
	emb := embedder.NewLocalProvider()

	bodies := map[string]string{
		"logging.md": "Log files rotate nightly via a cron job.",
		"deploy.md":  "Deployment runs through the release pipeline.",
		"backup.md":  "Backups are retained for thirty days.",
	}
	for path, body := range bodies {
		doc := addDoc(t, store, "ops", path, path, body)
		embedDoc(t, store, emb, doc, body)
	}

	s := New(store, emb)
	resp, err := s.Search(context.Background(), Request{Query: "rotate log files", Mode: ModeHybrid, Limit: 5})
	require.NoError(t, err)

	require.NotEmpty(t, resp.Results)
	// The lexical match must surface, and every result is hybrid-sourced
	assert.Equal(t, "qmd://ops/logging.md", resp.Results[0].Ref.File())
	for _, r := range resp.Results {
		assert.Equal(t, types.SourceHybrid, r.Source)
	}
	assert.Len(t, resp.Expanded, 2)
}

func TestSearch_Hybrid_NoEmbedderDegradesToLexical(t *testing.T) {
	store := setupStore(t)
	addDoc(t, store, "notes", "a.md", "A", "unique lexical phrase")

	s := New(store, nil)
	resp, err := s.Search(context.Background(), Request{Query: "unique lexical phrase", Mode: ModeHybrid})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Zero(t, resp.VecHits)
	require.Len(t, resp.Expanded, 1)
	assert.Equal(t, types.QueryLex, resp.Expanded[0].Type)
}

func TestSearch_Hybrid_AttachesContext(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	addDoc(t, store, "notes", "infra/logging.md", "Logging", "rotate logs nightly")
	require.NoError(t, store.SetContext(ctx, "notes", "infra", "infrastructure runbooks"))

	s := New(store, nil)
	resp, err := s.Search(ctx, Request{Query: "rotate logs", Mode: ModeFTS})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "infrastructure runbooks", resp.Results[0].Context)
}

func TestSearch_MinScore(t *testing.T) {
	store := setupStore(t)
	addDoc(t, store, "notes", "a.md", "A", "matching text")

	s := New(store, nil)
	resp, err := s.Search(context.Background(), Request{Query: "matching text", Mode: ModeFTS, MinScore: 1e9})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestFuseRRF_MultiChannelWins(t *testing.T) {
	mk := func(coll, path string) types.SearchResult {
		return types.SearchResult{Ref: types.DocumentRef{Collection: coll, Path: path}}
	}

	listA := []types.SearchResult{mk("c", "both.md"), mk("c", "only-a.md")}
	listB := []types.SearchResult{mk("c", "only-b.md"), mk("c", "both.md")}

	fused := fuseRRF([][]types.SearchResult{listA, listB}, DefaultRRFConstant)
	require.Len(t, fused, 3)

	// both.md appears on two channels, so it beats both single-channel
	// firsts even though it ranked second on one list
	assert.Equal(t, "qmd://c/both.md", fused[0].Ref.File())

	wantBoth := 1.0/61.0 + 1.0/62.0
	assert.InDelta(t, wantBoth, fused[0].Score, 1e-9)
}

func TestFuseRRF_TieBrokenByMinRank(t *testing.T) {
	mk := func(path string) types.SearchResult {
		return types.SearchResult{Ref: types.DocumentRef{Collection: "c", Path: path}}
	}

	// Each document ranks first on its own list, so scores and min
	// ranks tie exactly.
	listA := []types.SearchResult{mk("first.md")}
	listB := []types.SearchResult{mk("second.md")}

	fused := fuseRRF([][]types.SearchResult{listA, listB}, DefaultRRFConstant)
	require.Len(t, fused, 2)
	// Equal scores and equal min ranks keep first-seen order
	assert.Equal(t, "qmd://c/first.md", fused[0].Ref.File())
}

func TestFuseRRF_Empty(t *testing.T) {
	assert.Empty(t, fuseRRF(nil, DefaultRRFConstant))
	assert.Empty(t, fuseRRF([][]types.SearchResult{{}, {}}, DefaultRRFConstant))
}

func TestExpandSimple(t *testing.T) {
	queries := ExpandSimple("find me")
	require.Len(t, queries, 2)
	assert.Equal(t, types.LexQuery("find me"), queries[0])
	assert.Equal(t, types.VecQuery("find me"), queries[1])
}

// scriptedGenerator returns canned expansions and counts calls.
type scriptedGenerator struct {
	queries []types.Queryable
	err     error
	calls   int
}

func (g *scriptedGenerator) Generate(context.Context, string, int) (string, error) {
	return "", fmt.Errorf("not used")
}

func (g *scriptedGenerator) ExpandQuery(context.Context, string, bool) ([]types.Queryable, error) {
	g.calls++
	return g.queries, g.err
}

func (g *scriptedGenerator) Available() bool { return true }
func (g *scriptedGenerator) Model() string   { return "scripted" }
func (g *scriptedGenerator) Close() error    { return nil }

func TestExpand_NoGenerator(t *testing.T) {
	store := setupStore(t)

	queries := Expand(context.Background(), store, nil, "q")
	assert.Equal(t, ExpandSimple("q"), queries)

	queries = Expand(context.Background(), store, genai.DisabledGenerator{}, "q")
	assert.Equal(t, ExpandSimple("q"), queries)
}

func TestExpand_GeneratorFailureFallsBack(t *testing.T) {
	store := setupStore(t)
	gen := &scriptedGenerator{err: fmt.Errorf("model offline")}

	queries := Expand(context.Background(), store, gen, "q")
	assert.Equal(t, ExpandSimple("q"), queries)
}

func TestExpand_CachesResult(t *testing.T) {
	store := setupStore(t)
	gen := &scriptedGenerator{queries: []types.Queryable{
		types.LexQuery("log rotation"),
		types.HydeQuery("Logs rotate nightly."),
	}}

	first := Expand(context.Background(), store, gen, "rotate logs")
	require.Len(t, first, 2)
	assert.Equal(t, 1, gen.calls)

	// Second expansion of the same query is served from llm_cache
	second := Expand(context.Background(), store, gen, "rotate logs")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, gen.calls)
}

// scriptedReranker reverses whatever it is given.
type scriptedReranker struct {
	err   error
	calls int
}

func (r *scriptedReranker) Rerank(_ context.Context, _ string, docs []genai.RerankDocument) ([]genai.RerankResult, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	results := make([]genai.RerankResult, 0, len(docs))
	for i := len(docs) - 1; i >= 0; i-- {
		results = append(results, genai.RerankResult{File: docs[i].File, Index: i, Score: float64(len(docs) - i)})
	}
	return results, nil
}

func (r *scriptedReranker) Available() bool { return true }
func (r *scriptedReranker) Close() error    { return nil }

func TestSearch_Hybrid_Rerank(t *testing.T) {
	store := setupStore(t)
	addDoc(t, store, "notes", "a.md", "A", "target phrase plus extra words here")
	addDoc(t, store, "notes", "b.md", "B", "target phrase")

	rr := &scriptedReranker{}
	s := New(store, nil).WithReranker(rr)

	plain, err := s.Search(context.Background(), Request{Query: "target phrase", Mode: ModeHybrid, NoRerank: true})
	require.NoError(t, err)
	require.Len(t, plain.Results, 2)
	assert.False(t, plain.Reranked)

	resp, err := s.Search(context.Background(), Request{Query: "target phrase", Mode: ModeHybrid})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Reranked)
	assert.Equal(t, 1, rr.calls)

	// Reranker reversed the fused order
	assert.Equal(t, plain.Results[0].Ref, resp.Results[1].Ref)
	assert.Equal(t, plain.Results[1].Ref, resp.Results[0].Ref)
}

// subsetReranker keeps only the candidate at the given index.
type subsetReranker struct {
	keep int
}

func (r *subsetReranker) Rerank(_ context.Context, _ string, docs []genai.RerankDocument) ([]genai.RerankResult, error) {
	return []genai.RerankResult{{File: docs[r.keep].File, Index: r.keep, Score: 1}}, nil
}

func (r *subsetReranker) Available() bool { return true }
func (r *subsetReranker) Close() error    { return nil }

func TestSearch_Hybrid_RerankSubsetDropsOmitted(t *testing.T) {
	store := setupStore(t)
	addDoc(t, store, "notes", "a.md", "A", "target phrase plus extra words here")
	addDoc(t, store, "notes", "b.md", "B", "target phrase")

	s := New(store, nil).WithReranker(&subsetReranker{keep: 1})

	plain, err := s.Search(context.Background(), Request{Query: "target phrase", Mode: ModeHybrid, NoRerank: true})
	require.NoError(t, err)
	require.Len(t, plain.Results, 2)

	// The reranker returned only the second fused candidate, so the
	// omitted one drops out entirely
	resp, err := s.Search(context.Background(), Request{Query: "target phrase", Mode: ModeHybrid})
	require.NoError(t, err)
	assert.True(t, resp.Reranked)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, plain.Results[1].Ref, resp.Results[0].Ref)
}

func TestSearch_Hybrid_RerankFailurePreservesOrder(t *testing.T) {
	store := setupStore(t)
	addDoc(t, store, "notes", "a.md", "A", "target phrase plus extra words here")
	addDoc(t, store, "notes", "b.md", "B", "target phrase")

	rr := &scriptedReranker{err: fmt.Errorf("rerank offline")}
	s := New(store, nil).WithReranker(rr)

	plain, err := s.Search(context.Background(), Request{Query: "target phrase", Mode: ModeHybrid, NoRerank: true})
	require.NoError(t, err)

	resp, err := s.Search(context.Background(), Request{Query: "target phrase", Mode: ModeHybrid})
	require.NoError(t, err)
	assert.False(t, resp.Reranked)

	require.Equal(t, len(plain.Results), len(resp.Results))
	for i := range plain.Results {
		assert.Equal(t, plain.Results[i].Ref, resp.Results[i].Ref)
	}
}
