package searcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pyroth/qmd/internal/embedder"
	"github.com/pyroth/qmd/internal/genai"
	"github.com/pyroth/qmd/internal/storage"
	"github.com/pyroth/qmd/pkg/types"
)

// Mode selects the retrieval strategy
type Mode string

const (
	ModeHybrid Mode = "hybrid" // expansion + FTS + vector with RRF
	ModeVector Mode = "vector" // vector similarity only
	ModeFTS    Mode = "fts"    // BM25 full-text only
)

// Request limits
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Request contains parameters for a search operation
type Request struct {
	Query      string
	Limit      int
	Mode       Mode
	Collection string  // restrict to one collection; empty searches all
	MinScore   float64 // drop results scoring below this
	NoExpand   bool    // hybrid: skip generation-backed expansion
	NoRerank   bool    // hybrid: skip reranking
}

// Response contains search results and per-channel metadata
type Response struct {
	Results  []types.SearchResult
	Mode     Mode
	Duration time.Duration
	Expanded []types.Queryable // sub-queries actually dispatched (hybrid)
	FTSHits  int
	VecHits  int
	Reranked bool
}

// Searcher coordinates retrieval across the lexical and vector channels
type Searcher struct {
	store     storage.Storage
	embedder  embedder.Embedder
	generator genai.Generator
	reranker  genai.Reranker
}

// New creates a Searcher. The embedder may be nil, which disables the
// vector channel; hybrid then degrades to lexical-only fusion.
func New(store storage.Storage, emb embedder.Embedder) *Searcher {
	return &Searcher{store: store, embedder: emb}
}

// WithGenerator attaches a generation capability for query expansion
func (s *Searcher) WithGenerator(gen genai.Generator) *Searcher {
	s.generator = gen
	return s
}

// WithReranker attaches a rerank capability for hybrid search
func (s *Searcher) WithReranker(rr genai.Reranker) *Searcher {
	s.reranker = rr
	return s
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	var resp *Response
	var err error
	switch req.Mode {
	case ModeFTS:
		resp, err = s.ftsSearch(ctx, req)
	case ModeVector:
		resp, err = s.vectorSearch(ctx, req)
	case ModeHybrid:
		resp, err = s.hybridSearch(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported search mode: %s", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	resp.Results = filterMinScore(resp.Results, req.MinScore)
	if len(resp.Results) > req.Limit {
		resp.Results = resp.Results[:req.Limit]
	}
	s.attachContexts(ctx, resp.Results)

	resp.Mode = req.Mode
	resp.Duration = time.Since(start)
	return resp, nil
}

func validateRequest(req *Request) error {
	if req.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if req.Mode == "" {
		req.Mode = ModeHybrid
	}
	return nil
}

func (s *Searcher) ftsSearch(ctx context.Context, req Request) (*Response, error) {
	results, err := s.store.SearchFTS(ctx, req.Query, req.Collection, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	return &Response{Results: results, FTSHits: len(results)}, nil
}

func (s *Searcher) vectorSearch(ctx context.Context, req Request) (*Response, error) {
	results, err := s.searchVecQuery(ctx, req.Query, req.Collection, req.Limit)
	if err != nil {
		return nil, err
	}
	return &Response{Results: results, VecHits: len(results)}, nil
}

// searchVecQuery embeds text as a query and runs the vector channel.
func (s *Searcher) searchVecQuery(ctx context.Context, text, collection string, limit int) ([]types.SearchResult, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("vector search requires an embedder")
	}
	emb, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := s.store.SearchVec(ctx, emb.Vector, collection, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return results, nil
}

// hybridSearch expands the query, runs every sub-query on its channel,
// and fuses the per-list rankings with RRF. Individual sub-queries may
// fail; only a total loss is an error.
func (s *Searcher) hybridSearch(ctx context.Context, req Request) (*Response, error) {
	var queries []types.Queryable
	if req.NoExpand {
		queries = ExpandSimple(req.Query)
	} else {
		queries = Expand(ctx, s.store, s.generator, req.Query)
	}
	if s.embedder == nil {
		queries = lexOnly(queries)
	}

	// Each sub-query over-fetches so fusion has candidates to promote
	fetch := req.Limit * 2

	var mu sync.Mutex
	lists := make([][]types.SearchResult, len(queries))
	errs := make([]error, len(queries))
	ftsHits, vecHits := 0, 0

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			var results []types.SearchResult
			var err error
			switch q.Type {
			case types.QueryLex:
				results, err = s.store.SearchFTS(gctx, q.Text, req.Collection, fetch)
			case types.QueryVec, types.QueryHyde:
				results, err = s.searchVecQuery(gctx, q.Text, req.Collection, fetch)
			default:
				err = fmt.Errorf("unknown query type %q", q.Type)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[i] = err
				return nil
			}
			lists[i] = results
			switch q.Type {
			case types.QueryLex:
				ftsHits += len(results)
			default:
				vecHits += len(results)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	succeeded := false
	for _, e := range errs {
		if e == nil {
			succeeded = true
			break
		}
	}
	if !succeeded && len(errs) > 0 {
		return nil, fmt.Errorf("all search channels failed: %w", errs[0])
	}

	fused := fuseRRF(lists, DefaultRRFConstant)

	reranked := false
	if !req.NoRerank && s.reranker != nil && s.reranker.Available() && len(fused) > 0 {
		fused, reranked = s.rerank(ctx, req.Query, fused, req.Limit*2)
	}

	return &Response{
		Results:  fused,
		Expanded: queries,
		FTSHits:  ftsHits,
		VecHits:  vecHits,
		Reranked: reranked,
	}, nil
}

// rerank re-scores the top candidates and reorders them to the
// returned ranking, leaving the tail in fused order. The capability may
// return fewer results than it was given; omitted candidates are
// dropped. Any failure keeps the fused order untouched.
func (s *Searcher) rerank(ctx context.Context, query string, fused []types.SearchResult, topN int) ([]types.SearchResult, bool) {
	if topN > len(fused) {
		topN = len(fused)
	}

	docs := make([]genai.RerankDocument, topN)
	for i, r := range fused[:topN] {
		docs[i] = genai.RerankDocument{
			File:  r.Ref.File(),
			Text:  s.bodyFor(ctx, r),
			Title: r.Title,
		}
	}

	ranked, err := s.reranker.Rerank(ctx, query, docs)
	if err != nil || len(ranked) == 0 || len(ranked) > topN {
		return fused, false
	}

	reordered := make([]types.SearchResult, 0, len(ranked)+len(fused)-topN)
	for _, rr := range ranked {
		if rr.Index < 0 || rr.Index >= topN {
			return fused, false
		}
		reordered = append(reordered, fused[rr.Index])
	}
	reordered = append(reordered, fused[topN:]...)
	return reordered, true
}

// bodyFor fetches a result's body for reranking, falling back to the
// title when the catalog lookup fails.
func (s *Searcher) bodyFor(ctx context.Context, r types.SearchResult) string {
	doc, err := s.store.FindActiveDocument(ctx, r.Ref.Collection, r.Ref.Path)
	if err != nil {
		return r.Title
	}
	body, err := s.store.GetContentBody(ctx, doc.Hash)
	if err != nil {
		return r.Title
	}
	return body
}

// attachContexts fills in the nearest context annotation for each final
// result, best-effort.
func (s *Searcher) attachContexts(ctx context.Context, results []types.SearchResult) {
	for i := range results {
		if note, err := s.store.LookupContext(ctx, results[i].Ref.Collection, results[i].Ref.Path); err == nil {
			results[i].Context = note
		}
	}
}

func lexOnly(queries []types.Queryable) []types.Queryable {
	kept := queries[:0]
	for _, q := range queries {
		if q.Type == types.QueryLex {
			kept = append(kept, q)
		}
	}
	return kept
}

func filterMinScore(results []types.SearchResult, min float64) []types.SearchResult {
	if min <= 0 {
		return results
	}
	kept := results[:0]
	for _, r := range results {
		if r.Score >= min {
			kept = append(kept, r)
		}
	}
	return kept
}
