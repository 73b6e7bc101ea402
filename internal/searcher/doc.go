// Package searcher coordinates lexical, vector, and hybrid retrieval
// over the document catalog.
//
// Three modes are supported: fts (BM25 full-text), vector (cosine
// similarity over chunk embeddings), and hybrid. Hybrid search expands
// the query into typed sub-queries, dispatches lexical ones to FTS and
// semantic ones through the embedder to the vector channel, fuses the
// per-channel rankings with Reciprocal Rank Fusion, and optionally
// reranks the top candidates with a cross-encoder.
//
// # Basic Usage
//
//	s := searcher.New(store, emb)
//	resp, err := s.Search(ctx, searcher.Request{
//	    Query: "how are logs rotated",
//	    Mode:  searcher.ModeHybrid,
//	    Limit: 10,
//	})
//
// # Degradation
//
// Generation-backed expansion and reranking are both best-effort. When
// the generator is missing or fails, expansion falls back to the plain
// two-channel form (the original query on both lexical and vector
// channels). When the reranker is missing or fails, fused order stands.
// A hybrid search only errors when every channel fails.
package searcher
