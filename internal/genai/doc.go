// Package genai provides optional text generation and reranking
// capabilities used to improve search quality.
//
// Both capabilities are best-effort: callers probe Available() and must
// degrade gracefully when a provider is not configured or a call fails.
// Search works without either; generation adds query expansion (lexical
// variants, semantic rephrasings, and hypothetical answers for HyDE
// retrieval) and reranking re-scores fused candidates with a
// cross-encoder.
//
// # Usage
//
//	gen := genai.NewGeneratorFromEnv()
//	if gen.Available() {
//	    queries, err := gen.ExpandQuery(ctx, "rotate logs", true)
//	    ...
//	}
//
//	rr := genai.NewRerankerFromEnv()
//	if rr.Available() {
//	    ranked, err := rr.Rerank(ctx, query, docs)
//	    ...
//	}
//
// The generator talks to an OpenAI-compatible chat completions API
// (OPENAI_API_KEY, optional QMD_GENAI_MODEL and QMD_GENAI_BASE_URL).
// The reranker talks to the Jina rerank API (JINA_API_KEY). Without the
// relevant key, NewGeneratorFromEnv and NewRerankerFromEnv return
// disabled instances whose Available() reports false.
package genai
