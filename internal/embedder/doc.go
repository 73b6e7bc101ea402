// Package embedder generates vector embeddings for document chunks and
// search queries.
//
// Documents and queries are embedded asymmetrically: document chunks are
// framed with their title (and, on providers that support it, a passage
// task hint), while queries are framed as retrieval queries. Both sides
// must come from the same provider and model or similarities are
// meaningless.
//
// # Basic Usage
//
//	// Create embedder (auto-detects provider from environment)
//	emb, err := embedder.NewFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	docVec, err := emb.EmbedDocument(ctx, chunk.Text, doc.Title)
//	queryVec, err := emb.EmbedQuery(ctx, "how do I rotate logs")
//
// # Batch Processing
//
// Chunk backlogs should go through EmbedDocuments, which batches API
// calls:
//
//	vecs, err := emb.EmbedDocuments(ctx, texts, titles)
//
// # Providers
//
// Supported providers:
//   - jina: Jina AI embeddings API (asymmetric via task hints)
//   - openai: OpenAI embeddings API
//   - local: deterministic hash-derived vectors, no network
//
// Selection happens in NewFromEnv: QMD_EMBEDDING_PROVIDER wins, then
// whichever API key is present, then local. The local provider exists
// so indexing and tests work offline; its vectors carry no semantics.
//
// # Caching and Retry
//
// Successful embeddings are cached in-memory (LRU, keyed by content
// hash). API calls retry with exponential backoff on transient failures.
package embedder
