// Package storage provides SQLite-based persistence for the document index.
//
// The storage layer manages:
//   - Content-addressed document bodies (SHA-256 keyed)
//   - The document catalog (collection + path, soft-deleted via active flag)
//   - Full-text search over active documents (FTS5, BM25 ranked)
//   - Chunk embeddings and vector similarity search
//   - Context annotations attached to collections, directories, and files
//   - A response cache for generation-backed query expansion
//
// # Database Schema
//
// Tables:
//   - content: document bodies keyed by SHA-256 hash
//   - documents: catalog rows (docid, collection, path, title, hash, active)
//   - documents_fts: FTS5 index over active documents, trigger-maintained
//   - context: annotations keyed by (collection, path)
//   - content_vectors: per-chunk embeddings, created on first embed
//   - llm_cache: cached expansion/generation responses
//
// # Basic Usage
//
//	store, err := storage.NewStore("~/.cache/qmd/index.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	hash, _ := store.InsertContent(ctx, body)
//	doc := &storage.Document{Collection: "notes", Path: "guide.md", Title: title, Hash: hash}
//	_ = store.InsertDocument(ctx, doc)
//
//	results, _ := store.SearchFTS(ctx, "error handling", "", 10)
//
// # Build Tags
//
// Two build configurations are supported:
//
// CGO build (sqlite_vec tag):
//
//   - github.com/mattn/go-sqlite3 driver
//
//   - sqlite-vec extension computes cosine distance in SQL
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec,fts5"
//
// Pure Go build (default, purego tag):
//
//   - modernc.org/sqlite driver
//
//   - cosine similarity computed in Go
//
//     CGO_ENABLED=0 go build
//
// A Store is opened per logical request and closed when the request
// finishes; SQLite WAL mode handles cross-process readers.
package storage
