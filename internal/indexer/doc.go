// Package indexer reconciles collection directories with the document
// catalog and processes the embedding backlog.
//
// Sync is one-directional: the filesystem is the source of truth.
// Matching files are read, hashed, and compared against the active
// catalog rows; new files insert, changed files update, and files that
// disappeared are deactivated (soft delete). A per-collection lock file
// refuses concurrent syncs of the same collection.
//
// # Basic Usage
//
//	idx := indexer.New(store, emb, nil)
//	stats, err := idx.SyncCollection(ctx, coll)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Printf("%d indexed, %d updated, %d unchanged, %d removed",
//	    stats.Indexed, stats.Updated, stats.Unchanged, stats.Deactivated)
//
// EmbedPending chunks and embeds every document body that has no
// vectors yet. Failures on individual documents are reported through
// the Warnf callback and do not stop the backlog.
package indexer
