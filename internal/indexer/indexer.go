package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/pyroth/qmd/internal/chunker"
	"github.com/pyroth/qmd/internal/collections"
	"github.com/pyroth/qmd/internal/embedder"
	"github.com/pyroth/qmd/internal/markdown"
	"github.com/pyroth/qmd/internal/storage"
)

// Warnf receives non-fatal per-file problems during sync. The boundary
// layer decides how to present them.
type Warnf func(format string, args ...any)

// Config contains configuration for the indexer
type Config struct {
	Workers int    // concurrent file readers (default: runtime.NumCPU())
	LockDir string // where sync lock files live (default: os.TempDir())
	Warnf   Warnf  // nil discards warnings
}

// Stats summarizes one collection sync.
type Stats struct {
	Indexed     int // new documents (including reactivations)
	Updated     int // content changed
	Unchanged   int // hash matched
	Deactivated int // active rows whose file disappeared
	Skipped     int // unreadable or non-UTF-8 files
}

// EmbedStats summarizes one embedding backlog run.
type EmbedStats struct {
	Documents int
	Chunks    int
	Failed    int
}

// Indexer coordinates the sync pipeline: walk -> read+hash -> reconcile
type Indexer struct {
	store   storage.Storage
	emb     embedder.Embedder
	workers int
	lockDir string
	warnf   Warnf
}

// New creates an Indexer. The embedder may be nil; EmbedPending then
// fails but sync works normally.
func New(store storage.Storage, emb embedder.Embedder, cfg *Config) *Indexer {
	idx := &Indexer{
		store:   store,
		emb:     emb,
		workers: runtime.NumCPU(),
		warnf:   func(string, ...any) {},
	}
	if cfg != nil {
		if cfg.Workers > 0 {
			idx.workers = cfg.Workers
		}
		idx.lockDir = cfg.LockDir
		if cfg.Warnf != nil {
			idx.warnf = cfg.Warnf
		}
	}
	return idx
}

// fileRecord is one candidate file after the concurrent read stage.
type fileRecord struct {
	path  string // normalized collection-relative path
	title string
	hash  string
	body  string
}

// SyncCollection reconciles one collection directory with the catalog.
// The filesystem wins: new files insert, changed files update, missing
// files deactivate. Only one sync per collection runs at a time.
func (idx *Indexer) SyncCollection(ctx context.Context, coll collections.Collection) (*Stats, error) {
	lock, err := AcquireSyncLock(idx.lockDir, coll.Name)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	pattern := coll.Pattern
	if pattern == "" {
		pattern = collections.DefaultPattern
	}

	rels, err := idx.discoverFiles(coll.Path, pattern)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", coll.Path, err)
	}

	stats := &Stats{}
	records, err := idx.readFiles(ctx, coll.Path, rels, stats)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seen[rec.path] = true
		if err := idx.applyRecord(ctx, coll.Name, rec, stats); err != nil {
			return nil, fmt.Errorf("apply %s: %w", rec.path, err)
		}
	}

	active, err := idx.store.GetActiveDocumentPaths(ctx, coll.Name)
	if err != nil {
		return nil, err
	}
	for _, path := range active {
		if seen[path] {
			continue
		}
		doc, err := idx.store.FindActiveDocument(ctx, coll.Name, path)
		if err != nil {
			continue
		}
		if err := idx.store.DeactivateDocument(ctx, doc.ID); err != nil {
			return nil, fmt.Errorf("deactivate %s: %w", path, err)
		}
		stats.Deactivated++
	}

	return stats, nil
}

// discoverFiles walks the collection root following symlinks and
// returns normalized relative paths matching the glob. Symlink cycles
// are broken by tracking resolved directories.
func (idx *Indexer) discoverFiles(root, pattern string) ([]string, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}

	var rels []string
	visited := make(map[string]bool)

	var walk func(dir string) error
	walk = func(dir string) error {
		resolved, err := filepath.EvalSymlinks(dir)
		if err != nil {
			idx.warnf("skipping %s: %v", dir, err)
			return nil
		}
		if visited[resolved] {
			return nil
		}
		visited[resolved] = true

		entries, err := os.ReadDir(dir)
		if err != nil {
			idx.warnf("skipping %s: %v", dir, err)
			return nil
		}

		for _, entry := range entries {
			name := entry.Name()
			full := filepath.Join(dir, name)

			isDir := entry.IsDir()
			if entry.Type()&fs.ModeSymlink != 0 {
				st, err := os.Stat(full)
				if err != nil {
					idx.warnf("skipping %s: %v", full, err)
					continue
				}
				isDir = st.IsDir()
			}

			if isDir {
				if shouldExcludeDir(name) {
					continue
				}
				if err := walk(full); err != nil {
					return err
				}
				continue
			}

			rel, err := filepath.Rel(root, full)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if matchGlob(pattern, rel) {
				rels = append(rels, rel)
			}
		}
		return nil
	}

	if err := walk(root); err != nil {
		return nil, err
	}
	sort.Strings(rels)
	return rels, nil
}

// readFiles reads and hashes candidates concurrently. Unreadable or
// non-UTF-8 files are warned, counted as skipped, and dropped.
func (idx *Indexer) readFiles(ctx context.Context, root string, rels []string, stats *Stats) ([]fileRecord, error) {
	slots := make([]*fileRecord, len(rels))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	for i, rel := range rels {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				idx.warnf("could not read %s: %v", rel, err)
				return nil
			}
			if !utf8.Valid(data) {
				idx.warnf("skipping %s: not valid UTF-8", rel)
				return nil
			}
			body := string(data)
			slots[i] = &fileRecord{
				path:  storage.Handelize(rel),
				title: markdown.ExtractTitle(body, rel),
				hash:  storage.HashContent(body),
				body:  body,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]fileRecord, 0, len(slots))
	for _, slot := range slots {
		if slot == nil {
			stats.Skipped++
			continue
		}
		records = append(records, *slot)
	}
	return records, nil
}

// applyRecord writes one file's state into the catalog.
func (idx *Indexer) applyRecord(ctx context.Context, collection string, rec fileRecord, stats *Stats) error {
	doc, err := idx.store.FindActiveDocument(ctx, collection, rec.path)
	switch {
	case err == nil:
		if doc.Hash == rec.hash {
			if doc.Title != rec.title {
				if err := idx.store.UpdateDocumentTitle(ctx, doc.ID, rec.title); err != nil {
					return err
				}
			}
			stats.Unchanged++
			return nil
		}
		if _, err := idx.store.InsertContent(ctx, rec.body); err != nil {
			return err
		}
		if err := idx.store.UpdateDocument(ctx, doc.ID, rec.hash, rec.title); err != nil {
			return err
		}
		stats.Updated++
		return nil

	case errors.Is(err, storage.ErrNotFound):
		if _, err := idx.store.InsertContent(ctx, rec.body); err != nil {
			return err
		}
		// A previously deactivated row for this path is reactivated
		// rather than duplicated; docids are stable, so look it up.
		if prior, ferr := idx.store.FindAnyDocumentByDocid(ctx, storage.DocidFor(collection, rec.path)); ferr == nil {
			if err := idx.store.UpdateDocument(ctx, prior.ID, rec.hash, rec.title); err != nil {
				return err
			}
		} else {
			newDoc := &storage.Document{
				Collection: collection,
				Path:       rec.path,
				Title:      rec.title,
				Hash:       rec.hash,
			}
			if err := idx.store.InsertDocument(ctx, newDoc); err != nil {
				return err
			}
		}
		stats.Indexed++
		return nil

	default:
		return err
	}
}

// UpdateAll refreshes and syncs every collection: configured context
// annotations are written to the catalog, then per collection the
// optional update command runs, then git pull when requested and the
// root is a git checkout, then a normal sync. Collections fail
// independently; the joined error covers the failures.
func (idx *Indexer) UpdateAll(ctx context.Context, cfg *collections.Config, gitPull bool) (map[string]*Stats, error) {
	results := make(map[string]*Stats, len(cfg.Collections))
	var errs []error

	if err := idx.applyContexts(ctx, cfg); err != nil {
		errs = append(errs, err)
	}

	for _, coll := range cfg.Collections {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		if coll.Update != "" {
			if err := runInDir(ctx, coll.Path, "sh", "-c", coll.Update); err != nil {
				idx.warnf("update command for %s failed: %v", coll.Name, err)
			}
		}
		if gitPull {
			if _, err := os.Stat(filepath.Join(coll.Path, ".git")); err == nil {
				if err := runInDir(ctx, coll.Path, "git", "pull"); err != nil {
					idx.warnf("git pull for %s failed: %v", coll.Name, err)
				}
			}
		}

		stats, err := idx.SyncCollection(ctx, coll)
		if err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", coll.Name, err))
			continue
		}
		results[coll.Name] = stats
	}
	return results, errors.Join(errs...)
}

// applyContexts writes the configured annotations into the catalog so
// context lookups see them, including the global fallback.
func (idx *Indexer) applyContexts(ctx context.Context, cfg *collections.Config) error {
	var errs []error
	if cfg.GlobalContext != "" {
		if err := idx.store.SetContext(ctx, storage.GlobalCollection, "", cfg.GlobalContext); err != nil {
			errs = append(errs, fmt.Errorf("set global context: %w", err))
		}
	}
	for _, c := range cfg.Contexts {
		if err := idx.store.SetContext(ctx, c.Collection, c.Path, c.Context); err != nil {
			errs = append(errs, fmt.Errorf("set context %s/%s: %w", c.Collection, c.Path, err))
		}
	}
	return errors.Join(errs...)
}

func runInDir(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(out))
	}
	return nil
}

// EmbedProgress reports backlog progress after each document.
type EmbedProgress func(done, total int)

// EmbedPending chunks and embeds every active document body that has no
// vectors yet. Individual documents fail independently.
func (idx *Indexer) EmbedPending(ctx context.Context, progress EmbedProgress) (*EmbedStats, error) {
	if idx.emb == nil {
		return nil, fmt.Errorf("embedding requires an embedder")
	}

	pending, err := idx.store.GetHashesNeedingEmbedding(ctx)
	if err != nil {
		return nil, err
	}
	stats := &EmbedStats{}
	if len(pending) == 0 {
		return stats, nil
	}

	c, err := chunker.New(chunker.DefaultTargetTokens, chunker.DefaultOverlapTokens, chunker.EstimateTokens)
	if err != nil {
		return nil, err
	}

	if err := idx.store.EnsureVectorTable(ctx, idx.emb.Dimension()); err != nil {
		return nil, err
	}

	for i, item := range pending {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		chunks := c.Split(item.Body)
		if len(chunks) == 0 {
			continue
		}

		texts := make([]string, len(chunks))
		titles := make([]string, len(chunks))
		for j, chunk := range chunks {
			texts[j] = chunk.Text
			titles[j] = item.Title
		}

		embs, err := idx.emb.EmbedDocuments(ctx, texts, titles)
		if err != nil {
			idx.warnf("embed %s: %v", item.Hash, err)
			stats.Failed++
			continue
		}

		ok := true
		for j, chunk := range chunks {
			err := idx.store.InsertEmbedding(ctx, &storage.Embedding{
				Hash:   item.Hash,
				Seq:    chunk.Seq,
				Pos:    chunk.Pos,
				Vector: embs[j].Vector,
				Model:  embs[j].Model,
			})
			if err != nil {
				idx.warnf("store embedding %s/%d: %v", item.Hash, chunk.Seq, err)
				stats.Failed++
				ok = false
				break
			}
			stats.Chunks++
		}
		if ok {
			stats.Documents++
		}

		if progress != nil {
			progress(i+1, len(pending))
		}
	}
	return stats, nil
}
