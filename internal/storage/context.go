package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"strings"
	"time"
)

// Context annotations

// GlobalCollection is the sentinel collection name for the annotation
// that applies to every document; LookupContext falls back to it when
// nothing closer matches.
const GlobalCollection = "*"

// setContextWithQuerier is the internal implementation that uses a querier
func (s *Store) setContextWithQuerier(ctx context.Context, q querier, collection, p, note string) error {
	query := `
		INSERT INTO context (collection, path, context, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, path) DO UPDATE SET
			context = excluded.context,
			created_at = excluded.created_at
	`
	if _, err := q.ExecContext(ctx, query, collection, p, note, time.Now()); err != nil {
		return fmt.Errorf("failed to set context: %w", err)
	}
	return nil
}

// SetContext attaches (or replaces) a context annotation. An empty path
// annotates the collection itself; otherwise path is a directory prefix
// or an exact document path.
func (s *Store) SetContext(ctx context.Context, collection, p, note string) error {
	return s.setContextWithQuerier(ctx, s.querier(), collection, p, note)
}

// getContextWithQuerier is the internal implementation that uses a querier
func (s *Store) getContextWithQuerier(ctx context.Context, q querier, collection, p string) (string, error) {
	var note string
	err := q.QueryRowContext(ctx,
		"SELECT context FROM context WHERE collection = ? AND path = ?",
		collection, p).Scan(&note)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return note, nil
}

// GetContext returns the annotation stored exactly at (collection, path).
func (s *Store) GetContext(ctx context.Context, collection, p string) (string, error) {
	return s.getContextWithQuerier(ctx, s.querier(), collection, p)
}

// listContextsWithQuerier is the internal implementation that uses a querier
func (s *Store) listContextsWithQuerier(ctx context.Context, q querier, collection string) ([]ContextEntry, error) {
	query := `SELECT collection, path, context, created_at FROM context`
	args := []interface{}{}
	if collection != "" {
		query += " WHERE collection = ?"
		args = append(args, collection)
	}
	query += " ORDER BY collection, path"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entries := make([]ContextEntry, 0)
	for rows.Next() {
		var e ContextEntry
		if err := rows.Scan(&e.Collection, &e.Path, &e.Context, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListContexts lists annotations, optionally scoped to one collection.
func (s *Store) ListContexts(ctx context.Context, collection string) ([]ContextEntry, error) {
	return s.listContextsWithQuerier(ctx, s.querier(), collection)
}

// deleteContextWithQuerier is the internal implementation that uses a querier
func (s *Store) deleteContextWithQuerier(ctx context.Context, q querier, collection, p string) error {
	result, err := q.ExecContext(ctx,
		"DELETE FROM context WHERE collection = ? AND path = ?", collection, p)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteContext removes the annotation stored at (collection, path).
func (s *Store) DeleteContext(ctx context.Context, collection, p string) error {
	return s.deleteContextWithQuerier(ctx, s.querier(), collection, p)
}

// lookupContextWithQuerier is the internal implementation that uses a querier
func (s *Store) lookupContextWithQuerier(ctx context.Context, q querier, collection, p string) (string, error) {
	candidates := contextCandidates(p)

	placeholders := make([]string, len(candidates))
	args := make([]interface{}, 0, len(candidates)+1)
	args = append(args, collection)
	for i, c := range candidates {
		placeholders[i] = "?"
		args = append(args, c)
	}

	// Longest matching path wins, so a file-level note shadows its
	// directory note, which shadows the collection note, which shadows
	// the global sentinel.
	query := `
		SELECT context FROM context
		WHERE (collection = ? AND path IN (` + strings.Join(placeholders, ",") + `))
		   OR (collection = '` + GlobalCollection + `' AND path = '')
		ORDER BY CASE WHEN collection = '` + GlobalCollection + `' THEN 1 ELSE 0 END,
			length(path) DESC
		LIMIT 1
	`
	var note string
	err := q.QueryRowContext(ctx, query, args...).Scan(&note)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return note, nil
}

// LookupContext finds the nearest enclosing annotation for a document
// path: the exact path, then each parent directory, then the
// collection, then the global annotation.
func (s *Store) LookupContext(ctx context.Context, collection, p string) (string, error) {
	return s.lookupContextWithQuerier(ctx, s.querier(), collection, p)
}

// contextCandidates expands a path into itself, its ancestor
// directories, and the collection-level empty path.
func contextCandidates(p string) []string {
	candidates := []string{p}
	for dir := path.Dir(p); dir != "." && dir != "/" && dir != ""; dir = path.Dir(dir) {
		candidates = append(candidates, dir)
	}
	if p != "" {
		candidates = append(candidates, "")
	}
	return candidates
}

// Response cache

// cacheGetWithQuerier is the internal implementation that uses a querier
func (s *Store) cacheGetWithQuerier(ctx context.Context, q querier, key string) (string, error) {
	var response string
	err := q.QueryRowContext(ctx, "SELECT response FROM llm_cache WHERE key = ?", key).Scan(&response)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return response, nil
}

// CacheGet returns a cached generation response.
func (s *Store) CacheGet(ctx context.Context, key string) (string, error) {
	return s.cacheGetWithQuerier(ctx, s.querier(), key)
}

// cachePutWithQuerier is the internal implementation that uses a querier
func (s *Store) cachePutWithQuerier(ctx context.Context, q querier, key, kind, model, response string) error {
	query := `
		INSERT INTO llm_cache (key, kind, model, response, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			kind = excluded.kind,
			model = excluded.model,
			response = excluded.response,
			created_at = excluded.created_at
	`
	if _, err := q.ExecContext(ctx, query, key, kind, model, response, time.Now()); err != nil {
		return fmt.Errorf("failed to cache response: %w", err)
	}
	return nil
}

// CachePut stores a generation response under a caller-computed key.
func (s *Store) CachePut(ctx context.Context, key, kind, model, response string) error {
	return s.cachePutWithQuerier(ctx, s.querier(), key, kind, model, response)
}

// clearCacheWithQuerier is the internal implementation that uses a querier
func (s *Store) clearCacheWithQuerier(ctx context.Context, q querier) (int, error) {
	result, err := q.ExecContext(ctx, "DELETE FROM llm_cache")
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ClearCache drops every cached response and reports how many were removed.
func (s *Store) ClearCache(ctx context.Context) (int, error) {
	return s.clearCacheWithQuerier(ctx, s.querier())
}
