package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Content operations

// insertContentWithQuerier is the internal implementation that uses a querier
func (s *Store) insertContentWithQuerier(ctx context.Context, q querier, body string) (string, error) {
	hash := HashContent(body)
	query := `
		INSERT INTO content (hash, doc, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`
	if _, err := q.ExecContext(ctx, query, hash, body, time.Now()); err != nil {
		return "", fmt.Errorf("failed to insert content: %w", err)
	}
	return hash, nil
}

// InsertContent stores a document body in the content-addressed table
// and returns its hash. Inserting the same body twice is a no-op.
func (s *Store) InsertContent(ctx context.Context, body string) (string, error) {
	return s.insertContentWithQuerier(ctx, s.querier(), body)
}

// getContentBodyWithQuerier is the internal implementation that uses a querier
func (s *Store) getContentBodyWithQuerier(ctx context.Context, q querier, hash string) (string, error) {
	var body string
	err := q.QueryRowContext(ctx, "SELECT doc FROM content WHERE hash = ?", hash).Scan(&body)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return body, nil
}

// GetContentBody returns the body stored under a content hash.
func (s *Store) GetContentBody(ctx context.Context, hash string) (string, error) {
	return s.getContentBodyWithQuerier(ctx, s.querier(), hash)
}

// Document operations

const documentColumns = `id, docid, collection, path, title, hash, active, created_at, modified_at`

func scanDocument(row interface {
	Scan(dest ...interface{}) error
}) (*Document, error) {
	var doc Document
	var active int
	err := row.Scan(
		&doc.ID, &doc.Docid, &doc.Collection, &doc.Path, &doc.Title,
		&doc.Hash, &active, &doc.CreatedAt, &doc.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Active = active != 0
	return &doc, nil
}

// insertDocumentWithQuerier is the internal implementation that uses a querier
func (s *Store) insertDocumentWithQuerier(ctx context.Context, q querier, doc *Document) error {
	if doc.Docid == "" {
		doc.Docid = DocidFor(doc.Collection, doc.Path)
	}
	query := `
		INSERT INTO documents (docid, collection, path, title, hash, active, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		doc.Docid, doc.Collection, doc.Path, doc.Title, doc.Hash, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	doc.ID = id
	doc.Active = true
	doc.CreatedAt = now
	doc.ModifiedAt = now
	return nil
}

// InsertDocument creates an active catalog row for a new document.
// Docid is derived from (collection, path) when not already set.
func (s *Store) InsertDocument(ctx context.Context, doc *Document) error {
	return s.insertDocumentWithQuerier(ctx, s.querier(), doc)
}

// updateDocumentWithQuerier is the internal implementation that uses a querier
func (s *Store) updateDocumentWithQuerier(ctx context.Context, q querier, id int64, hash, title string) error {
	query := `
		UPDATE documents
		SET hash = ?, title = ?, active = 1, modified_at = ?
		WHERE id = ?
	`
	result, err := q.ExecContext(ctx, query, hash, title, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
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

// UpdateDocument points an existing catalog row at new content,
// refreshing the title and modified time. The row is reactivated if it
// had been soft-deleted.
func (s *Store) UpdateDocument(ctx context.Context, id int64, hash, title string) error {
	return s.updateDocumentWithQuerier(ctx, s.querier(), id, hash, title)
}

// updateDocumentTitleWithQuerier is the internal implementation that uses a querier
func (s *Store) updateDocumentTitleWithQuerier(ctx context.Context, q querier, id int64, title string) error {
	result, err := q.ExecContext(ctx,
		"UPDATE documents SET title = ?, modified_at = ? WHERE id = ?", title, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update document title: %w", err)
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

// UpdateDocumentTitle rewrites the title of a catalog row, touching its
// modified time.
func (s *Store) UpdateDocumentTitle(ctx context.Context, id int64, title string) error {
	return s.updateDocumentTitleWithQuerier(ctx, s.querier(), id, title)
}

// findActiveDocumentWithQuerier is the internal implementation that uses a querier
func (s *Store) findActiveDocumentWithQuerier(ctx context.Context, q querier, collection, path string) (*Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE collection = ? AND path = ? AND active = 1
	`
	doc, err := scanDocument(q.QueryRowContext(ctx, query, collection, path))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// FindActiveDocument returns the active catalog row for a path.
func (s *Store) FindActiveDocument(ctx context.Context, collection, path string) (*Document, error) {
	return s.findActiveDocumentWithQuerier(ctx, s.querier(), collection, path)
}

// findDocumentByDocidWithQuerier is the internal implementation that uses a querier
func (s *Store) findDocumentByDocidWithQuerier(ctx context.Context, q querier, docid string) (*Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE docid = ? AND active = 1
	`
	doc, err := scanDocument(q.QueryRowContext(ctx, query, docid))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// FindDocumentByDocid resolves a "#xxxxxxxx" short id to its active
// catalog row. Soft-deleted documents do not resolve.
func (s *Store) FindDocumentByDocid(ctx context.Context, docid string) (*Document, error) {
	return s.findDocumentByDocidWithQuerier(ctx, s.querier(), docid)
}

// findAnyDocumentByDocidWithQuerier is the internal implementation that uses a querier
func (s *Store) findAnyDocumentByDocidWithQuerier(ctx context.Context, q querier, docid string) (*Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE docid = ?
		ORDER BY active DESC, modified_at DESC
		LIMIT 1
	`
	doc, err := scanDocument(q.QueryRowContext(ctx, query, docid))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// FindAnyDocumentByDocid resolves a docid regardless of active state,
// preferring the active row. Sync uses it to reactivate soft-deleted
// rows in place; external lookups go through FindDocumentByDocid.
func (s *Store) FindAnyDocumentByDocid(ctx context.Context, docid string) (*Document, error) {
	return s.findAnyDocumentByDocidWithQuerier(ctx, s.querier(), docid)
}

// deactivateDocumentWithQuerier is the internal implementation that uses a querier
func (s *Store) deactivateDocumentWithQuerier(ctx context.Context, q querier, id int64) error {
	query := `UPDATE documents SET active = 0, modified_at = ? WHERE id = ?`
	result, err := q.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate document: %w", err)
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

// DeactivateDocument soft-deletes a catalog row. The row and its
// content survive until maintenance purges them.
func (s *Store) DeactivateDocument(ctx context.Context, id int64) error {
	return s.deactivateDocumentWithQuerier(ctx, s.querier(), id)
}

// getActiveDocumentPathsWithQuerier is the internal implementation that uses a querier
func (s *Store) getActiveDocumentPathsWithQuerier(ctx context.Context, q querier, collection string) ([]string, error) {
	query := `
		SELECT path FROM documents
		WHERE collection = ? AND active = 1
		ORDER BY path
	`
	rows, err := q.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	paths := make([]string, 0)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// GetActiveDocumentPaths lists the active paths of a collection,
// sorted. Used by sync to detect removed files.
func (s *Store) GetActiveDocumentPaths(ctx context.Context, collection string) ([]string, error) {
	return s.getActiveDocumentPathsWithQuerier(ctx, s.querier(), collection)
}

// listDocumentsWithQuerier is the internal implementation that uses a querier
func (s *Store) listDocumentsWithQuerier(ctx context.Context, q querier, collection, prefix string) ([]*Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE active = 1
	`
	args := []interface{}{}
	if collection != "" {
		query += " AND collection = ?"
		args = append(args, collection)
	}
	if prefix != "" {
		query += " AND path LIKE ? ESCAPE '\\'"
		args = append(args, escapeLike(prefix)+"%")
	}
	query += " ORDER BY collection, path"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	docs := make([]*Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListDocuments lists active catalog rows, optionally scoped to one
// collection and a path prefix. Empty filters list everything.
func (s *Store) ListDocuments(ctx context.Context, collection, prefix string) ([]*Document, error) {
	return s.listDocumentsWithQuerier(ctx, s.querier(), collection, prefix)
}

// escapeLike escapes LIKE metacharacters so a prefix matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

// removeCollectionDocumentsWithQuerier is the internal implementation that uses a querier
func (s *Store) removeCollectionDocumentsWithQuerier(ctx context.Context, q querier, collection string) (int, error) {
	result, err := q.ExecContext(ctx, "DELETE FROM documents WHERE collection = ?", collection)
	if err != nil {
		return 0, fmt.Errorf("failed to remove collection documents: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// RemoveCollectionDocuments hard-deletes every catalog row of a
// collection, active or not. Content rows are left for orphan cleanup.
func (s *Store) RemoveCollectionDocuments(ctx context.Context, collection string) (int, error) {
	return s.removeCollectionDocumentsWithQuerier(ctx, s.querier(), collection)
}

// renameCollectionDocumentsWithQuerier is the internal implementation that uses a querier
func (s *Store) renameCollectionDocumentsWithQuerier(ctx context.Context, q querier, oldName, newName string) (int, error) {
	// Docids are derived from (collection, path), so every row needs a
	// fresh docid under the new collection name.
	rows, err := q.QueryContext(ctx, "SELECT id, path FROM documents WHERE collection = ?", oldName)
	if err != nil {
		return 0, err
	}
	type idPath struct {
		id   int64
		path string
	}
	var targets []idPath
	for rows.Next() {
		var t idPath
		if err := rows.Scan(&t.id, &t.path); err != nil {
			_ = rows.Close()
			return 0, err
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, err
	}
	_ = rows.Close()

	for _, t := range targets {
		_, err := q.ExecContext(ctx,
			"UPDATE documents SET collection = ?, docid = ? WHERE id = ?",
			newName, DocidFor(newName, t.path), t.id)
		if err != nil {
			return 0, fmt.Errorf("failed to rename document %d: %w", t.id, err)
		}
	}
	return len(targets), nil
}

// RenameCollectionDocuments moves every catalog row from one collection
// name to another, recomputing docids.
func (s *Store) RenameCollectionDocuments(ctx context.Context, oldName, newName string) (int, error) {
	return s.renameCollectionDocumentsWithQuerier(ctx, s.querier(), oldName, newName)
}
