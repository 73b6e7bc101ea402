package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// sqliteTimeLayouts covers the text forms the two drivers bind
// time.Time values with.
var sqliteTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
}

func parseSQLiteTime(s string) time.Time {
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// deleteInactiveDocumentsWithQuerier is the internal implementation that uses a querier
func (s *Store) deleteInactiveDocumentsWithQuerier(ctx context.Context, q querier) (int, error) {
	result, err := q.ExecContext(ctx, "DELETE FROM documents WHERE active = 0")
	if err != nil {
		return 0, fmt.Errorf("failed to delete inactive documents: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// DeleteInactiveDocuments purges soft-deleted catalog rows. Their
// content and vectors become orphans for the cleanup passes below.
func (s *Store) DeleteInactiveDocuments(ctx context.Context) (int, error) {
	return s.deleteInactiveDocumentsWithQuerier(ctx, s.querier())
}

// cleanupOrphanedContentWithQuerier is the internal implementation that uses a querier
func (s *Store) cleanupOrphanedContentWithQuerier(ctx context.Context, q querier) (int, error) {
	result, err := q.ExecContext(ctx, `
		DELETE FROM content
		WHERE hash NOT IN (SELECT DISTINCT hash FROM documents)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up orphaned content: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// CleanupOrphanedContent deletes content rows no catalog row points at.
// Reference counting is computed here on demand, never stored.
func (s *Store) CleanupOrphanedContent(ctx context.Context) (int, error) {
	return s.cleanupOrphanedContentWithQuerier(ctx, s.querier())
}

// cleanupOrphanedVectorsWithQuerier is the internal implementation that uses a querier
func (s *Store) cleanupOrphanedVectorsWithQuerier(ctx context.Context, q querier) (int, error) {
	info, err := s.vectorIndexInfoWithQuerier(ctx, q)
	if err != nil {
		return 0, err
	}
	if info == nil {
		return 0, nil
	}

	result, err := q.ExecContext(ctx, `
		DELETE FROM content_vectors
		WHERE hash NOT IN (SELECT hash FROM content)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up orphaned vectors: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// CleanupOrphanedVectors deletes chunk vectors whose content rows are
// gone. Run after CleanupOrphanedContent.
func (s *Store) CleanupOrphanedVectors(ctx context.Context) (int, error) {
	return s.cleanupOrphanedVectorsWithQuerier(ctx, s.querier())
}

// Vacuum reclaims free pages and truncates the WAL.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum: %w", err)
	}
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Status operations

// getStatusCountsWithQuerier is the internal implementation that uses a querier
func (s *Store) getStatusCountsWithQuerier(ctx context.Context, q querier) (*StatusCounts, error) {
	counts := &StatusCounts{}

	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE active = 1").Scan(&counts.TotalDocuments)
	if err != nil {
		return nil, err
	}

	pending, err := s.getHashesNeedingEmbeddingWithQuerier(ctx, q)
	if err != nil {
		return nil, err
	}
	counts.NeedsEmbedding = len(pending)

	info, err := s.vectorIndexInfoWithQuerier(ctx, q)
	if err != nil {
		return nil, err
	}
	if info != nil {
		counts.HasVectorIndex = true
		counts.VectorDim = info.Dim
	}

	rows, err := q.QueryContext(ctx, `
		SELECT collection, COUNT(*), MAX(modified_at)
		FROM documents
		WHERE active = 1
		GROUP BY collection
		ORDER BY collection
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var c CollectionCount
		var modified sql.NullString
		if err := rows.Scan(&c.Name, &c.ActiveCount, &modified); err != nil {
			return nil, err
		}
		// MAX() strips the column's declared type, so the driver hands
		// back text here regardless of build.
		if modified.Valid {
			c.LastModified = parseSQLiteTime(modified.String)
		}
		counts.Collections = append(counts.Collections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Database size
	var pageCount, pageSize int
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		counts.DBSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	return counts, nil
}

// GetStatusCounts gathers catalog and vector statistics for status
// reporting. Collection configuration (roots, patterns) is layered on
// by the caller, which owns the config file.
func (s *Store) GetStatusCounts(ctx context.Context) (*StatusCounts, error) {
	return s.getStatusCountsWithQuerier(ctx, s.querier())
}
