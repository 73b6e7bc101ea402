package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/pyroth/qmd/pkg/types"
)

// Vector index lifecycle

// ensureVectorTableWithQuerier is the internal implementation that uses a querier
func (s *Store) ensureVectorTableWithQuerier(ctx context.Context, q querier, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid vector dimension %d", dim)
	}

	var name string
	err := q.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='vector_meta'").Scan(&name)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check vector_meta table: %w", err)
	}
	if err == nil {
		var existingDim int
		derr := q.QueryRowContext(ctx, "SELECT dim FROM vector_meta WHERE id = 1").Scan(&existingDim)
		if derr == nil {
			if existingDim != dim {
				return fmt.Errorf("%w: table has %d, got %d", ErrDimensionMismatch, existingDim, dim)
			}
			return nil
		}
		if derr != sql.ErrNoRows {
			return derr
		}
	}

	if _, err := q.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS vector_meta (
		    id INTEGER PRIMARY KEY CHECK (id = 1),
		    dim INTEGER NOT NULL,
		    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("failed to create vector_meta: %w", err)
	}

	if _, err := q.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS content_vectors (
		    hash TEXT NOT NULL,
		    seq INTEGER NOT NULL,
		    pos INTEGER NOT NULL,
		    embedding BLOB NOT NULL,
		    model TEXT NOT NULL,
		    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		    PRIMARY KEY (hash, seq)
		)`); err != nil {
		return fmt.Errorf("failed to create content_vectors: %w", err)
	}
	if _, err := q.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_content_vectors_hash ON content_vectors(hash)"); err != nil {
		return err
	}

	_, err = q.ExecContext(ctx,
		"INSERT INTO vector_meta (id, dim, created_at) VALUES (1, ?, ?) ON CONFLICT(id) DO NOTHING",
		dim, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record vector dimension: %w", err)
	}
	return nil
}

// EnsureVectorTable creates the chunk vector table for the given
// dimension, or verifies the existing table matches. Creating with a
// different dimension than before returns ErrDimensionMismatch.
func (s *Store) EnsureVectorTable(ctx context.Context, dim int) error {
	return s.ensureVectorTableWithQuerier(ctx, s.querier(), dim)
}

// vectorIndexInfoWithQuerier is the internal implementation that uses a querier
func (s *Store) vectorIndexInfoWithQuerier(ctx context.Context, q querier) (*VectorIndex, error) {
	var name string
	err := q.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='vector_meta'").Scan(&name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var dim int
	if err := q.QueryRowContext(ctx, "SELECT dim FROM vector_meta WHERE id = 1").Scan(&dim); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	info := &VectorIndex{Dim: dim}
	err = q.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(MAX(model), '') FROM content_vectors").Scan(&info.Count, &info.Model)
	if err != nil {
		return nil, err
	}
	return info, nil
}

// VectorIndexInfo describes the vector table, or returns nil when no
// embeddings have ever been stored.
func (s *Store) VectorIndexInfo(ctx context.Context) (*VectorIndex, error) {
	return s.vectorIndexInfoWithQuerier(ctx, s.querier())
}

// insertEmbeddingWithQuerier is the internal implementation that uses a querier
func (s *Store) insertEmbeddingWithQuerier(ctx context.Context, q querier, emb *Embedding) error {
	var dim int
	err := q.QueryRowContext(ctx, "SELECT dim FROM vector_meta WHERE id = 1").Scan(&dim)
	if err != nil {
		return fmt.Errorf("vector table not initialized: %w", err)
	}
	if len(emb.Vector) != dim {
		return fmt.Errorf("%w: table has %d, got %d", ErrDimensionMismatch, dim, len(emb.Vector))
	}

	query := `
		INSERT INTO content_vectors (hash, seq, pos, embedding, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash, seq) DO UPDATE SET
			pos = excluded.pos,
			embedding = excluded.embedding,
			model = excluded.model,
			created_at = excluded.created_at
	`
	_, err = q.ExecContext(ctx, query,
		emb.Hash, emb.Seq, emb.Pos, serializeVector(emb.Vector), emb.Model, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert embedding: %w", err)
	}
	return nil
}

// InsertEmbedding stores one chunk vector. Re-embedding the same
// (hash, seq) replaces the previous vector.
func (s *Store) InsertEmbedding(ctx context.Context, emb *Embedding) error {
	return s.insertEmbeddingWithQuerier(ctx, s.querier(), emb)
}

// getHashesNeedingEmbeddingWithQuerier is the internal implementation that uses a querier
func (s *Store) getHashesNeedingEmbeddingWithQuerier(ctx context.Context, q querier) ([]PendingEmbedding, error) {
	// One row per hash: documents sharing a body embed it once
	query := `
		SELECT d.hash, MIN(d.title), c.doc
		FROM documents d
		JOIN content c ON c.hash = d.hash
		WHERE d.active = 1
	`
	info, err := s.vectorIndexInfoWithQuerier(ctx, q)
	if err != nil {
		return nil, err
	}
	if info != nil {
		query += " AND d.hash NOT IN (SELECT DISTINCT hash FROM content_vectors)"
	}
	query += " GROUP BY d.hash ORDER BY d.hash"

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	pending := make([]PendingEmbedding, 0)
	for rows.Next() {
		var p PendingEmbedding
		if err := rows.Scan(&p.Hash, &p.Title, &p.Body); err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// GetHashesNeedingEmbedding returns active bodies that have no chunk
// vectors yet. When no vector table exists every active body is pending.
func (s *Store) GetHashesNeedingEmbedding(ctx context.Context) ([]PendingEmbedding, error) {
	return s.getHashesNeedingEmbeddingWithQuerier(ctx, s.querier())
}

// clearEmbeddingsWithQuerier is the internal implementation that uses a querier
func (s *Store) clearEmbeddingsWithQuerier(ctx context.Context, q querier) (int, error) {
	info, err := s.vectorIndexInfoWithQuerier(ctx, q)
	if err != nil {
		return 0, err
	}
	if info == nil {
		return 0, nil
	}
	if _, err := q.ExecContext(ctx, "DROP TABLE IF EXISTS content_vectors"); err != nil {
		return 0, err
	}
	if _, err := q.ExecContext(ctx, "DROP TABLE IF EXISTS vector_meta"); err != nil {
		return 0, err
	}
	return info.Count, nil
}

// ClearEmbeddings drops the vector table entirely, returning the number
// of vectors removed. A following embed pass rebuilds it, so this is
// the path for switching embedding models or dimensions.
func (s *Store) ClearEmbeddings(ctx context.Context) (int, error) {
	return s.clearEmbeddingsWithQuerier(ctx, s.querier())
}

// Vector search

// searchVecWithQuerier is the internal implementation that uses a querier
func (s *Store) searchVecWithQuerier(ctx context.Context, q querier, vector []float32, collection string, limit int) ([]types.SearchResult, error) {
	if limit <= 0 {
		return []types.SearchResult{}, nil
	}

	info, err := s.vectorIndexInfoWithQuerier(ctx, q)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return []types.SearchResult{}, nil
	}
	if len(vector) != info.Dim {
		return nil, fmt.Errorf("%w: table has %d, got %d", ErrDimensionMismatch, info.Dim, len(vector))
	}

	// Use SQL-level distance when sqlite-vec is available; otherwise
	// compute cosine similarity in Go.
	if VectorExtensionAvailable {
		return searchVecOptimized(ctx, q, vector, collection, limit)
	}
	return searchVecFallback(ctx, q, vector, collection, limit)
}

// SearchVec ranks active documents by the cosine similarity of their
// best-matching chunk. An empty collection searches all collections;
// a missing vector table yields no results.
func (s *Store) SearchVec(ctx context.Context, vector []float32, collection string, limit int) ([]types.SearchResult, error) {
	return s.searchVecWithQuerier(ctx, s.querier(), vector, collection, limit)
}

// searchVecOptimized uses the sqlite-vec extension for SQL-based distance
func searchVecOptimized(ctx context.Context, q querier, vector []float32, collection string, limit int) ([]types.SearchResult, error) {
	query := `
		SELECT d.docid, d.collection, d.path, d.title, v.pos, length(c.doc),
		       1.0 - vec_distance_cosine(v.embedding, ?) AS similarity
		FROM content_vectors v
		JOIN documents d ON d.hash = v.hash AND d.active = 1
		JOIN content c ON c.hash = d.hash
	`
	args := []interface{}{serializeVector(vector)}
	if collection != "" {
		query += " WHERE d.collection = ?"
		args = append(args, collection)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []types.SearchResult
	for rows.Next() {
		var r types.SearchResult
		if err := rows.Scan(
			&r.Ref.Docid, &r.Ref.Collection, &r.Ref.Path, &r.Title,
			&r.ChunkPos, &r.BodyLength, &r.Score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		hits = append(hits, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return aggregateVecHits(hits, limit), nil
}

// searchVecFallback computes cosine similarity in Go.
// This is used when sqlite-vec is not available (purego builds).
func searchVecFallback(ctx context.Context, q querier, vector []float32, collection string, limit int) ([]types.SearchResult, error) {
	query := `
		SELECT d.docid, d.collection, d.path, d.title, v.pos, length(c.doc), v.embedding
		FROM content_vectors v
		JOIN documents d ON d.hash = v.hash AND d.active = 1
		JOIN content c ON c.hash = d.hash
	`
	args := []interface{}{}
	if collection != "" {
		query += " WHERE d.collection = ?"
		args = append(args, collection)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []types.SearchResult
	for rows.Next() {
		var r types.SearchResult
		var blob []byte
		if err := rows.Scan(
			&r.Ref.Docid, &r.Ref.Collection, &r.Ref.Path, &r.Title,
			&r.ChunkPos, &r.BodyLength, &blob,
		); err != nil {
			return nil, err
		}
		chunkVec := deserializeVector(blob)
		if len(chunkVec) != len(vector) {
			continue // Dimension mismatch, skip
		}
		r.Score = cosineSimilarity(vector, chunkVec)
		hits = append(hits, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return aggregateVecHits(hits, limit), nil
}

// aggregateVecHits collapses per-chunk hits to one result per document,
// keeping the chunk with the highest similarity, then ranks descending.
func aggregateVecHits(hits []types.SearchResult, limit int) []types.SearchResult {
	best := make(map[string]types.SearchResult)
	for _, h := range hits {
		key := h.Ref.File()
		if cur, ok := best[key]; !ok || h.Score > cur.Score {
			best[key] = h
		}
	}

	results := make([]types.SearchResult, 0, len(best))
	for _, r := range best {
		r.Source = types.SourceVector
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].BodyLength != results[j].BodyLength {
			return results[i].BodyLength < results[j].BodyLength
		}
		return results[i].Ref.Path < results[j].Ref.Path
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
