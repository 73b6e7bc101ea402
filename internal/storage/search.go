package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/pyroth/qmd/pkg/types"
)

// searchFTSWithQuerier is the internal implementation that uses a querier
func (s *Store) searchFTSWithQuerier(ctx context.Context, q querier, query, collection string, limit int) ([]types.SearchResult, error) {
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return []types.SearchResult{}, nil
	}
	if limit <= 0 {
		return []types.SearchResult{}, nil
	}

	// bm25() is negative with lower meaning more relevant; negate it so
	// exposed scores rank descending. Ties prefer the shorter body,
	// then the lexically smaller path.
	sqlQuery := `
		SELECT d.docid, d.collection, d.path, d.title,
		       -bm25(documents_fts) AS score, length(c.doc)
		FROM documents_fts
		JOIN documents d ON d.id = documents_fts.rowid
		JOIN content c ON c.hash = d.hash
		WHERE documents_fts MATCH ? AND d.active = 1
	`
	args := []interface{}{sanitized}

	if collection != "" {
		sqlQuery += " AND d.collection = ?"
		args = append(args, collection)
	}

	sqlQuery += " ORDER BY score DESC, length(c.doc) ASC, d.path ASC LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.SearchResult, 0, limit)
	for rows.Next() {
		var r types.SearchResult
		if err := rows.Scan(
			&r.Ref.Docid, &r.Ref.Collection, &r.Ref.Path, &r.Title,
			&r.Score, &r.BodyLength,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Source = types.SourceFTS
		results = append(results, r)
	}
	return results, rows.Err()
}

// SearchFTS runs a BM25-ranked full-text search over active documents.
// An empty collection searches all collections. A query that sanitizes
// to nothing returns no results rather than an error.
func (s *Store) SearchFTS(ctx context.Context, query, collection string, limit int) ([]types.SearchResult, error) {
	return s.searchFTSWithQuerier(ctx, s.querier(), query, collection, limit)
}

// FTS5 operator pattern for escaping Boolean operators
var ftsOperatorPattern = regexp.MustCompile(`\b(AND|OR|NOT|NEAR)\b`)

// sanitizeFTSQuery sanitizes a search query for FTS5 to prevent injection.
// User queries are plain text; FTS5 syntax characters are stripped and
// Boolean operators are lowercased so they match as terms.
func sanitizeFTSQuery(query string) string {
	if strings.TrimSpace(query) == "" {
		return ""
	}

	// Drop characters that have meaning in FTS5 query syntax.
	replacer := strings.NewReplacer(
		`"`, ` `,
		`*`, ` `,
		`(`, ` `,
		`)`, ` `,
		`^`, ` `,
		`:`, ` `,
		`-`, ` `,
		`+`, ` `,
	)
	escaped := replacer.Replace(query)

	// Lowercase Boolean operators to prevent them acting as operators.
	escaped = ftsOperatorPattern.ReplaceAllStringFunc(escaped, strings.ToLower)

	// Quote each remaining term so tokens like "don't" stay literal.
	fields := strings.Fields(escaped)
	if len(fields) == 0 {
		return ""
	}
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, ``) + `"`
	}
	return strings.Join(fields, " ")
}
