package searcher

import (
	"context"
	"encoding/json"

	"github.com/pyroth/qmd/internal/embedder"
	"github.com/pyroth/qmd/internal/genai"
	"github.com/pyroth/qmd/internal/storage"
	"github.com/pyroth/qmd/pkg/types"
)

// ExpandSimple expands a query without a model: the original text on
// both the lexical and vector channels.
func ExpandSimple(query string) []types.Queryable {
	return []types.Queryable{
		types.LexQuery(query),
		types.VecQuery(query),
	}
}

const expansionCachePrefix = "expand:"

// Expand rewrites the query with the generation capability when one is
// available, falling back to ExpandSimple on any failure. Successful
// expansions are cached in the store's response cache keyed by the
// query hash, so repeated searches skip the model call.
func Expand(ctx context.Context, store storage.Storage, gen genai.Generator, query string) []types.Queryable {
	if gen == nil || !gen.Available() {
		return ExpandSimple(query)
	}

	cacheKey := expansionCachePrefix + embedder.ComputeHash(query)
	if store != nil {
		if cached, err := store.CacheGet(ctx, cacheKey); err == nil {
			if queries := decodeExpansion(cached); len(queries) > 0 {
				return queries
			}
		}
	}

	queries, err := gen.ExpandQuery(ctx, query, true)
	if err != nil || len(queries) == 0 {
		return ExpandSimple(query)
	}

	if store != nil {
		if encoded, err := json.Marshal(queries); err == nil {
			_ = store.CachePut(ctx, cacheKey, "expansion", gen.Model(), string(encoded))
		}
	}
	return queries
}

func decodeExpansion(cached string) []types.Queryable {
	var queries []types.Queryable
	if err := json.Unmarshal([]byte(cached), &queries); err != nil {
		return nil
	}
	for _, q := range queries {
		switch q.Type {
		case types.QueryLex, types.QueryVec, types.QueryHyde:
		default:
			return nil
		}
		if q.Text == "" {
			return nil
		}
	}
	return queries
}
