package genai

import (
	"context"
	"errors"
	"strings"

	"github.com/pyroth/qmd/pkg/types"
)

// Common errors
var (
	ErrNotAvailable  = errors.New("capability not available")
	ErrEmptyPrompt   = errors.New("prompt cannot be empty")
	ErrProviderError = errors.New("provider request failed")
)

// Generator produces text from prompts and expands search queries.
type Generator interface {
	// Generate completes a prompt, returning at most maxTokens tokens
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)

	// ExpandQuery rewrites a search query into typed sub-queries. When
	// includeLexical is true the result always contains at least one
	// lexical query (the original as a fallback).
	ExpandQuery(ctx context.Context, query string, includeLexical bool) ([]types.Queryable, error)

	// Available reports whether the generator can serve requests
	Available() bool

	// Model returns the model name
	Model() string

	// Close releases any resources held by the generator
	Close() error
}

// RerankDocument is one candidate handed to the reranker.
type RerankDocument struct {
	File  string // opaque identity, echoed back in results
	Text  string
	Title string
}

// RerankResult is one reranked candidate with its relevance score.
type RerankResult struct {
	File  string
	Index int // position in the input slice
	Score float64
}

// Reranker re-scores candidate documents against a query.
type Reranker interface {
	// Rerank returns the documents ordered by descending relevance
	Rerank(ctx context.Context, query string, docs []RerankDocument) ([]RerankResult, error)

	// Available reports whether the reranker can serve requests
	Available() bool

	// Close releases any resources held by the reranker
	Close() error
}

// parseExpansion turns a generation response into typed queries. The
// model is asked for one "type: text" line per query; unparseable lines
// are skipped rather than failing the expansion.
func parseExpansion(response string) []types.Queryable {
	var queries []types.Queryable
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		if line == "" {
			continue
		}

		prefix, text, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		switch strings.ToLower(strings.TrimSpace(prefix)) {
		case "lex":
			queries = append(queries, types.LexQuery(text))
		case "vec":
			queries = append(queries, types.VecQuery(text))
		case "hyde":
			queries = append(queries, types.HydeQuery(text))
		}
	}
	return queries
}

const expansionPromptTemplate = `Rewrite the search query below into retrieval sub-queries.
Output one query per line, nothing else, each prefixed with its type:
lex: <keyword variant for full-text search>
vec: <semantic rephrasing for similarity search>
hyde: <one-sentence hypothetical answer to the query>

Produce 1-2 lex lines, 1-2 vec lines, and exactly one hyde line.

Query: `

func expansionPrompt(query string) string {
	return expansionPromptTemplate + query
}
