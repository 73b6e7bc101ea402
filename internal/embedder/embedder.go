package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Embedding represents a vector embedding with metadata
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // hash of the framed input, used as cache key
}

// Embedder produces embeddings. Document chunks and queries are framed
// differently before hitting the model.
type Embedder interface {
	// EmbedDocument embeds one document chunk, framed with its title
	EmbedDocument(ctx context.Context, text, title string) (*Embedding, error)

	// EmbedDocuments embeds a batch of chunks. titles may be nil or
	// shorter than texts; missing entries embed untitled.
	EmbedDocuments(ctx context.Context, texts, titles []string) ([]*Embedding, error)

	// EmbedQuery embeds a search query
	EmbedQuery(ctx context.Context, text string) (*Embedding, error)

	// Dimension returns the embedding dimension for this provider
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// FormatDocument frames a chunk for passage embedding. Matching titles
// across chunks of the same document keeps their framings consistent.
func FormatDocument(text, title string) string {
	if strings.TrimSpace(title) == "" {
		return text
	}
	return "title: " + title + "\n" + text
}

// FormatQuery frames text for query embedding.
func FormatQuery(text string) string {
	return "query: " + text
}

// Cache provides in-memory LRU caching of embeddings by content hash
type Cache struct {
	cache *lru.Cache[string, *Embedding]
}

// DefaultCacheSize bounds the in-memory embedding cache.
const DefaultCacheSize = 10000

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		// Only reachable with a non-positive size, which is handled above
		cache, _ = lru.New[string, *Embedding](DefaultCacheSize)
	}
	return &Cache{
		cache: cache,
	}
}

// Get retrieves a deep copy of an embedding from cache.
// Returns a copy to prevent caller mutations from affecting cached values.
func (c *Cache) Get(hash string) (*Embedding, bool) {
	emb, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}

	vectorCopy := make([]float32, len(emb.Vector))
	copy(vectorCopy, emb.Vector)

	return &Embedding{
		Vector:    vectorCopy,
		Dimension: emb.Dimension,
		Provider:  emb.Provider,
		Model:     emb.Model,
		Hash:      emb.Hash,
	}, true
}

// Set stores an embedding in cache with automatic LRU eviction
func (c *Cache) Set(hash string, emb *Embedding) {
	c.cache.Add(hash, emb)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func validateTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}

func titleAt(titles []string, i int) string {
	if i < len(titles) {
		return titles[i]
	}
	return ""
}
