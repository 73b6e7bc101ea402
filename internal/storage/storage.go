package storage

import (
	"context"
	"time"

	"github.com/pyroth/qmd/pkg/types"
)

// Storage defines the interface for persisting and querying the document index
type Storage interface {
	// Content operations
	InsertContent(ctx context.Context, body string) (string, error)
	GetContentBody(ctx context.Context, hash string) (string, error)

	// Document operations
	InsertDocument(ctx context.Context, doc *Document) error
	UpdateDocument(ctx context.Context, id int64, hash, title string) error
	UpdateDocumentTitle(ctx context.Context, id int64, title string) error
	FindActiveDocument(ctx context.Context, collection, path string) (*Document, error)
	FindDocumentByDocid(ctx context.Context, docid string) (*Document, error)
	FindAnyDocumentByDocid(ctx context.Context, docid string) (*Document, error)
	DeactivateDocument(ctx context.Context, id int64) error
	GetActiveDocumentPaths(ctx context.Context, collection string) ([]string, error)
	ListDocuments(ctx context.Context, collection, prefix string) ([]*Document, error)
	RemoveCollectionDocuments(ctx context.Context, collection string) (int, error)
	RenameCollectionDocuments(ctx context.Context, oldName, newName string) (int, error)

	// Search operations
	SearchFTS(ctx context.Context, query, collection string, limit int) ([]types.SearchResult, error)
	SearchVec(ctx context.Context, vector []float32, collection string, limit int) ([]types.SearchResult, error)

	// Vector index operations
	EnsureVectorTable(ctx context.Context, dim int) error
	InsertEmbedding(ctx context.Context, emb *Embedding) error
	GetHashesNeedingEmbedding(ctx context.Context) ([]PendingEmbedding, error)
	VectorIndexInfo(ctx context.Context) (*VectorIndex, error)

	// Context annotations
	SetContext(ctx context.Context, collection, path, note string) error
	GetContext(ctx context.Context, collection, path string) (string, error)
	ListContexts(ctx context.Context, collection string) ([]ContextEntry, error)
	DeleteContext(ctx context.Context, collection, path string) error
	LookupContext(ctx context.Context, collection, path string) (string, error)

	// Response cache
	CacheGet(ctx context.Context, key string) (string, error)
	CachePut(ctx context.Context, key, kind, model, response string) error
	ClearCache(ctx context.Context) (int, error)

	// Maintenance operations
	DeleteInactiveDocuments(ctx context.Context) (int, error)
	CleanupOrphanedContent(ctx context.Context) (int, error)
	CleanupOrphanedVectors(ctx context.Context) (int, error)
	ClearEmbeddings(ctx context.Context) (int, error)
	Vacuum(ctx context.Context) error

	// Status operations
	GetStatusCounts(ctx context.Context) (*StatusCounts, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Document represents a catalog row. A document is identified by
// (collection, path); its body lives in the content table keyed by hash.
// Deactivated rows are kept for history until purged by maintenance.
type Document struct {
	ID         int64
	Docid      string // "#" + 8 hex chars, stable across content changes
	Collection string
	Path       string
	Title      string
	Hash       string // SHA-256 of the body, hex
	Active     bool
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Ref returns the external reference for the document.
func (d *Document) Ref() types.DocumentRef {
	return types.DocumentRef{Docid: d.Docid, Collection: d.Collection, Path: d.Path}
}

// Embedding is one chunk vector for a content hash. Seq orders chunks
// within the document; Pos is the chunk's byte offset into the body.
type Embedding struct {
	Hash   string
	Seq    int
	Pos    int
	Vector []float32
	Model  string
}

// PendingEmbedding is an active document body that has no vectors yet.
type PendingEmbedding struct {
	Hash  string
	Title string
	Body  string
}

// VectorIndex describes the on-disk vector table.
type VectorIndex struct {
	Dim   int
	Model string
	Count int
}

// ContextEntry is one context annotation row.
type ContextEntry struct {
	Collection string
	Path       string // "" for collection-level context
	Context    string
	CreatedAt  time.Time
}

// CollectionCount holds per-collection catalog statistics.
type CollectionCount struct {
	Name         string
	ActiveCount  int
	LastModified time.Time
}

// StatusCounts contains index statistics for status reporting.
type StatusCounts struct {
	TotalDocuments int
	NeedsEmbedding int
	HasVectorIndex bool
	VectorDim      int
	DBSizeMB       float64
	Collections    []CollectionCount
}
