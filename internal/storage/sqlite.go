package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pyroth/qmd/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrDimensionMismatch is returned when a vector's dimension doesn't
	// match the dimension the vector table was created with
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Store implements the Storage interface using SQLite
type Store struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewStore opens (creating if needed) the index database at dbPath and
// applies pending migrations. Callers own the returned handle and must
// Close it when the request finishes.
func NewStore(dbPath string) (*Store, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *Store) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &storeTx{tx: tx, store: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// storeTx wraps a SQL transaction
type storeTx struct {
	tx    *sql.Tx
	store *Store
}

func (t *storeTx) Commit() error {
	return t.tx.Commit()
}

func (t *storeTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *storeTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *Store) querier() querier {
	return s.db
}

// Transaction implementations - delegate to the internal querier helpers

func (t *storeTx) InsertContent(ctx context.Context, body string) (string, error) {
	return t.store.insertContentWithQuerier(ctx, t.querier(), body)
}

func (t *storeTx) GetContentBody(ctx context.Context, hash string) (string, error) {
	return t.store.getContentBodyWithQuerier(ctx, t.querier(), hash)
}

func (t *storeTx) InsertDocument(ctx context.Context, doc *Document) error {
	return t.store.insertDocumentWithQuerier(ctx, t.querier(), doc)
}

func (t *storeTx) UpdateDocument(ctx context.Context, id int64, hash, title string) error {
	return t.store.updateDocumentWithQuerier(ctx, t.querier(), id, hash, title)
}

func (t *storeTx) UpdateDocumentTitle(ctx context.Context, id int64, title string) error {
	return t.store.updateDocumentTitleWithQuerier(ctx, t.querier(), id, title)
}

func (t *storeTx) FindActiveDocument(ctx context.Context, collection, path string) (*Document, error) {
	return t.store.findActiveDocumentWithQuerier(ctx, t.querier(), collection, path)
}

func (t *storeTx) FindAnyDocumentByDocid(ctx context.Context, docid string) (*Document, error) {
	return t.store.findAnyDocumentByDocidWithQuerier(ctx, t.querier(), docid)
}

func (t *storeTx) FindDocumentByDocid(ctx context.Context, docid string) (*Document, error) {
	return t.store.findDocumentByDocidWithQuerier(ctx, t.querier(), docid)
}

func (t *storeTx) DeactivateDocument(ctx context.Context, id int64) error {
	return t.store.deactivateDocumentWithQuerier(ctx, t.querier(), id)
}

func (t *storeTx) GetActiveDocumentPaths(ctx context.Context, collection string) ([]string, error) {
	return t.store.getActiveDocumentPathsWithQuerier(ctx, t.querier(), collection)
}

func (t *storeTx) ListDocuments(ctx context.Context, collection, prefix string) ([]*Document, error) {
	return t.store.listDocumentsWithQuerier(ctx, t.querier(), collection, prefix)
}

func (t *storeTx) RemoveCollectionDocuments(ctx context.Context, collection string) (int, error) {
	return t.store.removeCollectionDocumentsWithQuerier(ctx, t.querier(), collection)
}

func (t *storeTx) RenameCollectionDocuments(ctx context.Context, oldName, newName string) (int, error) {
	return t.store.renameCollectionDocumentsWithQuerier(ctx, t.querier(), oldName, newName)
}

func (t *storeTx) SearchFTS(ctx context.Context, query, collection string, limit int) ([]types.SearchResult, error) {
	return t.store.searchFTSWithQuerier(ctx, t.querier(), query, collection, limit)
}

func (t *storeTx) SearchVec(ctx context.Context, vector []float32, collection string, limit int) ([]types.SearchResult, error) {
	return t.store.searchVecWithQuerier(ctx, t.querier(), vector, collection, limit)
}

func (t *storeTx) EnsureVectorTable(ctx context.Context, dim int) error {
	return t.store.ensureVectorTableWithQuerier(ctx, t.querier(), dim)
}

func (t *storeTx) InsertEmbedding(ctx context.Context, emb *Embedding) error {
	return t.store.insertEmbeddingWithQuerier(ctx, t.querier(), emb)
}

func (t *storeTx) GetHashesNeedingEmbedding(ctx context.Context) ([]PendingEmbedding, error) {
	return t.store.getHashesNeedingEmbeddingWithQuerier(ctx, t.querier())
}

func (t *storeTx) VectorIndexInfo(ctx context.Context) (*VectorIndex, error) {
	return t.store.vectorIndexInfoWithQuerier(ctx, t.querier())
}

func (t *storeTx) SetContext(ctx context.Context, collection, path, note string) error {
	return t.store.setContextWithQuerier(ctx, t.querier(), collection, path, note)
}

func (t *storeTx) GetContext(ctx context.Context, collection, path string) (string, error) {
	return t.store.getContextWithQuerier(ctx, t.querier(), collection, path)
}

func (t *storeTx) ListContexts(ctx context.Context, collection string) ([]ContextEntry, error) {
	return t.store.listContextsWithQuerier(ctx, t.querier(), collection)
}

func (t *storeTx) DeleteContext(ctx context.Context, collection, path string) error {
	return t.store.deleteContextWithQuerier(ctx, t.querier(), collection, path)
}

func (t *storeTx) LookupContext(ctx context.Context, collection, path string) (string, error) {
	return t.store.lookupContextWithQuerier(ctx, t.querier(), collection, path)
}

func (t *storeTx) CacheGet(ctx context.Context, key string) (string, error) {
	return t.store.cacheGetWithQuerier(ctx, t.querier(), key)
}

func (t *storeTx) CachePut(ctx context.Context, key, kind, model, response string) error {
	return t.store.cachePutWithQuerier(ctx, t.querier(), key, kind, model, response)
}

func (t *storeTx) ClearCache(ctx context.Context) (int, error) {
	return t.store.clearCacheWithQuerier(ctx, t.querier())
}

func (t *storeTx) DeleteInactiveDocuments(ctx context.Context) (int, error) {
	return t.store.deleteInactiveDocumentsWithQuerier(ctx, t.querier())
}

func (t *storeTx) CleanupOrphanedContent(ctx context.Context) (int, error) {
	return t.store.cleanupOrphanedContentWithQuerier(ctx, t.querier())
}

func (t *storeTx) CleanupOrphanedVectors(ctx context.Context) (int, error) {
	return t.store.cleanupOrphanedVectorsWithQuerier(ctx, t.querier())
}

func (t *storeTx) ClearEmbeddings(ctx context.Context) (int, error) {
	return t.store.clearEmbeddingsWithQuerier(ctx, t.querier())
}

func (t *storeTx) Vacuum(ctx context.Context) error {
	// VACUUM cannot run inside a transaction
	return errors.New("vacuum not supported inside a transaction")
}

func (t *storeTx) GetStatusCounts(ctx context.Context) (*StatusCounts, error) {
	return t.store.getStatusCountsWithQuerier(ctx, t.querier())
}

func (t *storeTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *storeTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
