package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/pyroth/qmd/internal/embedder"
	"github.com/pyroth/qmd/internal/genai"
	"github.com/pyroth/qmd/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "qmd"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies. Storage is
// opened per tool call; only the capabilities live for the server's
// lifetime.
type Server struct {
	mcp      *server.MCPServer
	dbPath   string
	embedder embedder.Embedder
	gen      genai.Generator
	reranker genai.Reranker
}

// DefaultDBPath returns the standard index database location.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".qmd", "index.db"), nil
}

// NewServer creates a new MCP server instance. The database is opened
// once to run migrations, then closed; tool calls open fresh handles.
func NewServer(dbPath string) (*Server, error) {
	if dbPath == "" {
		var err error
		dbPath, err = DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	store, err := storage.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}
	if err := store.Close(); err != nil {
		return nil, err
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("initialize embedder: %w", err)
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		dbPath:   dbPath,
		embedder: emb,
		gen:      genai.NewGeneratorFromEnv(),
		reranker: genai.NewRerankerFromEnv(),
	}
	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.embedder.Close() }()
	return server.ServeStdio(s.mcp)
}

// openStore opens a storage handle for one tool call.
func (s *Server) openStore() (*storage.Store, error) {
	return storage.NewStore(s.dbPath)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchTool(), s.handleSearch)
	s.mcp.AddTool(getTool(), s.handleGet)
	s.mcp.AddTool(statusTool(), s.handleStatus)
}
