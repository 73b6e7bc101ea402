package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pyroth/qmd/internal/collections"
	"github.com/pyroth/qmd/internal/searcher"
	"github.com/pyroth/qmd/internal/storage"
	"github.com/pyroth/qmd/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeDocumentNotFound = -32001 // No document matches the identifier
	ErrorCodeEmptyQuery       = -32004 // Query parameter is empty
)

// handleSearch handles the search tool invocation
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	mode := searcher.Mode(getStringDefault(args, "mode", string(searcher.ModeHybrid)))
	switch mode {
	case searcher.ModeHybrid, searcher.ModeVector, searcher.ModeFTS:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"value":   string(mode),
			"allowed": []string{"hybrid", "vector", "fts"},
		})
	}

	store, err := s.openStore()
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "open index", map[string]interface{}{"error": err.Error()})
	}
	defer func() { _ = store.Close() }()

	srch := searcher.New(store, s.embedder).WithGenerator(s.gen).WithReranker(s.reranker)
	resp, err := srch.Search(ctx, searcher.Request{
		Query:      query,
		Limit:      limit,
		Mode:       mode,
		Collection: getStringDefault(args, "collection", ""),
		MinScore:   getFloatDefault(args, "min_score", 0),
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{"error": err.Error()})
	}

	full := getBoolDefault(args, "full", false)
	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		item := map[string]interface{}{
			"file":   r.Ref.File(),
			"docid":  r.Ref.Docid,
			"title":  r.Title,
			"score":  r.Score,
			"source": string(r.Source),
		}
		if r.Context != "" {
			item["context"] = r.Context
		}
		if full {
			if body, err := bodyForResult(ctx, store, r.Ref.Collection, r.Ref.Path); err == nil {
				item["body"] = body
			}
		}
		results = append(results, item)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":       query,
		"mode":        string(resp.Mode),
		"results":     results,
		"total":       len(results),
		"reranked":    resp.Reranked,
		"duration_ms": resp.Duration.Milliseconds(),
	})), nil
}

// handleGet handles the get tool invocation
func (s *Server) handleGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	store, err := s.openStore()
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "open index", map[string]interface{}{"error": err.Error()})
	}
	defer func() { _ = store.Close() }()

	doc, err := resolveDocument(ctx, store, args)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newMCPError(ErrorCodeDocumentNotFound, "document not found", nil)
		}
		return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	}

	body, err := store.GetContentBody(ctx, doc.Hash)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "load document body", map[string]interface{}{"error": err.Error()})
	}

	fromLine := getIntDefault(args, "from_line", 1)
	maxLines := getIntDefault(args, "max_lines", 0)
	lineNumbers := getBoolDefault(args, "line_numbers", false)
	windowed, totalLines := windowLines(body, fromLine, maxLines, lineNumbers)

	response := map[string]interface{}{
		"file":        doc.Ref().File(),
		"docid":       doc.Docid,
		"title":       doc.Title,
		"body":        windowed,
		"total_lines": totalLines,
	}
	if note, err := store.LookupContext(ctx, doc.Collection, doc.Path); err == nil && note != "" {
		response["context"] = note
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// resolveDocument finds a document from an id (docid or virtual path)
// or an explicit collection + path pair.
func resolveDocument(ctx context.Context, store *storage.Store, args map[string]interface{}) (*storage.Document, error) {
	if id := getStringDefault(args, "id", ""); id != "" {
		if storage.IsDocid(id) {
			return store.FindDocumentByDocid(ctx, id)
		}
		if collection, path, ok := storage.ParseVirtualPath(id); ok {
			return store.FindActiveDocument(ctx, collection, storage.Handelize(path))
		}
		return nil, fmt.Errorf("id must be a docid (#abc12345) or virtual path (qmd://collection/path)")
	}

	collection := getStringDefault(args, "collection", "")
	path := getStringDefault(args, "path", "")
	if collection == "" || path == "" {
		return nil, fmt.Errorf("either id or both collection and path are required")
	}
	return store.FindActiveDocument(ctx, collection, storage.Handelize(path))
}

// windowLines cuts a 1-based line window out of a body, optionally
// numbering the lines. maxLines 0 means to the end.
func windowLines(body string, fromLine, maxLines int, numbered bool) (string, int) {
	lines := strings.Split(body, "\n")
	total := len(lines)

	if fromLine < 1 {
		fromLine = 1
	}
	if fromLine > total {
		return "", total
	}
	end := total
	if maxLines > 0 && fromLine-1+maxLines < end {
		end = fromLine - 1 + maxLines
	}

	window := lines[fromLine-1 : end]
	if !numbered {
		return strings.Join(window, "\n"), total
	}

	var b strings.Builder
	for i, line := range window {
		fmt.Fprintf(&b, "%d: %s", fromLine+i, line)
		if i < len(window)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String(), total
}

// handleStatus handles the status tool invocation
func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store, err := s.openStore()
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "open index", map[string]interface{}{"error": err.Error()})
	}
	defer func() { _ = store.Close() }()

	counts, err := store.GetStatusCounts(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "collect status", map[string]interface{}{"error": err.Error()})
	}
	status := statusReport(counts, loadCollectionsConfig())

	collEntries := make([]map[string]interface{}, 0, len(status.Collections))
	for _, c := range status.Collections {
		entry := map[string]interface{}{
			"name":          c.Name,
			"documents":     c.ActiveCount,
			"last_modified": c.LastModified,
		}
		if c.Root != "" {
			entry["root"] = c.Root
		}
		if c.GlobPattern != "" {
			entry["pattern"] = c.GlobPattern
		}
		collEntries = append(collEntries, entry)
	}

	response := map[string]interface{}{
		"documents":       status.TotalDocuments,
		"needs_embedding": status.NeedsEmbedding,
		"db_size_mb":      fmt.Sprintf("%.2f", counts.DBSizeMB),
		"collections":     collEntries,
		"vector_index": map[string]interface{}{
			"present":   status.HasVectorIndex,
			"dimension": status.VectorDim,
		},
		"embedding": map[string]interface{}{
			"provider": s.embedder.Provider(),
			"model":    s.embedder.Model(),
		},
		"capabilities": map[string]interface{}{
			"generation": s.gen.Available(),
			"rerank":     s.reranker.Available(),
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// statusReport joins the catalog counts with the collections config,
// which is what knows each collection's root and glob pattern.
func statusReport(counts *storage.StatusCounts, cfg *collections.Config) types.Status {
	status := types.Status{
		TotalDocuments: counts.TotalDocuments,
		NeedsEmbedding: counts.NeedsEmbedding,
		HasVectorIndex: counts.HasVectorIndex,
		VectorDim:      counts.VectorDim,
	}
	for _, c := range counts.Collections {
		cs := types.CollectionStatus{
			Name:        c.Name,
			ActiveCount: c.ActiveCount,
		}
		if !c.LastModified.IsZero() {
			cs.LastModified = c.LastModified.Format(time.RFC3339)
		}
		if cfg != nil {
			if coll, err := cfg.Get(c.Name); err == nil {
				cs.Root = coll.Path
				cs.GlobPattern = coll.Pattern
			}
		}
		status.Collections = append(status.Collections, cs)
	}
	return status
}

// loadCollectionsConfig reads the config best-effort; status still
// reports catalog counts when it is absent or unreadable.
func loadCollectionsConfig() *collections.Config {
	path, err := collections.DefaultPath()
	if err != nil {
		return nil
	}
	cfg, err := collections.Load(path)
	if err != nil {
		return nil
	}
	return cfg
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func bodyForResult(ctx context.Context, store *storage.Store, collection, path string) (string, error) {
	doc, err := store.FindActiveDocument(ctx, collection, path)
	if err != nil {
		return "", err
	}
	return store.GetContentBody(ctx, doc.Hash)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a float parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
