package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// searchTool returns the tool definition for search
func searchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search",
		Description: "Search indexed document collections with hybrid retrieval",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"collection": map[string]interface{}{
					"type":        "string",
					"description": "Restrict the search to one collection",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (expansion + fusion), vector (semantic only), or fts (BM25 only)",
					"enum":        []string{"hybrid", "vector", "fts"},
					"default":     "hybrid",
				},
				"min_score": map[string]interface{}{
					"type":        "number",
					"description": "Drop results scoring below this threshold",
				},
				"full": map[string]interface{}{
					"type":        "boolean",
					"description": "Include full document bodies in results",
					"default":     false,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getTool returns the tool definition for get
func getTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get",
		Description: "Fetch one document by docid, virtual path, or collection and path",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Docid (#abc12345) or virtual path (qmd://collection/path)",
				},
				"collection": map[string]interface{}{
					"type":        "string",
					"description": "Collection name, used with path when id is absent",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Document path within the collection",
				},
				"from_line": map[string]interface{}{
					"type":        "integer",
					"description": "First line to return (1-based)",
					"minimum":     1,
				},
				"max_lines": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of lines to return",
					"minimum":     1,
				},
				"line_numbers": map[string]interface{}{
					"type":        "boolean",
					"description": "Prefix each line with its line number",
					"default":     false,
				},
			},
		},
	}
}

// statusTool returns the tool definition for status
func statusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "status",
		Description: "Report index statistics, collections, and the embedding backlog",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
