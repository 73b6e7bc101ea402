// Package mcp exposes the document index over the Model Context
// Protocol.
//
// Three tools are served on stdio:
//
//   - search: hybrid, vector, or full-text retrieval with collection
//     and score filters
//   - get: fetch one document by docid ("#abc12345"), virtual path
//     ("qmd://collection/path"), or collection + path, with optional
//     line windows
//   - status: index statistics and embedding backlog
//
// Each tool call opens its own storage handle and closes it when the
// call finishes; the server itself holds no database connection.
// Generation and rerank capabilities are optional and degrade silently
// when unconfigured.
package mcp
