// Package types provides shared type definitions for the QMD retrieval
// engine.
//
// This package defines domain types that cross component boundaries:
// expanded queries, search results, and index status reports. Heavier
// behavior (storage access, ranking, capability dispatch) lives in the
// internal packages; types here are plain data.
package types
