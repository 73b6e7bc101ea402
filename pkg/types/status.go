package types

// CollectionStatus reports per-collection index state.
type CollectionStatus struct {
	Name         string
	Root         string
	GlobPattern  string
	ActiveCount  int
	LastModified string // RFC 3339, empty when the collection has no documents
}

// Status is the engine health/summary report exposed to external callers.
type Status struct {
	TotalDocuments int
	NeedsEmbedding int
	HasVectorIndex bool
	VectorDim      int
	Collections    []CollectionStatus
}
