package types

// SearchSource identifies which channel produced a result.
type SearchSource string

const (
	SourceFTS    SearchSource = "fts"
	SourceVector SearchSource = "vec"
	SourceHybrid SearchSource = "hybrid"
)

// DocumentRef is the stable external identity of a document: the short
// docid form ("#abc12345") and the virtual path form
// ("qmd://collection/path"). Both resolve through the catalog.
type DocumentRef struct {
	Docid      string
	Collection string
	Path       string
}

// File returns the virtual path form of the reference.
func (r DocumentRef) File() string {
	return "qmd://" + r.Collection + "/" + r.Path
}

// SearchResult is a single ranked hit from any search channel.
type SearchResult struct {
	Ref        DocumentRef
	Title      string
	Context    string // nearest enclosing context annotation, if any
	Score      float64
	Source     SearchSource
	BodyLength int
	Body       string // populated only when the caller requests full bodies
	ChunkPos   int    // byte offset of the best-matching chunk (vector hits)
}
