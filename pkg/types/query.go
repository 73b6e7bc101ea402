package types

// QueryType identifies which search channel an expanded query targets.
type QueryType string

const (
	// QueryLex routes through the BM25 full-text channel.
	QueryLex QueryType = "lex"
	// QueryVec routes through the vector similarity channel.
	QueryVec QueryType = "vec"
	// QueryHyde is a hypothetical answer whose embedding (not its literal
	// text) is compared against document chunks. It is dispatched through
	// the vector channel.
	QueryHyde QueryType = "hyde"
)

// Queryable is a single typed sub-query produced by query expansion.
type Queryable struct {
	Text string
	Type QueryType
}

// LexQuery tags text for the lexical channel.
func LexQuery(text string) Queryable {
	return Queryable{Text: text, Type: QueryLex}
}

// VecQuery tags text for the vector channel.
func VecQuery(text string) Queryable {
	return Queryable{Text: text, Type: QueryVec}
}

// HydeQuery tags a hypothetical answer for the vector channel.
func HydeQuery(text string) Queryable {
	return Queryable{Text: text, Type: QueryHyde}
}
