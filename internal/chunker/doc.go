// Package chunker divides document bodies into token-bounded, overlapping
// chunks for embedding.
//
// Chunks are contiguous substrings of the original body, cut at word
// boundaries. Consecutive chunks share an overlap so that content near a
// cut point is embedded in both neighbors.
//
// # Basic Usage
//
//	c, err := chunker.New(chunker.DefaultTargetTokens, chunker.DefaultOverlapTokens, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, chunk := range c.Split(body) {
//	    fmt.Printf("chunk %d at byte %d: %d tokens\n", chunk.Seq, chunk.Pos, chunk.Tokens)
//	}
//
// # Token Counting
//
// A TokenCounter from the embedding provider gives accurate counts. When
// none is available the chars/4 estimate is used; a document that fits
// the target under the estimate becomes a single chunk.
package chunker
