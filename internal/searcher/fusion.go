package searcher

import (
	"sort"

	"github.com/pyroth/qmd/pkg/types"
)

// DefaultRRFConstant is the k in the RRF formula 1/(k+rank).
const DefaultRRFConstant = 60

// fusedHit accumulates a document's contributions across ranked lists.
type fusedHit struct {
	result  types.SearchResult
	score   float64
	minRank int
	lists   int
}

// fuseRRF combines ranked result lists with Reciprocal Rank Fusion.
// Documents are keyed by virtual path, so the same document surfacing
// on several channels sums its contributions. Ties on fused score go to
// the document with the better single-list rank. Metadata (title,
// context, chunk position) comes from the first list that produced the
// document.
func fuseRRF(lists [][]types.SearchResult, k int) []types.SearchResult {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	hits := make(map[string]*fusedHit)
	var order []string

	for _, list := range lists {
		for rank, r := range list {
			key := r.Ref.File()
			h, ok := hits[key]
			if !ok {
				h = &fusedHit{result: r, minRank: rank + 1}
				hits[key] = h
				order = append(order, key)
			}
			h.score += 1.0 / float64(k+rank+1)
			h.lists++
			if rank+1 < h.minRank {
				h.minRank = rank + 1
			}
		}
	}

	fused := make([]types.SearchResult, 0, len(order))
	for _, key := range order {
		h := hits[key]
		r := h.result
		r.Score = h.score
		r.Source = types.SourceHybrid
		fused = append(fused, r)
	}

	sort.SliceStable(fused, func(i, j int) bool {
		hi, hj := hits[fused[i].Ref.File()], hits[fused[j].Ref.File()]
		if hi.score != hj.score {
			return hi.score > hj.score
		}
		return hi.minRank < hj.minRank
	})
	return fused
}
