// internal/fusion/fusion.go
// Package fusion merges independently-ranked retrieval lists into one ranked
// list using weighted Reciprocal Rank Fusion. Rank-based fusion sidesteps the
// scale mismatch between vector similarity scores and lexical relevance
// scores: only relative ordering matters.
package fusion

import (
	"sort"

	"github.com/mwiater/ragbench/internal/gateway"
)

// DefaultK is the standard RRF smoothing constant, shared by all strategies
// in a run.
const DefaultK = 60

// RankedList is one retrieval method's output: document IDs in rank order
// plus the weight its contributions carry in the fused score.
type RankedList struct {
	Docs   []string
	Weight float64
}

type fused struct {
	doc string
	// accumulated weighted reciprocal-rank score
	score float64
	// rank in the earliest input list containing the document
	firstRank int
}

// Fuse merges the lists into a single ranking. A document at zero-based rank
// r in a list contributes weight/(r+k) to its accumulated score; scores sum
// across lists. The result is sorted by descending score, ties broken by the
// document's rank in the first list that contains it, then by document ID,
// and truncated to topK.
//
// Callers wanting to preserve recall should pass oversized candidate lists
// (commonly 2×topK); Fuse itself only truncates the fused output.
func Fuse(lists []RankedList, k, topK int) ([]string, error) {
	if topK <= 0 {
		return nil, gateway.Errorf(gateway.KindInvalidConfig, "fusion topK must be positive, got %d", topK)
	}
	if k <= 0 {
		return nil, gateway.Errorf(gateway.KindInvalidConfig, "fusion smoothing constant must be positive, got %d", k)
	}

	scores := make(map[string]*fused)
	for _, list := range lists {
		for rank, doc := range list.Docs {
			entry, ok := scores[doc]
			if !ok {
				entry = &fused{doc: doc, firstRank: rank}
				scores[doc] = entry
			}
			entry.score += list.Weight / float64(rank+k)
		}
	}

	merged := make([]*fused, 0, len(scores))
	for _, entry := range scores {
		merged = append(merged, entry)
	}
	sort.Slice(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.firstRank != b.firstRank {
			return a.firstRank < b.firstRank
		}
		return a.doc < b.doc
	})

	if len(merged) > topK {
		merged = merged[:topK]
	}
	out := make([]string, len(merged))
	for i, entry := range merged {
		out[i] = entry.doc
	}
	return out, nil
}
