package ranking

import (
	"sort"

	"github.com/jonathan/resume-ranker/internal/types"
)

// SortCandidates orders candidates in place by score descending, ties broken by ID ascending.
func SortCandidates(candidates []types.ScoredCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})
}
