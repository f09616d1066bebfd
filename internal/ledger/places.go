package ledger

import (
	"cmp"
	"slices"
)

// AssignPlaces ranks the results by score (higher is better), breaking ties by the starting
// position, and writes 1-based places into them. The slice order is left unchanged.
func AssignPlaces(results []GameResult) {
	order := make([]*GameResult, len(results))
	for i := range results {
		order[i] = &results[i]
	}
	slices.SortFunc(order, func(a, b *GameResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.StartingPosition, b.StartingPosition)
	})
	for i, r := range order {
		r.Place = int16(i + 1)
	}
}
