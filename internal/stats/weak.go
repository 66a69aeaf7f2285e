package stats

import (
	"github.com/verte-zerg/tuispeak/internal/model"
)

// SelectWeakWords selects the lowest-accuracy words from aggregates. Words
// that were always said correctly are never weak.
func SelectWeakWords(aggs []model.WordAggregate, top int) map[string]struct{} {
	weakSet := map[string]struct{}{}
	if len(aggs) == 0 {
		return weakSet
	}
	candidates := make([]model.WordAggregate, 0, len(aggs))
	for _, agg := range aggs {
		if WordAccuracy(agg) < 1.0 {
			candidates = append(candidates, agg)
		}
	}
	sortWeakest(candidates)
	if top <= 0 || top > len(candidates) {
		top = len(candidates)
	}
	for i := 0; i < top; i++ {
		weakSet[candidates[i].Word] = struct{}{}
	}
	return weakSet
}
