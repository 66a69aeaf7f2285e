package stats

import (
	"sort"

	"github.com/verte-zerg/tuispeak/internal/model"
)

// TopWordsByFrequency returns the top N words by how often they were expected.
func TopWordsByFrequency(aggs []model.WordAggregate, n int) []string {
	if n <= 0 || len(aggs) == 0 {
		return nil
	}
	items := make([]model.WordAggregate, len(aggs))
	copy(items, aggs)
	sort.Slice(items, func(i, j int) bool {
		ti, tj := items[i].Total(), items[j].Total()
		if ti == tj {
			return items[i].Word < items[j].Word
		}
		return ti > tj
	})
	if n > len(items) {
		n = len(items)
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, items[i].Word)
	}
	return out
}
