package stats

import (
	"testing"

	"github.com/verte-zerg/tuispeak/internal/model"
)

func TestTopWordsByFrequency(t *testing.T) {
	aggs := []model.WordAggregate{
		{Word: "river", Matched: 3, Missed: 1},
		{Word: "cat", Matched: 2, Near: 1, Missed: 1},
		{Word: "the", Matched: 1},
	}
	top := TopWordsByFrequency(aggs, 2)
	if len(top) != 2 {
		t.Fatalf("expected 2 words, got %d", len(top))
	}
	if top[0] != "cat" || top[1] != "river" {
		t.Fatalf("unexpected order: %v", top)
	}
	if TopWordsByFrequency(aggs, 0) != nil {
		t.Fatalf("n=0 should return nil")
	}
}
