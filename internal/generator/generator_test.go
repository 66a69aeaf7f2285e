package generator

import (
	"sort"
	"strings"
	"testing"
)

var sentences = []string{"The cat runs.", "Birds sing songs.", "Water flows down the river."}

func TestSequentialWraps(t *testing.T) {
	g := NewSeeded(1)
	pos := 0
	var got []string
	for i := 0; i < 4; i++ {
		var s string
		s, pos = g.Sequential(sentences, pos)
		got = append(got, s)
	}
	want := []string{sentences[0], sentences[1], sentences[2], sentences[0]}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected order: %q", got)
	}
	if s, next := g.Sequential(sentences, 7); s != sentences[1] || next != 2 {
		t.Fatalf("out-of-range position should wrap: %q %d", s, next)
	}
	if s, next := g.Sequential(nil, 3); s != "" || next != 0 {
		t.Fatalf("empty lesson: %q %d", s, next)
	}
}

func TestShuffleIsPermutation(t *testing.T) {
	g := NewSeeded(42)
	out := g.Shuffle(sentences)
	if len(out) != len(sentences) {
		t.Fatalf("length changed: %d", len(out))
	}
	a := append([]string(nil), out...)
	b := append([]string(nil), sentences...)
	sort.Strings(a)
	sort.Strings(b)
	if strings.Join(a, "|") != strings.Join(b, "|") {
		t.Fatalf("not a permutation: %q", out)
	}
}

func TestPickAvoidsPrevious(t *testing.T) {
	g := NewSeeded(3)
	two := []string{"one", "two"}
	repeats := 0
	for i := 0; i < 200; i++ {
		if g.Pick(two, "one") == "one" {
			repeats++
		}
	}
	if repeats > 40 {
		t.Fatalf("previous sentence picked too often: %d", repeats)
	}
	if g.Pick([]string{"only"}, "only") != "only" {
		t.Fatalf("single sentence must be returned")
	}
}

func TestPickWeightedPrefersWeakWords(t *testing.T) {
	g := NewSeeded(7)
	weak := map[string]struct{}{"river": {}, "water": {}}
	hits := 0
	for i := 0; i < 1000; i++ {
		if g.PickWeighted(sentences, weak, 10) == sentences[2] {
			hits++
		}
	}
	// Weights are 1, 1, 21: the weak sentence should dominate.
	if hits < 800 {
		t.Fatalf("weak sentence picked %d/1000 times", hits)
	}
}
