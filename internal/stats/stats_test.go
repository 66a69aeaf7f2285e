package stats

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/tuispeak/internal/model"
	"github.com/verte-zerg/tuispeak/internal/textmatch"
)

func TestWordAccuracy(t *testing.T) {
	cases := []struct {
		ws   model.WordStats
		want float64
	}{
		{model.WordStats{}, 1},
		{model.WordStats{Matched: 3, Missed: 1}, 0.75},
		{model.WordStats{Near: 2}, 0.5},
		{model.WordStats{Missed: 4}, 0},
	}
	for _, tc := range cases {
		if got := WordAccuracy(tc.ws); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("WordAccuracy(%+v) = %v, want %v", tc.ws, got, tc.want)
		}
	}
}

func TestWordStatsFromReview(t *testing.T) {
	review := []textmatch.WordResult{
		{Word: "the", Status: textmatch.WordMatched},
		{Word: "cat", Status: textmatch.WordNear},
		{Word: "and", Status: textmatch.WordMissed},
		{Word: "the", Status: textmatch.WordMissed},
	}
	got := WordStatsFromReview(review)
	if len(got) != 3 {
		t.Fatalf("expected 3 distinct words, got %+v", got)
	}
	if got[0] != (model.WordStats{Word: "the", Matched: 1, Missed: 1}) {
		t.Fatalf("unexpected tally for repeated word: %+v", got[0])
	}
	if got[1].Near != 1 || got[2].Missed != 1 {
		t.Fatalf("unexpected tallies: %+v", got)
	}
}

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{2, 4, 6, 8}, 2)
	want := []float64{2, 3, 5, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("MovingAverage = %v, want %v", got, want)
		}
	}
	same := MovingAverage([]float64{1, 2}, 1)
	if same[0] != 1 || same[1] != 2 {
		t.Fatalf("window 1 should copy: %v", same)
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline([]float64{0, 100}); got != " @" {
		t.Fatalf("unexpected sparkline %q", got)
	}
	if got := Sparkline([]float64{5, 5, 5}); got != "+++" {
		t.Fatalf("flat series should use the middle char, got %q", got)
	}
	if Sparkline(nil) != "" {
		t.Fatalf("empty series should render empty")
	}
}

func TestSummarizeAndRender(t *testing.T) {
	attempts := []model.AttemptAggregate{
		{Accuracy: 100, Confidence: 90, DurationMs: 2000},
		{Accuracy: 50, Confidence: 80, DurationMs: 3000},
	}
	s := Summarize(attempts)
	if s.Attempts != 2 || s.AvgAccuracy != 75 || s.BestAccuracy != 100 || s.AvgConfidence != 85 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if s.Excellent != 1 || s.Practice != 5*time.Second {
		t.Fatalf("unexpected summary totals: %+v", s)
	}

	var buf bytes.Buffer
	if err := RenderSummary(&buf, attempts); err != nil {
		t.Fatalf("RenderSummary: %v", err)
	}
	if !strings.Contains(buf.String(), "Avg Accuracy: 75.0%") {
		t.Fatalf("unexpected summary output:\n%s", buf.String())
	}
	buf.Reset()
	if err := RenderSummary(&buf, nil); err != nil || !strings.Contains(buf.String(), "No attempts") {
		t.Fatalf("empty summary: %q %v", buf.String(), err)
	}
}

func TestSelectWeakWords(t *testing.T) {
	aggs := []model.WordAggregate{
		{Word: "perfect", Matched: 5},
		{Word: "river", Matched: 1, Missed: 3},
		{Word: "water", Matched: 2, Missed: 2},
		{Word: "bloom", Near: 1, Matched: 3},
	}
	weak := SelectWeakWords(aggs, 2)
	if len(weak) != 2 {
		t.Fatalf("expected 2 weak words, got %v", weak)
	}
	for _, w := range []string{"river", "water"} {
		if _, ok := weak[w]; !ok {
			t.Fatalf("expected %q to be weak: %v", w, weak)
		}
	}
	all := SelectWeakWords(aggs, 0)
	if _, ok := all["perfect"]; ok || len(all) != 3 {
		t.Fatalf("always-correct words are never weak: %v", all)
	}
}

func TestRenderWordTableAndCurves(t *testing.T) {
	aggs := []model.WordAggregate{
		{Word: "easy", Matched: 4},
		{Word: "hard", Missed: 3, Matched: 1},
	}
	var buf bytes.Buffer
	if err := RenderWordTable(&buf, aggs, 1); err != nil {
		t.Fatalf("RenderWordTable: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "hard") || strings.Contains(out, "easy") {
		t.Fatalf("limit should keep only the weakest word:\n%s", out)
	}

	attempts := []model.AttemptAggregate{{AttemptID: 1}, {AttemptID: 2}, {AttemptID: 3}}
	per := map[int64]map[string]model.WordStats{
		2: {"hard": {Word: "hard", Missed: 1}},
		3: {"hard": {Word: "hard", Matched: 1}},
	}
	series := WordSeries(attempts, per, "hard")
	if len(series) != 2 || series[0] != 0 || series[1] != 100 {
		t.Fatalf("unexpected word series: %v", series)
	}
	buf.Reset()
	if err := RenderWordCurves(&buf, attempts, per, []string{"hard", "absent"}, 1, 20); err != nil {
		t.Fatalf("RenderWordCurves: %v", err)
	}
	if !strings.Contains(buf.String(), `Word "hard"`) || strings.Contains(buf.String(), "absent") {
		t.Fatalf("unexpected curves output:\n%s", buf.String())
	}
}
