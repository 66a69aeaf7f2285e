// Package stats contains statistics calculations and reporting.
package stats

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/verte-zerg/tuispeak/internal/model"
	"github.com/verte-zerg/tuispeak/internal/textmatch"
)

const sparkChars = " .:-=+*#%@"

// nearWeight is the credit a near miss earns toward word accuracy.
const nearWeight = 0.5

// WordAccuracy returns the share of times a word was said correctly, with
// near misses earning half credit. Unseen words count as fully accurate.
func WordAccuracy(ws model.WordStats) float64 {
	total := ws.Total()
	if total == 0 {
		return 1.0
	}
	return (float64(ws.Matched) + nearWeight*float64(ws.Near)) / float64(total)
}

// WordStatsFromReview tallies a word review per distinct word, in first-seen
// order.
func WordStatsFromReview(review []textmatch.WordResult) []model.WordStats {
	index := map[string]int{}
	var out []model.WordStats
	for _, r := range review {
		i, ok := index[r.Word]
		if !ok {
			i = len(out)
			index[r.Word] = i
			out = append(out, model.WordStats{Word: r.Word})
		}
		switch r.Status {
		case textmatch.WordMatched:
			out[i].Matched++
		case textmatch.WordNear:
			out[i].Near++
		default:
			out[i].Missed++
		}
	}
	return out
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := minMax(values)
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// Summary holds headline numbers over a set of attempts.
type Summary struct {
	Attempts      int
	AvgAccuracy   float64
	BestAccuracy  int
	AvgConfidence float64
	Excellent     int
	Practice      time.Duration
}

// Summarize computes headline numbers for attempts.
func Summarize(attempts []model.AttemptAggregate) Summary {
	s := Summary{Attempts: len(attempts)}
	if len(attempts) == 0 {
		return s
	}
	var accSum, confSum int
	for _, a := range attempts {
		accSum += a.Accuracy
		confSum += a.Confidence
		if a.Accuracy > s.BestAccuracy {
			s.BestAccuracy = a.Accuracy
		}
		if textmatch.Grade(a.Accuracy) == "excellent" {
			s.Excellent++
		}
		s.Practice += time.Duration(a.DurationMs) * time.Millisecond
	}
	n := float64(len(attempts))
	s.AvgAccuracy = float64(accSum) / n
	s.AvgConfidence = float64(confSum) / n
	return s
}

// RenderSummary prints a summary block for attempts.
func RenderSummary(w io.Writer, attempts []model.AttemptAggregate) error {
	if len(attempts) == 0 {
		_, err := fmt.Fprintln(w, "No attempts found.")
		return err
	}
	s := Summarize(attempts)
	lines := []string{
		"Summary",
		fmt.Sprintf("Attempts: %d", s.Attempts),
		fmt.Sprintf("Avg Accuracy: %.1f%%", s.AvgAccuracy),
		fmt.Sprintf("Best Accuracy: %d%%", s.BestAccuracy),
		fmt.Sprintf("Avg Confidence: %.1f%%", s.AvgConfidence),
		fmt.Sprintf("Excellent: %d", s.Excellent),
		fmt.Sprintf("Practice Time: %s", s.Practice.Round(time.Second)),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderCurves prints accuracy and confidence curves. A width of 0 sizes the
// chart to the terminal.
func RenderCurves(w io.Writer, attempts []model.AttemptAggregate, window, width int) error {
	if len(attempts) == 0 {
		return nil
	}
	accs := make([]float64, len(attempts))
	confs := make([]float64, len(attempts))
	for i, a := range attempts {
		accs[i] = float64(a.Accuracy)
		confs[i] = float64(a.Confidence)
	}
	return RenderChart(w, "Learning Curves", []Series{
		{Name: "Accuracy", Values: MovingAverage(accs, window)},
		{Name: "Confidence", Values: MovingAverage(confs, window)},
	}, width, 0)
}

// RenderWordTable prints per-word aggregates, weakest first. A positive limit
// caps the number of rows.
func RenderWordTable(w io.Writer, aggs []model.WordAggregate, limit int) error {
	if len(aggs) == 0 {
		_, err := fmt.Fprintln(w, "No word stats found.")
		return err
	}
	rows := make([]model.WordAggregate, len(aggs))
	copy(rows, aggs)
	sortWeakest(rows)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	if _, err := fmt.Fprintln(w, "Per-Word (Windowed)"); err != nil {
		return err
	}
	headers := []string{"Word", "Accuracy", "Matched", "Near", "Missed"}
	tableRows := make([][]string, 0, len(rows))
	for _, r := range rows {
		tableRows = append(tableRows, []string{
			r.Word,
			fmt.Sprintf("%.1f%%", WordAccuracy(r)*100),
			fmt.Sprintf("%d", r.Matched),
			fmt.Sprintf("%d", r.Near),
			fmt.Sprintf("%d", r.Missed),
		})
	}
	rightAlign := map[int]bool{1: true, 2: true, 3: true, 4: true}
	for _, line := range formatTable(headers, tableRows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderWordCurves prints an accuracy curve per selected word. Attempts where
// the word did not appear repeat the previous value.
func RenderWordCurves(w io.Writer, attempts []model.AttemptAggregate, perAttempt map[int64]map[string]model.WordStats, words []string, window, width int) error {
	if len(words) == 0 || len(attempts) == 0 {
		return nil
	}
	series := make([]Series, 0, len(words))
	for _, word := range words {
		values := WordSeries(attempts, perAttempt, word)
		if len(values) == 0 {
			continue
		}
		series = append(series, Series{Name: fmt.Sprintf("Word %q", word), Values: MovingAverage(values, window)})
	}
	if len(series) == 0 {
		return nil
	}
	return RenderChart(w, "Per-Word Curves", series, width, 0)
}

// WordSeries returns the accuracy of word across attempts, starting at its
// first appearance and carrying the last value over attempts without it.
func WordSeries(attempts []model.AttemptAggregate, perAttempt map[int64]map[string]model.WordStats, word string) []float64 {
	var out []float64
	seen := false
	last := 0.0
	for _, a := range attempts {
		if ws, ok := perAttempt[a.AttemptID][word]; ok && ws.Total() > 0 {
			last = WordAccuracy(ws) * 100
			seen = true
		}
		if seen {
			out = append(out, last)
		}
	}
	return out
}

func sortWeakest(aggs []model.WordAggregate) {
	sort.Slice(aggs, func(i, j int) bool {
		ai := WordAccuracy(aggs[i])
		aj := WordAccuracy(aggs[j])
		if ai == aj {
			ti, tj := aggs[i].Total(), aggs[j].Total()
			if ti == tj {
				return aggs[i].Word < aggs[j].Word
			}
			return ti > tj
		}
		return ai < aj
	})
}
