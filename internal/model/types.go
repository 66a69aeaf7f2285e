// Package model defines shared data structures.
package model

import "time"

// Sentence order modes.
const (
	OrderSequential = "sequential"
	OrderShuffle    = "shuffle"
	OrderWeak       = "weak"
)

// Config defines practice settings.
type Config struct {
	Lesson     string
	LessonFile string
	Order      string
	Timed      bool
	FocusWeak  bool
	WeakTop    int
	WeakFactor float64
	WeakWindow int
}

// StatsConfig defines filters and options for stats output.
type StatsConfig struct {
	Lesson      string
	Since       *time.Time
	Last        int
	CurveWindow int
	Words       string
}

// Attempt captures one scored reading of a sentence.
type Attempt struct {
	SessionID  string
	LessonID   string
	Target     string
	Transcript string
	Accuracy   int
	Confidence int
	Timed      bool
	Restarts   int
	StartedAt  time.Time
	EndedAt    time.Time
	DurationMs int64
}

// WordStats stores per-word outcomes for an attempt.
type WordStats struct {
	Word    string
	Matched int
	Near    int
	Missed  int
}

// Total is the number of times the word was expected.
func (w WordStats) Total() int {
	return w.Matched + w.Near + w.Missed
}

// WordAggregate aggregates word outcomes across attempts.
type WordAggregate = WordStats

// AttemptAggregate summarizes an attempt for reporting.
type AttemptAggregate struct {
	AttemptID  int64
	LessonID   string
	EndedAt    time.Time
	Accuracy   int
	Confidence int
	DurationMs int64
	Words      int
}
