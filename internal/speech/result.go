package speech

import (
	"time"

	"github.com/verte-zerg/tuispeak/internal/textmatch"
)

// defaultConfidence is reported when the engine gives no confidence values.
const defaultConfidence = 85

// Result is the outcome of one completed attempt.
type Result struct {
	SessionID  string
	Target     string
	Transcript string
	// Confidence is the mean engine confidence of the accepted final segments,
	// 0..100.
	Confidence int
	// Accuracy is the word-level LCS score of Transcript against Target.
	Accuracy  int
	Words     []textmatch.WordResult
	Timed     bool
	Restarts  int
	StartedAt time.Time
	EndedAt   time.Time
}

// Duration is how long the attempt ran.
func (r Result) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Grade labels the accuracy band.
func (r Result) Grade() string {
	return textmatch.Grade(r.Accuracy)
}

func newResult(s *session, text string, ended time.Time) Result {
	return Result{
		SessionID:  s.id,
		Target:     s.target,
		Transcript: text,
		Confidence: s.buf.confidence(),
		Accuracy:   textmatch.Score(s.target, text),
		Words:      textmatch.Review(s.target, text),
		Timed:      s.timed,
		Restarts:   s.totalRestarts,
		StartedAt:  s.startedAt,
		EndedAt:    ended,
	}
}
