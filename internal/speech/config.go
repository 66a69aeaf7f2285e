package speech

import (
	"log/slog"
	"math"
	"time"

	"github.com/verte-zerg/tuispeak/internal/textmatch"
)

const (
	timerSecondsPerWord = 1.5
	timerBufferSeconds  = 4
	minTimerSeconds     = 8
	maxTimerSeconds     = 25

	silencePerWord    = 600 * time.Millisecond
	maxSilenceTimeout = 10 * time.Second
)

// Config holds the controller tuning knobs.
type Config struct {
	// MaxRestarts bounds consecutive engine restarts without a result.
	MaxRestarts int
	// SilenceThreshold is the minimum quiet period that ends an untimed
	// attempt once something has been heard.
	SilenceThreshold time.Duration
	// UseTimer forces the countdown for every session.
	UseTimer bool
	// StallThreshold is how long a timed session may go without any engine
	// activity before the engine is restarted.
	StallThreshold time.Duration
	// RestartDelay, RestartDelayStep, and MaxRestartDelay shape the backoff
	// between engine runs: min(RestartDelay + n*RestartDelayStep, MaxRestartDelay).
	RestartDelay     time.Duration
	RestartDelayStep time.Duration
	MaxRestartDelay  time.Duration
	// SnapshotDelay lets trailing engine results land before the transcript is
	// frozen.
	SnapshotDelay time.Duration
	// MaxSessionDuration caps untimed sessions. Zero disables the cap.
	MaxSessionDuration time.Duration
	// MinConfidence drops final segments the engine scored below it (0..1).
	// Zero keeps everything.
	MinConfidence float64
}

// DefaultConfig returns the stock controller tuning.
func DefaultConfig() Config {
	return Config{
		MaxRestarts:        6,
		SilenceThreshold:   3 * time.Second,
		StallThreshold:     5 * time.Second,
		RestartDelay:       300 * time.Millisecond,
		RestartDelayStep:   100 * time.Millisecond,
		MaxRestartDelay:    time.Second,
		SnapshotDelay:      300 * time.Millisecond,
		MaxSessionDuration: 45 * time.Second,
	}
}

// TimerDuration returns the countdown length in seconds for target:
// 1.5s per scored word plus a fixed buffer, clamped to [8, 25].
func TimerDuration(target string) int {
	words := len(textmatch.Tokenize(target))
	secs := int(math.Round(float64(words)*timerSecondsPerWord + timerBufferSeconds))
	if secs < minTimerSeconds {
		return minTimerSeconds
	}
	if secs > maxTimerSeconds {
		return maxTimerSeconds
	}
	return secs
}

// silenceTimeout scales the untimed quiet period with sentence length.
func (c Config) silenceTimeout(target string) time.Duration {
	scaled := time.Duration(len(textmatch.Tokenize(target))) * silencePerWord
	if scaled > maxSilenceTimeout {
		scaled = maxSilenceTimeout
	}
	if scaled < c.SilenceThreshold {
		return c.SilenceThreshold
	}
	return scaled
}

// restartDelay is the wait before the n-th consecutive restart.
func (c Config) restartDelay(n int) time.Duration {
	d := c.RestartDelay + time.Duration(n)*c.RestartDelayStep
	if c.MaxRestartDelay > 0 && d > c.MaxRestartDelay {
		return c.MaxRestartDelay
	}
	return d
}

// Callbacks receive controller output. They run on the controller goroutine
// and must not block or call back into the controller synchronously.
type Callbacks struct {
	OnResult     func(Result)
	OnTimerTick  func(remaining int, active bool)
	OnFatalError func(ErrorKind)
	// OnTranscript reports the live transcript: accumulated finals plus the
	// current interim text.
	OnTranscript func(text string)
	OnState      func(State)
}

// Recorder receives session telemetry.
type Recorder interface {
	SessionStarted(timed bool)
	Restarted(reason string)
	EngineError(kind ErrorKind)
	FatalError(kind ErrorKind)
	ResultEmitted(r Result)
	NothingHeard()
}

type nopRecorder struct{}

func (nopRecorder) SessionStarted(bool)   {}
func (nopRecorder) Restarted(string)      {}
func (nopRecorder) EngineError(ErrorKind) {}
func (nopRecorder) FatalError(ErrorKind)  {}
func (nopRecorder) ResultEmitted(Result)  {}
func (nopRecorder) NothingHeard()         {}

// Option configures a Controller.
type Option func(*Controller)

// WithConfig replaces the default tuning.
func WithConfig(cfg Config) Option {
	return func(c *Controller) { c.cfg = cfg }
}

// WithClock swaps the wall clock, typically for a FakeClock.
func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithPermissions enables the permission preflight before each session.
func WithPermissions(p Permissions) Option {
	return func(c *Controller) { c.perms = p }
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithCallbacks sets the output callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(c *Controller) { c.cb = cb }
}

// WithRecorder attaches a telemetry sink.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.rec = r }
}

// SessionOptions tune a single attempt.
type SessionOptions struct {
	// Timed enables the countdown. Config.UseTimer forces it on.
	Timed bool
	// Duration overrides the computed countdown length when positive.
	Duration time.Duration
}
