package speech

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/tuispeak/internal/textmatch"
)

type timerKind int

const (
	timerTick timerKind = iota
	timerRestart
	timerSilence
	timerSnapshot
	timerCap
	numTimers
)

func (k timerKind) String() string {
	switch k {
	case timerTick:
		return "tick"
	case timerRestart:
		return "restart"
	case timerSilence:
		return "silence"
	case timerSnapshot:
		return "snapshot"
	case timerCap:
		return "cap"
	default:
		return "unknown"
	}
}

// events
type (
	evtStart struct {
		target string
		opts   SessionOptions
		reply  chan error
	}
	evtStop       struct{}
	evtAbandon    struct{}
	evtPermission struct {
		session string
		perm    Permission
		err     error
	}
	evtEngineStart  struct{ run uint64 }
	evtEngineResult struct {
		run        uint64
		text       string
		final      bool
		confidence float64
	}
	evtEngineError struct {
		run  uint64
		kind ErrorKind
	}
	evtEngineEnd struct{ run uint64 }
	evtTimer     struct {
		kind  timerKind
		token uint64
	}
	evtBarrier struct{ done chan struct{} }
)

type timerSlot struct {
	timer Timer
	token uint64
}

type session struct {
	id        string
	target    string
	timed     bool
	startedAt time.Time
	buf       transcript
	run       uint64
	// restarts counts consecutive restarts without a result.
	restarts      int
	totalRestarts int
	lastActivity  time.Time
	remaining     int
	timerActive   bool
	timers        [numTimers]timerSlot
	emit          sync.Once
}

// Controller owns the lifecycle of one pronunciation attempt at a time.
type Controller struct {
	engine Engine
	perms  Permissions
	clock  Clock
	cfg    Config
	cb     Callbacks
	rec    Recorder
	log    *slog.Logger

	events    chan any
	quit      chan struct{}
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	state     atomic.Int32

	// owned by the loop goroutine
	sess      *session
	nextRun   uint64
	nextToken uint64
}

// NewController constructs a controller and starts its event loop.
func NewController(engine Engine, opts ...Option) *Controller {
	c := &Controller{
		engine: engine,
		clock:  realClock{},
		cfg:    DefaultConfig(),
		rec:    nopRecorder{},
		log:    slog.Default(),
		events: make(chan any, 64),
		quit:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	go c.loop()
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// StartSession begins an attempt at target. It returns ErrSessionActive when
// an attempt is already running and ErrClosed after Close. The outcome is
// decided by the event loop, so a nil return means the attempt was accepted.
// It must not be called from a callback.
func (c *Controller) StartSession(target string, opts SessionOptions) error {
	if c.closed() {
		return ErrClosed
	}
	reply := make(chan error, 1)
	c.post(evtStart{target: target, opts: opts, reply: reply})
	select {
	case err := <-reply:
		return err
	case <-c.quit:
		return ErrClosed
	}
}

// StopSession ends the attempt and emits its result. Repeated calls emit at
// most one result.
func (c *Controller) StopSession() { c.post(evtStop{}) }

// Abandon ends the attempt without emitting anything.
func (c *Controller) Abandon() { c.post(evtAbandon{}) }

// Close abandons any attempt and stops the event loop. It must not be called
// from a callback.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.post(evtAbandon{})
		c.flush()
		c.cancel()
		close(c.quit)
	})
}

func (c *Controller) closed() bool {
	select {
	case <-c.quit:
		return true
	default:
		return false
	}
}

func (c *Controller) post(ev any) {
	select {
	case c.events <- ev:
	case <-c.quit:
	}
}

// flush blocks until every event posted before it has been handled.
func (c *Controller) flush() {
	done := make(chan struct{})
	c.post(evtBarrier{done: done})
	select {
	case <-done:
	case <-c.quit:
	}
}

func (c *Controller) loop() {
	for {
		select {
		case <-c.quit:
			return
		case ev := <-c.events:
			c.dispatch(ev)
		}
	}
}

// dispatch handles one event. A panic raised while handling it drops the
// current session and leaves the loop running.
func (c *Controller) dispatch(ev any) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("speech controller panic", "error", r, "stack", string(debug.Stack()))
			c.reset()
		}
	}()
	c.handle(ev)
}

// reset returns to idle without invoking callbacks.
func (c *Controller) reset() {
	if s := c.sess; s != nil {
		for k := timerKind(0); k < numTimers; k++ {
			c.disarm(k)
		}
		c.stopEngine()
		s.buf.reset()
		c.sess = nil
	}
	c.state.Store(int32(StateIdle))
}

func (c *Controller) handle(ev any) {
	switch e := ev.(type) {
	case evtStart:
		c.handleStart(e)
	case evtStop:
		c.handleStop()
	case evtAbandon:
		c.abandon("abandoned")
	case evtPermission:
		c.handlePermission(e)
	case evtEngineStart:
		if s := c.current(e.run); s != nil {
			s.lastActivity = c.clock.Now()
			c.log.Debug("engine started", "session_id", s.id, "run", e.run)
		}
	case evtEngineResult:
		c.handleResult(e)
	case evtEngineError:
		c.handleEngineError(e)
	case evtEngineEnd:
		c.handleEngineEnd(e)
	case evtTimer:
		c.handleTimer(e)
	case evtBarrier:
		close(e.done)
	}
}

// current returns the session if run is its live engine run.
func (c *Controller) current(run uint64) *session {
	if c.sess == nil || c.sess.run != run {
		return nil
	}
	return c.sess
}

func (c *Controller) transition(next State) {
	prev := State(c.state.Load())
	if prev == next {
		return
	}
	c.state.Store(int32(next))
	attrs := []any{"from", prev.String(), "to", next.String()}
	if c.sess != nil {
		attrs = append(attrs, "session_id", c.sess.id)
	}
	c.log.Debug("session state transition", attrs...)
	if c.cb.OnState != nil {
		c.cb.OnState(next)
	}
}

func (c *Controller) handleStart(e evtStart) {
	if c.sess != nil {
		c.log.Debug("session start rejected", "session_id", c.sess.id)
		e.reply <- ErrSessionActive
		return
	}
	timed := e.opts.Timed || c.cfg.UseTimer
	s := &session{
		id:        uuid.NewString(),
		target:    e.target,
		timed:     timed,
		startedAt: c.clock.Now(),
	}
	if timed {
		s.remaining = TimerDuration(e.target)
		if e.opts.Duration > 0 {
			s.remaining = int((e.opts.Duration + time.Second - 1) / time.Second)
		}
	}
	c.sess = s
	e.reply <- nil
	c.transition(StateStarting)
	c.rec.SessionStarted(timed)
	c.log.Info("session started", "session_id", s.id, "timed", timed, "words", len(textmatch.Tokenize(e.target)))

	if c.perms == nil {
		c.beginListening()
		return
	}
	id := s.id
	go func() {
		perm, err := preflight(c.ctx, c.perms)
		c.post(evtPermission{session: id, perm: perm, err: err})
	}()
}

func (c *Controller) handlePermission(e evtPermission) {
	s := c.sess
	if s == nil || s.id != e.session || c.State() != StateStarting {
		return
	}
	if e.err != nil {
		kind := KindFromError(e.err)
		if kind == KindUnknown {
			kind = KindNotAllowed
		}
		c.log.Error("permission preflight failed", "session_id", s.id, "error", e.err)
		c.fatal(kind)
		return
	}
	if e.perm != PermissionGranted {
		c.fatal(KindNotAllowed)
		return
	}
	c.beginListening()
}

func (c *Controller) beginListening() {
	s := c.sess
	s.lastActivity = c.clock.Now()
	if s.timed {
		s.timerActive = true
		c.tick(s.remaining, true)
		c.arm(timerTick, time.Second)
	} else if c.cfg.MaxSessionDuration > 0 {
		c.arm(timerCap, c.cfg.MaxSessionDuration)
	}
	c.transition(StateListening)
	c.launch()
}

// launch starts a fresh engine run. A launch failure is handled like an
// engine error.
func (c *Controller) launch() {
	s := c.sess
	c.nextRun++
	s.run = c.nextRun
	err := c.engine.Start(&listener{c: c, run: s.run})
	if err == nil {
		s.lastActivity = c.clock.Now()
		c.transition(StateListening)
		return
	}
	kind := KindFromError(err)
	c.log.Warn("engine start failed", "session_id", s.id, "run", s.run, "error", err)
	c.rec.EngineError(kind)
	if kind.Class() == ClassFatal {
		c.fatal(kind)
		return
	}
	c.restart("start failed")
}

func (c *Controller) handleResult(e evtEngineResult) {
	s := c.current(e.run)
	if s == nil || c.State() == StateStarting {
		return
	}
	s.lastActivity = c.clock.Now()
	s.restarts = 0
	if e.final {
		if c.cfg.MinConfidence > 0 && e.confidence > 0 && e.confidence < c.cfg.MinConfidence {
			c.log.Debug("low confidence segment dropped", "session_id", s.id, "confidence", e.confidence)
			s.buf.setInterim("")
		} else if !s.buf.appendFinal(e.text, e.confidence) {
			c.log.Debug("final segment skipped", "session_id", s.id)
		}
	} else {
		s.buf.setInterim(e.text)
	}
	if c.cb.OnTranscript != nil {
		c.cb.OnTranscript(s.buf.display())
	}
	if !s.timed && c.State() == StateListening && !s.buf.empty() {
		c.arm(timerSilence, c.cfg.silenceTimeout(s.target))
	}
}

func (c *Controller) handleEngineError(e evtEngineError) {
	s := c.current(e.run)
	if s == nil {
		return
	}
	class := e.kind.Class()
	c.log.Warn("engine error", "session_id", s.id, "kind", e.kind.String(), "class", class.String())
	c.rec.EngineError(e.kind)
	switch class {
	case ClassBenign:
		return
	case ClassFatal:
		c.fatal(e.kind)
		return
	}
	if c.State() != StateListening {
		return
	}
	c.stopEngine()
	c.restart(e.kind.String())
}

func (c *Controller) handleEngineEnd(e evtEngineEnd) {
	s := c.current(e.run)
	if s == nil || c.State() != StateListening {
		return
	}
	if !s.timed && !s.buf.empty() {
		c.finalize("engine ended")
		return
	}
	c.restart("engine ended")
}

// restart schedules the next engine run, or finalizes once the consecutive
// restart bound is reached.
func (c *Controller) restart(reason string) {
	s := c.sess
	c.disarm(timerSilence)
	if s.restarts >= c.cfg.MaxRestarts {
		c.log.Error("engine restarts exhausted", "session_id", s.id, "restarts", s.restarts, "reason", reason)
		c.finalize("restarts exhausted")
		return
	}
	s.restarts++
	s.totalRestarts++
	c.rec.Restarted(reason)
	delay := c.cfg.restartDelay(s.restarts)
	c.log.Info("engine restart scheduled", "session_id", s.id, "attempt", s.restarts, "delay", delay, "reason", reason)
	c.transition(StateRestarting)
	c.arm(timerRestart, delay)
}

func (c *Controller) handleTimer(e evtTimer) {
	s := c.sess
	if s == nil || s.timers[e.kind].token != e.token {
		return
	}
	s.timers[e.kind] = timerSlot{}
	switch e.kind {
	case timerTick:
		c.handleTick()
	case timerRestart:
		if c.State() == StateRestarting {
			c.launch()
		}
	case timerSilence:
		if c.State() == StateListening && !s.buf.empty() {
			c.finalize("silence")
		}
	case timerCap:
		c.finalize("max duration")
	case timerSnapshot:
		c.complete()
	}
}

func (c *Controller) handleTick() {
	s := c.sess
	if !s.timerActive {
		return
	}
	s.remaining--
	if s.remaining <= 0 {
		s.remaining = 0
		s.timerActive = false
		c.tick(0, false)
		c.finalize("timer expired")
		return
	}
	c.tick(s.remaining, true)
	c.arm(timerTick, time.Second)
	if c.State() == StateListening && c.clock.Now().Sub(s.lastActivity) > c.cfg.StallThreshold {
		c.log.Info("engine stalled", "session_id", s.id, "idle", c.clock.Now().Sub(s.lastActivity))
		c.stopEngine()
		c.restart("stalled")
	}
}

func (c *Controller) handleStop() {
	switch c.State() {
	case StateIdle:
		return
	case StateStarting:
		c.abandon("stopped before listening")
	case StateFinalizing:
		c.complete()
	default:
		c.finalize("stopped")
	}
}

// finalize stops capture and schedules the snapshot. Results keep being
// accepted until the snapshot is taken.
func (c *Controller) finalize(reason string) {
	s := c.sess
	switch c.State() {
	case StateListening, StateRestarting:
	default:
		return
	}
	c.log.Info("session finalizing", "session_id", s.id, "reason", reason)
	for _, k := range []timerKind{timerTick, timerRestart, timerSilence, timerCap} {
		c.disarm(k)
	}
	if s.timerActive {
		s.timerActive = false
		c.tick(0, false)
	}
	c.transition(StateFinalizing)
	c.stopEngine()
	if c.cfg.SnapshotDelay <= 0 {
		c.complete()
		return
	}
	c.arm(timerSnapshot, c.cfg.SnapshotDelay)
}

// complete takes the snapshot, emits at most one result, and returns to idle.
func (c *Controller) complete() {
	s := c.sess
	if s == nil {
		return
	}
	c.disarm(timerSnapshot)
	s.emit.Do(func() {
		text := s.buf.snapshot()
		if text == "" {
			c.log.Info("session ended with nothing heard", "session_id", s.id)
			c.rec.NothingHeard()
			return
		}
		r := newResult(s, text, c.clock.Now())
		c.log.Info("session result", "session_id", s.id, "accuracy", r.Accuracy, "confidence", r.Confidence, "restarts", r.Restarts)
		c.rec.ResultEmitted(r)
		if c.cb.OnResult != nil {
			c.cb.OnResult(r)
		}
	})
	c.teardown()
}

func (c *Controller) fatal(kind ErrorKind) {
	s := c.sess
	c.log.Error("session aborted", "session_id", s.id, "kind", kind.String())
	c.rec.FatalError(kind)
	timerWasActive := s.timerActive
	c.teardown()
	if timerWasActive {
		c.tick(0, false)
	}
	if c.cb.OnFatalError != nil {
		c.cb.OnFatalError(kind)
	}
}

func (c *Controller) abandon(reason string) {
	if c.sess == nil {
		return
	}
	c.log.Info("session abandoned", "session_id", c.sess.id, "reason", reason)
	c.teardown()
}

// teardown cancels every timer, stops the engine, and clears the session.
func (c *Controller) teardown() {
	s := c.sess
	for k := timerKind(0); k < numTimers; k++ {
		c.disarm(k)
	}
	if c.State() != StateFinalizing {
		c.stopEngine()
	}
	s.buf.reset()
	s.timerActive = false
	c.transition(StateIdle)
	c.sess = nil
}

func (c *Controller) stopEngine() {
	if err := c.engine.Stop(); err != nil {
		c.log.Debug("engine stop failed", "error", err)
	}
}

func (c *Controller) tick(remaining int, active bool) {
	if c.cb.OnTimerTick != nil {
		c.cb.OnTimerTick(remaining, active)
	}
}

func (c *Controller) arm(kind timerKind, d time.Duration) {
	s := c.sess
	c.disarm(kind)
	c.nextToken++
	token := c.nextToken
	s.timers[kind] = timerSlot{
		token: token,
		timer: c.clock.AfterFunc(d, func() { c.post(evtTimer{kind: kind, token: token}) }),
	}
}

func (c *Controller) disarm(kind timerKind) {
	s := c.sess
	if s == nil {
		return
	}
	if slot := s.timers[kind]; slot.timer != nil {
		slot.timer.Stop()
	}
	s.timers[kind] = timerSlot{}
}
