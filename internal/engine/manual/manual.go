// Package manual provides a recognition engine whose results are pushed by
// the caller. The practice screen uses it for typed answers when no
// recognizer is configured.
package manual

import (
	"sync"

	"github.com/verte-zerg/tuispeak/internal/speech"
)

// Engine forwards pushed text to the active listener.
type Engine struct {
	mu      sync.Mutex
	l       speech.Listener
	running bool
}

// New returns an idle engine.
func New() *Engine {
	return &Engine{}
}

// Start attaches l as the active listener.
func (e *Engine) Start(l speech.Listener) error {
	e.mu.Lock()
	e.l = l
	e.running = true
	e.mu.Unlock()
	l.OnStart()
	return nil
}

// Stop ends the run. Later pushes return speech.ErrEngineStopped.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	return nil
}

// Running reports whether a run is in progress.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) listener() (speech.Listener, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.l == nil {
		return nil, speech.ErrEngineStopped
	}
	return e.l, nil
}

// Interim delivers tentative text.
func (e *Engine) Interim(text string) error {
	l, err := e.listener()
	if err != nil {
		return err
	}
	l.OnResult(text, false, 0)
	return nil
}

// Final delivers committed text with an optional confidence in 0..1.
func (e *Engine) Final(text string, confidence float64) error {
	l, err := e.listener()
	if err != nil {
		return err
	}
	l.OnResult(text, true, confidence)
	return nil
}

// Fail reports an engine error.
func (e *Engine) Fail(kind speech.ErrorKind) error {
	l, err := e.listener()
	if err != nil {
		return err
	}
	l.OnError(kind)
	return nil
}

// End reports that the engine stopped on its own.
func (e *Engine) End() error {
	e.mu.Lock()
	l, running := e.l, e.running
	e.running = false
	e.mu.Unlock()
	if !running || l == nil {
		return speech.ErrEngineStopped
	}
	l.OnEnd()
	return nil
}

// Submit delivers text as one final segment and ends the run.
func (e *Engine) Submit(text string) error {
	if err := e.Final(text, 0); err != nil {
		return err
	}
	return e.End()
}
