// Package speech supervises one pronunciation attempt at a time: it drives an
// unreliable recognition engine, restarts it when it quits early, bounds the
// attempt with an optional countdown, and emits exactly one scored result.
//
// All session state lives on a single event-loop goroutine. Engine callbacks,
// timer expiries, and caller commands are funneled into that loop as events,
// so no two transitions ever run concurrently.
package speech

import "context"

// Engine is the external speech recognizer. Start begins capture and reports
// progress through the listener; it must not block for the duration of the
// capture. Stop ends capture and must tolerate being called when nothing is
// running.
type Engine interface {
	Start(l Listener) error
	Stop() error
}

// Listener receives engine callbacks. Implementations provided by the
// controller are safe to call from any goroutine.
type Listener interface {
	OnStart()
	// OnResult delivers recognized text. Confidence is in 0..1, or 0 when the
	// engine does not report one.
	OnResult(text string, isFinal bool, confidence float64)
	OnError(kind ErrorKind)
	OnEnd()
}

// Permission is the outcome of a microphone permission check.
type Permission int

const (
	PermissionUnknown Permission = iota
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Permissions queries and requests access to the capture device.
type Permissions interface {
	Query(ctx context.Context) (Permission, error)
	Request(ctx context.Context) (Permission, error)
}

// preflight asks for permission only when a query does not already report it
// as granted.
func preflight(ctx context.Context, p Permissions) (Permission, error) {
	perm, err := p.Query(ctx)
	if err == nil && perm == PermissionGranted {
		return perm, nil
	}
	return p.Request(ctx)
}

// listener tags engine callbacks with the engine run they belong to so that
// callbacks from a stopped run are discarded by the loop.
type listener struct {
	c   *Controller
	run uint64
}

func (l *listener) OnStart() { l.c.post(evtEngineStart{run: l.run}) }

func (l *listener) OnResult(text string, isFinal bool, confidence float64) {
	l.c.post(evtEngineResult{run: l.run, text: text, final: isFinal, confidence: confidence})
}

func (l *listener) OnError(kind ErrorKind) { l.c.post(evtEngineError{run: l.run, kind: kind}) }

func (l *listener) OnEnd() { l.c.post(evtEngineEnd{run: l.run}) }
