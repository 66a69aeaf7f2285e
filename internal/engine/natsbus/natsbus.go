// Package natsbus consumes transcripts published on a NATS bus by an
// external speech-to-text service and publishes scored attempts back.
//
// Each engine run announces itself on <prefix>.capture.start with a fresh
// session id. The service streams stt.text.partial and stt.text.final
// messages tagged with that id; a final message closes the run.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/verte-zerg/tuispeak/internal/speech"
)

const (
	SubjectTranscriptPartial = "stt.text.partial"
	SubjectTranscriptFinal   = "stt.text.final"
	SubjectTranscriptError   = "stt.text.error"
	subjectTranscripts       = "stt.text.*"

	DefaultPrefix  = "tuispeak"
	connectTimeout = 5 * time.Second
)

// Transcript is STT output broadcast on the bus.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Partial    bool      `json:"partial"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Control announces the start or end of capture for a session.
type Control struct {
	SessionID string    `json:"session_id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// Connect dials the NATS servers in url (comma separated).
func Connect(url string, log *slog.Logger) (*nats.Conn, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("no NATS servers configured")
	}
	conn, err := nats.Connect(url,
		nats.Name("tuispeak"),
		nats.Timeout(connectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "server", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	log.Info("connected to NATS", "servers", url)
	return conn, nil
}

// Engine turns bus transcripts for its current run into listener callbacks.
type Engine struct {
	conn   *nats.Conn
	prefix string
	log    *slog.Logger

	mu      sync.Mutex
	sub     *nats.Subscription
	session string
	l       speech.Listener
}

// New returns an engine bound to conn. An empty prefix uses DefaultPrefix.
func New(conn *nats.Conn, prefix string, log *slog.Logger) *Engine {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{conn: conn, prefix: prefix, log: log}
}

func (e *Engine) controlSubject(action string) string {
	return e.prefix + ".capture." + action
}

// Start subscribes to the transcript subjects and announces a new capture.
func (e *Engine) Start(l speech.Listener) error {
	if e.conn == nil || !e.conn.IsConnected() {
		return fmt.Errorf("nats engine: %w", nats.ErrConnectionClosed)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unsubscribeLocked()

	session := uuid.NewString()
	sub, err := e.conn.Subscribe(subjectTranscripts, func(msg *nats.Msg) {
		e.handle(session, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe transcripts: %w", err)
	}
	e.sub = sub
	e.session = session
	e.l = l
	if err := e.publishControl(session, "start"); err != nil {
		e.unsubscribeLocked()
		return err
	}
	e.log.Debug("nats capture started", "session_id", session)
	go l.OnStart()
	return nil
}

func (e *Engine) handle(session string, msg *nats.Msg) {
	var t Transcript
	if err := json.Unmarshal(msg.Data, &t); err != nil {
		e.log.Warn("failed to decode transcript", "subject", msg.Subject, "error", err)
		return
	}
	e.mu.Lock()
	l := e.l
	live := e.session == session && l != nil
	e.mu.Unlock()
	if !live || t.SessionID != session {
		return
	}
	switch msg.Subject {
	case SubjectTranscriptPartial:
		l.OnResult(t.Text, false, t.Confidence)
	case SubjectTranscriptFinal:
		if strings.TrimSpace(t.Text) != "" {
			l.OnResult(t.Text, true, t.Confidence)
		}
		e.finish(session)
		l.OnEnd()
	case SubjectTranscriptError:
		l.OnError(speech.ParseErrorKind(t.Error))
	}
}

// finish detaches the run so later messages for it are ignored.
func (e *Engine) finish(session string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != session {
		return
	}
	e.unsubscribeLocked()
}

// Stop ends the current run and announces the end of capture.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == "" {
		return nil
	}
	session := e.session
	e.unsubscribeLocked()
	return e.publishControl(session, "stop")
}

func (e *Engine) unsubscribeLocked() {
	if e.sub != nil {
		if err := e.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			e.log.Debug("nats unsubscribe failed", "error", err)
		}
	}
	e.sub = nil
	e.session = ""
	e.l = nil
}

func (e *Engine) publishControl(session, action string) error {
	data, err := json.Marshal(Control{SessionID: session, Action: action, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal control: %w", err)
	}
	if err := e.conn.Publish(e.controlSubject(action), data); err != nil {
		return fmt.Errorf("publish %s: %w", action, err)
	}
	return nil
}

// ResultMessage is the published form of a scored attempt.
type ResultMessage struct {
	SessionID  string    `json:"session_id"`
	Target     string    `json:"target"`
	Transcript string    `json:"transcript"`
	Accuracy   int       `json:"accuracy"`
	Confidence int       `json:"confidence"`
	Grade      string    `json:"grade"`
	Restarts   int       `json:"restarts"`
	Timed      bool      `json:"timed"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// Publisher sends attempt results to <prefix>.practice.result.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// NewPublisher returns a publisher bound to conn. An empty prefix uses
// DefaultPrefix.
func NewPublisher(conn *nats.Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{conn: conn, subject: prefix + ".practice.result"}
}

// Subject returns the result subject.
func (p *Publisher) Subject() string {
	return p.subject
}

// Publish sends r as a ResultMessage.
func (p *Publisher) Publish(ctx context.Context, r speech.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ResultMessage{
		SessionID:  r.SessionID,
		Target:     r.Target,
		Transcript: r.Transcript,
		Accuracy:   r.Accuracy,
		Confidence: r.Confidence,
		Grade:      r.Grade(),
		Restarts:   r.Restarts,
		Timed:      r.Timed,
		StartedAt:  r.StartedAt.UTC(),
		EndedAt:    r.EndedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}
