package natsbus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/verte-zerg/tuispeak/internal/speech"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatalf("nats server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns
}

func connect(t *testing.T, ns *server.Server) *nats.Conn {
	t.Helper()
	conn, err := Connect(ns.ClientURL(), quietLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(conn.Close)
	return conn
}

type recorder struct {
	mu     sync.Mutex
	events []string
	done   chan struct{}
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) OnStart() {}

func (r *recorder) OnResult(text string, isFinal bool, _ float64) {
	if isFinal {
		r.add("final:" + text)
		return
	}
	r.add("interim:" + text)
}

func (r *recorder) OnError(kind speech.ErrorKind) { r.add("error:" + kind.String()) }

func (r *recorder) OnEnd() {
	r.add("end")
	close(r.done)
}

func publish(t *testing.T, conn *nats.Conn, subject string, tr Transcript) {
	t.Helper()
	data, err := json.Marshal(tr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.Publish(subject, data); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestEngineFollowsSession(t *testing.T) {
	ns := startServer(t)
	engineConn := connect(t, ns)
	svc := connect(t, ns)

	starts, err := svc.SubscribeSync(DefaultPrefix + ".capture.start")
	if err != nil {
		t.Fatalf("subscribe control: %v", err)
	}
	if err := svc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	e := New(engineConn, "", quietLogger())
	rec := &recorder{done: make(chan struct{})}
	if err := e.Start(rec); err != nil {
		t.Fatalf("start: %v", err)
	}
	msg, err := starts.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("no start announcement: %v", err)
	}
	var ctl Control
	if err := json.Unmarshal(msg.Data, &ctl); err != nil || ctl.Action != "start" || ctl.SessionID == "" {
		t.Fatalf("unexpected control message %s: %v", msg.Data, err)
	}

	publish(t, svc, SubjectTranscriptPartial, Transcript{SessionID: "other", Text: "ignored", Partial: true})
	publish(t, svc, SubjectTranscriptPartial, Transcript{SessionID: ctl.SessionID, Text: "hel", Partial: true})
	publish(t, svc, SubjectTranscriptError, Transcript{SessionID: ctl.SessionID, Error: "no-speech"})
	publish(t, svc, SubjectTranscriptFinal, Transcript{SessionID: ctl.SessionID, Text: "hello world", Confidence: 0.8})
	publish(t, svc, SubjectTranscriptFinal, Transcript{SessionID: ctl.SessionID, Text: "late"})

	select {
	case <-rec.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("run never ended")
	}
	time.Sleep(50 * time.Millisecond)
	want := []string{"interim:hel", "error:no-speech", "final:hello world", "end"}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != len(want) {
		t.Fatalf("unexpected events: %v", rec.events)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Fatalf("unexpected events: %v", rec.events)
		}
	}
	if err := e.Stop(); err != nil {
		t.Fatalf("stop after end: %v", err)
	}
}

func TestPublisher(t *testing.T) {
	ns := startServer(t)
	conn := connect(t, ns)
	p := NewPublisher(conn, "lab")
	sub, err := conn.SubscribeSync(p.Subject())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r := speech.Result{
		SessionID:  "abc",
		Target:     "good morning",
		Transcript: "good morning",
		Accuracy:   100,
		Confidence: 85,
		StartedAt:  started,
		EndedAt:    started.Add(3 * time.Second),
	}
	if err := p.Publish(context.Background(), r); err != nil {
		t.Fatalf("publish: %v", err)
	}
	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("next msg: %v", err)
	}
	var got ResultMessage
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Subject() != "lab.practice.result" || got.SessionID != "abc" || got.Grade != "excellent" || !got.EndedAt.Equal(r.EndedAt) {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestStartRequiresConnection(t *testing.T) {
	if err := New(nil, "", quietLogger()).Start(&recorder{done: make(chan struct{})}); err == nil {
		t.Fatalf("expected error without connection")
	}
}
