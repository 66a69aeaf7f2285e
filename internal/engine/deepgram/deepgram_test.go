package deepgram

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/verte-zerg/tuispeak/internal/speech"
)

func TestParseResponse(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		ok   bool
		want Transcript
	}{
		{"final", `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello world","confidence":0.93}]}}`, true, Transcript{Text: "hello world", Final: true, Confidence: 0.93}},
		{"interim", `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel","confidence":0.5}]}}`, true, Transcript{Text: "hel", Confidence: 0.5}},
		{"empty transcript", `{"type":"Results","channel":{"alternatives":[{"transcript":""}]}}`, false, Transcript{}},
		{"metadata", `{"type":"Metadata"}`, false, Transcript{}},
		{"no alternatives", `{"type":"Results","channel":{"alternatives":[]}}`, false, Transcript{}},
		{"garbage", `not json`, false, Transcript{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseResponse([]byte(tc.msg))
			if ok != tc.ok || got != tc.want {
				t.Fatalf("ParseResponse = %+v, %v", got, ok)
			}
		})
	}
}

func TestBuildURL(t *testing.T) {
	e, err := New("key", "", WithModel("base"), WithLanguage("de"), WithSampleRate(8000))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	raw, err := e.buildURL()
	if err != nil {
		t.Fatalf("build url: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	q := u.Query()
	if q.Get("model") != "base" || q.Get("language") != "de" || q.Get("sample_rate") != "8000" || q.Get("interim_results") != "true" {
		t.Fatalf("unexpected query: %s", u.RawQuery)
	}
	if e.CaptureProgram() != "arecord" {
		t.Fatalf("unexpected capture program %q", e.CaptureProgram())
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New("", ""); !errors.Is(err, errEmptyKey) {
		t.Fatalf("expected errEmptyKey, got %v", err)
	}
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

func (r *recorder) OnStart() { r.add("start") }

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

// fakeDeepgram answers the first audio chunk with an interim and a final
// result and closes the stream on CloseStream.
func fakeDeepgram(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		ctx := r.Context()
		answered := false
		for {
			typ, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary && !answered {
				answered = true
				_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel"}]}}`))
				_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello world","confidence":0.9}]}}`))
			}
			if typ == websocket.MessageText && strings.Contains(string(msg), "CloseStream") {
				conn.Close(websocket.StatusNormalClosure, "done")
				return
			}
		}
	}))
}

func TestEngineStreamsToServer(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	srv := fakeDeepgram(t)
	defer srv.Close()

	script := filepath.Join(t.TempDir(), "capture.sh")
	if err := os.WriteFile(script, []byte("head -c 6400 /dev/zero\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")
	e, err := New("secret", "sh "+script,
		WithEndpoint(endpoint),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	rec := &recorder{done: make(chan struct{})}
	if err := e.Start(rec); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-rec.done:
	case <-time.After(10 * time.Second):
		t.Fatalf("stream never ended")
	}
	want := []string{"start", "interim:hel", "final:hello world", "end"}
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
}

func TestEngineDialFailureReportsNetwork(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	srv := fakeDeepgram(t)
	defer srv.Close()
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")
	e, err := New("wrong", "sh -c true",
		WithEndpoint(endpoint),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	rec := &recorder{done: make(chan struct{})}
	if err := e.Start(rec); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-rec.done:
	case <-time.After(10 * time.Second):
		t.Fatalf("stream never ended")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 2 || rec.events[0] != "error:network" || rec.events[1] != "end" {
		t.Fatalf("unexpected events: %v", rec.events)
	}
}

func TestEngineMissingCapture(t *testing.T) {
	e, err := New("key", "tuispeak-no-such-capture -q")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := e.Start(&recorder{done: make(chan struct{})}); !errors.Is(err, speech.ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
