// Package deepgram streams microphone audio to the Deepgram live
// transcription API. Audio comes from a capture command that writes raw
// 16-bit little-endian mono PCM to stdout, such as arecord or sox.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/tuispeak/internal/engine/execstt"
	"github.com/verte-zerg/tuispeak/internal/speech"
)

const (
	defaultEndpoint       = "wss://api.deepgram.com/v1/listen"
	defaultModel          = "nova-3"
	defaultLanguage       = "en"
	defaultSampleRate     = 16000
	DefaultCaptureCommand = "arecord -q -f S16_LE -r 16000 -c 1 -t raw"

	dialTimeout = 10 * time.Second
	// chunkBytes is 100ms of 16kHz mono 16-bit audio.
	chunkBytes = 3200
)

var errEmptyKey = errors.New("deepgram: api key must not be empty")

type Option func(*Engine)

func WithModel(model string) Option {
	return func(e *Engine) { e.model = model }
}

func WithLanguage(language string) Option {
	return func(e *Engine) { e.language = language }
}

func WithSampleRate(rate int) Option {
	return func(e *Engine) { e.sampleRate = rate }
}

// WithEndpoint overrides the streaming endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(e *Engine) { e.endpoint = endpoint }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine implements speech.Engine on top of Deepgram streaming.
type Engine struct {
	apiKey     string
	model      string
	language   string
	sampleRate int
	endpoint   string
	capture    []string
	log        *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New returns an engine that captures audio with captureCommand. An empty
// captureCommand uses arecord.
func New(apiKey, captureCommand string, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, errEmptyKey
	}
	if captureCommand == "" {
		captureCommand = DefaultCaptureCommand
	}
	capture, err := execstt.ParseCommand(captureCommand)
	if err != nil {
		return nil, fmt.Errorf("deepgram: capture command: %w", err)
	}
	e := &Engine{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		endpoint:   defaultEndpoint,
		capture:    capture,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// CaptureProgram returns the capture executable name.
func (e *Engine) CaptureProgram() string {
	return e.capture[0]
}

// Start dials Deepgram and starts capture in the background. Connection and
// capture failures are reported through the listener.
func (e *Engine) Start(l speech.Listener) error {
	if _, err := exec.LookPath(e.capture[0]); err != nil {
		return fmt.Errorf("%w: %v", speech.ErrNoDevice, err)
	}
	wsURL, err := e.buildURL()
	if err != nil {
		return fmt.Errorf("deepgram: build URL: %w", err)
	}
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	go func() {
		defer cancel()
		if kind, err := e.stream(ctx, wsURL, l); err != nil && ctx.Err() == nil {
			e.log.Warn("deepgram stream failed", "error", err, "kind", kind.String())
			l.OnError(kind)
		}
		l.OnEnd()
	}()
	return nil
}

func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	return nil
}

func (e *Engine) stream(ctx context.Context, wsURL string, l speech.Listener) (speech.ErrorKind, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Token "+e.apiKey)
	dialCtx, cancelDial := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	cancelDial()
	if err != nil {
		return speech.KindNetwork, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "session closed")

	// Capture stops as soon as either side of the stream is done.
	captureCtx, stopCapture := context.WithCancel(ctx)
	defer stopCapture()
	cmd := exec.CommandContext(captureCtx, e.capture[0], e.capture[1:]...)
	audio, err := cmd.StdoutPipe()
	if err != nil {
		return speech.KindAudioCapture, fmt.Errorf("deepgram: capture stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return speech.KindAudioCapture, fmt.Errorf("deepgram: start capture: %w", err)
	}
	defer func() { _ = cmd.Wait() }()
	l.OnStart()
	e.log.Debug("deepgram stream open", "model", e.model, "language", e.language, "capture", e.capture[0])

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return writeLoop(gctx, captureCtx, conn, audio) })
	g.Go(func() error {
		defer stopCapture()
		return readLoop(gctx, conn, l)
	})
	if err := g.Wait(); err != nil {
		return speech.KindNetwork, err
	}
	return speech.KindUnknown, nil
}

// writeLoop forwards captured PCM and asks Deepgram to flush once capture
// ends.
func writeLoop(ctx, capture context.Context, conn *websocket.Conn, audio io.Reader) error {
	buf := make([]byte, chunkBytes)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if werr := conn.Write(ctx, websocket.MessageBinary, buf[:n]); werr != nil {
				return fmt.Errorf("deepgram: send audio: %w", werr)
			}
		}
		if capture.Err() != nil {
			return nil
		}
		if errors.Is(err, io.EOF) {
			return conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		}
		if err != nil {
			return fmt.Errorf("deepgram: read capture: %w", err)
		}
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, l speech.Listener) error {
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("deepgram: read: %w", err)
		}
		res, ok := ParseResponse(msg)
		if !ok {
			continue
		}
		l.OnResult(res.Text, res.Final, res.Confidence)
	}
}

func (e *Engine) buildURL() (string, error) {
	u, err := url.Parse(e.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", e.model)
	q.Set("language", e.language)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("channels", "1")
	q.Set("sample_rate", strconv.Itoa(e.sampleRate))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Transcript is one decoded Results message.
type Transcript struct {
	Text       string
	Final      bool
	Confidence float64
}

type response struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// ParseResponse decodes a Deepgram message. Non-result messages and empty
// transcripts are skipped.
func ParseResponse(data []byte) (Transcript, bool) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Transcript{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return Transcript{}, false
	}
	alt := resp.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return Transcript{}, false
	}
	return Transcript{Text: alt.Transcript, Final: resp.IsFinal, Confidence: alt.Confidence}, true
}
