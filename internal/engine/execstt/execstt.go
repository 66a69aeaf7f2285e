// Package execstt runs an external recognizer command and reads its output.
//
// The command prints one message per line on stdout. A line is either a JSON
// object such as {"text":"hello","final":true,"confidence":0.92} or
// {"error":"network"}, or plain text, which counts as a final segment. The
// run ends when the process exits.
package execstt

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/verte-zerg/tuispeak/internal/speech"
)

const waitDelay = 2 * time.Second

// Message is one decoded stdout line.
type Message struct {
	Text       string  `json:"text"`
	Final      bool    `json:"final"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error"`
}

// Engine runs one recognizer process per run.
type Engine struct {
	args []string
	env  []string
	log  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	run    int
}

// Option configures an Engine.
type Option func(*Engine)

// WithEnv appends KEY=VALUE pairs to the command environment.
func WithEnv(env ...string) Option {
	return func(e *Engine) { e.env = append(e.env, env...) }
}

// WithLogger sets the logger for process lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New parses command with shell quoting rules.
func New(command string, opts ...Option) (*Engine, error) {
	args, err := ParseCommand(command)
	if err != nil {
		return nil, err
	}
	e := &Engine{args: args, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ParseCommand splits a command line into arguments.
func ParseCommand(command string) ([]string, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse recognizer command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("recognizer command is empty")
	}
	return args, nil
}

// Program returns the executable name.
func (e *Engine) Program() string {
	return e.args[0]
}

// Start launches the command and streams its stdout to l.
func (e *Engine) Start(l speech.Listener) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, e.args[0], e.args[1:]...)
	cmd.WaitDelay = waitDelay
	if len(e.env) > 0 {
		cmd.Env = append(cmd.Environ(), e.env...)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("recognizer stdout: %w", err)
	}
	stderr := &tailBuffer{limit: 2048}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		cancel()
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %v", speech.ErrUnsupported, err)
		}
		return fmt.Errorf("start recognizer: %w", err)
	}
	e.cancel = cancel
	e.run++
	run := e.run
	e.log.Debug("recognizer started", "program", e.args[0], "pid", cmd.Process.Pid, "run", run)

	go func() {
		l.OnStart()
		e.pump(stdout, l)
		err := cmd.Wait()
		if ctx.Err() == nil && err != nil {
			e.log.Warn("recognizer exited", "program", e.args[0], "run", run, "error", err, "stderr", stderr.String())
		}
		e.mu.Lock()
		if e.run == run {
			e.cancel = nil
		}
		e.mu.Unlock()
		cancel()
		l.OnEnd()
	}()
	return nil
}

func (e *Engine) pump(r io.Reader, l speech.Listener) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		msg, ok := ParseLine(scanner.Text())
		if !ok {
			continue
		}
		if msg.Error != "" {
			l.OnError(speech.ParseErrorKind(msg.Error))
			continue
		}
		l.OnResult(msg.Text, msg.Final, msg.Confidence)
	}
	if err := scanner.Err(); err != nil {
		e.log.Warn("recognizer output unreadable", "error", err)
	}
}

// Stop kills the running recognizer, if any.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel == nil {
		return nil
	}
	e.cancel()
	e.cancel = nil
	return nil
}

// ParseLine decodes one output line. Blank lines and malformed JSON are
// skipped.
func ParseLine(line string) (Message, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Message{}, false
	}
	if !strings.HasPrefix(line, "{") {
		return Message{Text: line, Final: true}, true
	}
	var msg Message
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return Message{}, false
	}
	if msg.Error == "" && strings.TrimSpace(msg.Text) == "" {
		return Message{}, false
	}
	return msg, true
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.limit {
		b.buf = b.buf[len(b.buf)-b.limit:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
