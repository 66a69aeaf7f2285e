// Package engine builds the configured speech recognizer.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/verte-zerg/tuispeak/internal/engine/deepgram"
	"github.com/verte-zerg/tuispeak/internal/engine/execstt"
	"github.com/verte-zerg/tuispeak/internal/engine/manual"
	"github.com/verte-zerg/tuispeak/internal/engine/natsbus"
	"github.com/verte-zerg/tuispeak/internal/speech"
)

const (
	KindManual   = "manual"
	KindExec     = "exec"
	KindDeepgram = "deepgram"
	KindNats     = "nats"

	deepgramKeyEnv = "DEEPGRAM_API_KEY"
)

// Kinds lists the supported engine kinds.
var Kinds = []string{KindManual, KindExec, KindDeepgram, KindNats}

// Settings selects and configures an engine.
type Settings struct {
	Kind           string
	Command        string
	CaptureCommand string
	DeepgramKey    string
	DeepgramModel  string
	Language       string
	NatsURL        string
	NatsPrefix     string
}

// Built is a ready engine plus the collaborators that come with it.
type Built struct {
	Engine      speech.Engine
	Permissions speech.Permissions
	// Manual is set for the manual engine so the UI can push typed text.
	Manual *manual.Engine
	// Publisher is set for the nats engine.
	Publisher *natsbus.Publisher
	close     func()
}

// Close releases connections held by the engine.
func (b Built) Close() {
	if b.close != nil {
		b.close()
	}
}

// Build constructs the engine named by s.Kind. An empty kind picks manual.
func Build(s Settings, log *slog.Logger) (Built, error) {
	switch strings.ToLower(strings.TrimSpace(s.Kind)) {
	case "", KindManual:
		m := manual.New()
		return Built{Engine: m, Manual: m}, nil
	case KindExec:
		e, err := execstt.New(s.Command, execstt.WithLogger(log))
		if err != nil {
			return Built{}, err
		}
		return Built{Engine: e, Permissions: CommandPermissions{Program: e.Program(), Missing: speech.ErrUnsupported}}, nil
	case KindDeepgram:
		key := s.DeepgramKey
		if key == "" {
			key = os.Getenv(deepgramKeyEnv)
		}
		opts := []deepgram.Option{deepgram.WithLogger(log)}
		if s.DeepgramModel != "" {
			opts = append(opts, deepgram.WithModel(s.DeepgramModel))
		}
		if s.Language != "" {
			opts = append(opts, deepgram.WithLanguage(s.Language))
		}
		e, err := deepgram.New(key, s.CaptureCommand, opts...)
		if err != nil {
			return Built{}, err
		}
		return Built{Engine: e, Permissions: CommandPermissions{Program: e.CaptureProgram(), Missing: speech.ErrNoDevice}}, nil
	case KindNats:
		url := s.NatsURL
		if url == "" {
			url = nats.DefaultURL
		}
		conn, err := natsbus.Connect(url, log)
		if err != nil {
			return Built{}, err
		}
		return Built{
			Engine:      natsbus.New(conn, s.NatsPrefix, log),
			Permissions: ConnPermissions{Conn: conn},
			Publisher:   natsbus.NewPublisher(conn, s.NatsPrefix),
			close: func() {
				_ = conn.Drain()
			},
		}, nil
	default:
		return Built{}, fmt.Errorf("unknown engine kind %q (valid: %s)", s.Kind, strings.Join(Kinds, ", "))
	}
}

// CommandPermissions treats an installed program as granted access. A
// missing program fails the request with Missing.
type CommandPermissions struct {
	Program string
	Missing error
}

func (p CommandPermissions) Query(context.Context) (speech.Permission, error) {
	if _, err := exec.LookPath(p.Program); err != nil {
		return speech.PermissionUnknown, nil
	}
	return speech.PermissionGranted, nil
}

func (p CommandPermissions) Request(ctx context.Context) (speech.Permission, error) {
	if perm, _ := p.Query(ctx); perm == speech.PermissionGranted {
		return perm, nil
	}
	missing := p.Missing
	if missing == nil {
		missing = speech.ErrUnsupported
	}
	return speech.PermissionDenied, fmt.Errorf("%w: %s not found in PATH", missing, p.Program)
}

// ConnPermissions grants access while the bus connection is up.
type ConnPermissions struct {
	Conn *nats.Conn
}

func (p ConnPermissions) Query(context.Context) (speech.Permission, error) {
	if p.Conn != nil && p.Conn.IsConnected() {
		return speech.PermissionGranted, nil
	}
	return speech.PermissionUnknown, nil
}

func (p ConnPermissions) Request(ctx context.Context) (speech.Permission, error) {
	if perm, _ := p.Query(ctx); perm == speech.PermissionGranted {
		return perm, nil
	}
	return speech.PermissionDenied, fmt.Errorf("%w: nats connection is down", speech.ErrUnsupported)
}
