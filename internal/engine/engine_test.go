package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/verte-zerg/tuispeak/internal/speech"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildKinds(t *testing.T) {
	b, err := Build(Settings{}, quietLogger())
	if err != nil || b.Manual == nil || b.Permissions != nil {
		t.Fatalf("default build should be manual: %+v %v", b, err)
	}
	b.Close()

	b, err = Build(Settings{Kind: "EXEC", Command: "sh -c true"}, quietLogger())
	if err != nil || b.Manual != nil || b.Permissions == nil {
		t.Fatalf("unexpected exec build: %+v %v", b, err)
	}

	if _, err := Build(Settings{Kind: "exec"}, quietLogger()); err == nil {
		t.Fatalf("exec without command should fail")
	}
	t.Setenv(deepgramKeyEnv, "")
	if _, err := Build(Settings{Kind: "deepgram"}, quietLogger()); err == nil {
		t.Fatalf("deepgram without key should fail")
	}
	t.Setenv(deepgramKeyEnv, "from-env")
	if _, err := Build(Settings{Kind: "deepgram"}, quietLogger()); err != nil {
		t.Fatalf("deepgram key from env: %v", err)
	}
	if _, err := Build(Settings{Kind: "telepathy"}, quietLogger()); err == nil {
		t.Fatalf("unknown kind should fail")
	}
}

func TestCommandPermissions(t *testing.T) {
	ctx := context.Background()
	ok := CommandPermissions{Program: "sh"}
	if perm, err := ok.Request(ctx); err != nil || perm != speech.PermissionGranted {
		t.Fatalf("sh should be granted: %v %v", perm, err)
	}
	missing := CommandPermissions{Program: "tuispeak-no-such-capture", Missing: speech.ErrNoDevice}
	if perm, _ := missing.Query(ctx); perm != speech.PermissionUnknown {
		t.Fatalf("missing program should be unknown, got %v", perm)
	}
	_, err := missing.Request(ctx)
	if !errors.Is(err, speech.ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
	if speech.KindFromError(err) != speech.KindAudioCapture {
		t.Fatalf("unexpected kind for %v", err)
	}
}

func TestConnPermissionsWithoutConnection(t *testing.T) {
	_, err := ConnPermissions{}.Request(context.Background())
	if !errors.Is(err, speech.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
