package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"

	"github.com/verte-zerg/tuispeak/internal/config"
	"github.com/verte-zerg/tuispeak/internal/lesson"
	"github.com/verte-zerg/tuispeak/internal/model"
)

func TestValidateConfig(t *testing.T) {
	valid := model.Config{Lesson: "greetings", Order: model.OrderSequential}
	cases := []struct {
		name    string
		mutate  func(*model.Config)
		wantErr string
	}{
		{name: "ok", mutate: func(*model.Config) {}},
		{name: "bad order", mutate: func(c *model.Config) { c.Order = "random" }, wantErr: "--order"},
		{name: "no lesson", mutate: func(c *model.Config) { c.Lesson = " " }, wantErr: "--lesson"},
		{name: "lesson file only", mutate: func(c *model.Config) { c.Lesson = ""; c.LessonFile = "x.txt" }},
		{name: "negative top", mutate: func(c *model.Config) { c.WeakTop = -1 }, wantErr: "--weak-top"},
		{name: "negative factor", mutate: func(c *model.Config) { c.WeakFactor = -1 }, wantErr: "--weak-factor"},
		{name: "negative window", mutate: func(c *model.Config) { c.WeakWindow = -1 }, wantErr: "--weak-window"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := validateConfig(cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigTemplateDecodes(t *testing.T) {
	var cfg config.FileConfig
	if _, err := toml.Decode(defaultConfigTemplate(), &cfg); err != nil {
		t.Fatalf("template does not decode: %v", err)
	}
	if cfg.Practice.Lesson != nil || cfg.Engine.Kind != nil {
		t.Fatalf("template values should all be commented out: %+v", cfg)
	}
	for _, section := range []string{"[practice]", "[session]", "[engine]", "[metrics]"} {
		if !strings.Contains(defaultConfigTemplate(), section) {
			t.Fatalf("template missing %s", section)
		}
	}
}

func TestWriteScore(t *testing.T) {
	var buf bytes.Buffer
	if err := writeScore(&buf, "The cat runs.", "the cat"); err != nil {
		t.Fatalf("writeScore: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Accuracy: 67% (fair)", "Matched: 2  Near: 0  Missed: 1", "runs", "missed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("score output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteLessons(t *testing.T) {
	lessons := []lesson.Lesson{
		{ID: "greetings", Title: "Greetings", Difficulty: lesson.Beginner, Sentences: []string{"Hi.", "Hello."}},
		{ID: "mine", Title: "Mine", Sentences: []string{"One."}, Source: "/tmp/mine.txt"},
	}
	var buf bytes.Buffer
	if err := writeLessons(&buf, lessons); err != nil {
		t.Fatalf("writeLessons: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "ID") {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
	if !strings.Contains(lines[1], "built-in") || !strings.Contains(lines[2], "/tmp/mine.txt") {
		t.Fatalf("unexpected sources:\n%s", buf.String())
	}
}

func TestResolveLessonFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drills.txt")
	if err := os.WriteFile(path, []byte("# warmup\nRed lorry, yellow lorry.\n\nShe sells sea shells.\n"), 0o644); err != nil {
		t.Fatalf("write lesson: %v", err)
	}
	l, err := resolveLesson(model.Config{LessonFile: path})
	if err != nil {
		t.Fatalf("resolveLesson: %v", err)
	}
	if len(l.Sentences) != 2 || l.Sentences[1] != "She sells sea shells." {
		t.Fatalf("unexpected lesson: %+v", l)
	}
}

func TestResolveLessonUnknown(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	if _, err := resolveLesson(model.Config{Lesson: "no-such-lesson"}); err == nil {
		t.Fatalf("expected unknown lesson error")
	}
	l, err := resolveLesson(model.Config{Lesson: "basic greetings"})
	if err != nil || l.ID != "greetings" {
		t.Fatalf("expected built-in lesson by title, got %+v %v", l, err)
	}
}
