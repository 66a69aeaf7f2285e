package lesson

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuiltin(t *testing.T) {
	lessons, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	if len(lessons) < 5 {
		t.Fatalf("expected built-in lessons, got %d", len(lessons))
	}
	for _, l := range lessons {
		if l.Source != "" {
			t.Fatalf("built-in lesson %q has a source", l.ID)
		}
		if len(l.Sentences) == 0 {
			t.Fatalf("built-in lesson %q is empty", l.ID)
		}
	}
}

func TestLoadText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tongue twisters.txt")
	content := "# comment\nShe sells sea shells.\n\n  Red lorry, yellow lorry.  \n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	lessons, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(lessons) != 1 {
		t.Fatalf("expected one lesson, got %d", len(lessons))
	}
	l := lessons[0]
	if l.ID != "tongue twisters" || l.Source != path {
		t.Fatalf("unexpected lesson meta: %+v", l)
	}
	want := []string{"She sells sea shells.", "Red lorry, yellow lorry."}
	if strings.Join(l.Sentences, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected sentences: %q", l.Sentences)
	}
}

func TestLoadTextEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, []byte("\n# only a comment\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for empty lesson file")
	}
}

func TestLoadFromReaderValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", "", "no lessons"},
		{"missing id", "- title: x\n  sentences: [a]\n", "id is required"},
		{"duplicate", "- id: a\n  sentences: [x]\n- id: a\n  sentences: [y]\n", "duplicate id"},
		{"bad level", "- id: a\n  difficulty: expert\n  sentences: [x]\n", "difficulty"},
		{"blank sentences", "- id: a\n  sentences: ['  ']\n", "no sentences"},
		{"unknown field", "- id: a\n  sentence: [x]\n", "decode yaml"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCatalogMergesDir(t *testing.T) {
	dir := t.TempDir()
	yamlLesson := "- id: greetings\n  title: My Greetings\n  sentences: [Hi there.]\n- id: extra\n  title: Extra\n  difficulty: advanced\n  sentences: [One more.]\n"
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(yamlLesson), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	builtin, _ := Builtin()
	lessons, err := Catalog(dir)
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if len(lessons) != len(builtin)+1 {
		t.Fatalf("expected %d lessons, got %d", len(builtin)+1, len(lessons))
	}
	g, ok := Find(lessons, "greetings")
	if !ok || g.Title != "My Greetings" {
		t.Fatalf("expected overridden greetings, got %+v", g)
	}
	if _, ok := Find(lessons, "EXTRA"); !ok {
		t.Fatalf("expected title lookup to ignore case")
	}
}

func TestCatalogMissingDir(t *testing.T) {
	lessons, err := Catalog(filepath.Join(t.TempDir(), "missing"))
	if err != nil || len(lessons) == 0 {
		t.Fatalf("missing dir should yield built-ins: %d %v", len(lessons), err)
	}
}
