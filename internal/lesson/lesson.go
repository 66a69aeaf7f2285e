// Package lesson loads practice sentences from the built-in catalog and from
// user lesson files.
package lesson

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed builtin.yaml
var builtinYAML string

// Difficulty is the lesson level.
type Difficulty string

const (
	Beginner     Difficulty = "beginner"
	Intermediate Difficulty = "intermediate"
	Advanced     Difficulty = "advanced"
)

// IsValid reports whether d is a known level. Empty is allowed.
func (d Difficulty) IsValid() bool {
	switch d {
	case "", Beginner, Intermediate, Advanced:
		return true
	}
	return false
}

// Lesson is a titled set of sentences to read aloud.
type Lesson struct {
	ID         string     `yaml:"id"`
	Title      string     `yaml:"title"`
	Difficulty Difficulty `yaml:"difficulty"`
	Sentences  []string   `yaml:"sentences"`
	// Source is the file the lesson came from, empty for built-ins.
	Source string `yaml:"-"`
}

// Builtin returns the embedded lessons.
func Builtin() ([]Lesson, error) {
	lessons, err := LoadFromReader(strings.NewReader(builtinYAML))
	if err != nil {
		return nil, fmt.Errorf("lesson: builtin: %w", err)
	}
	return lessons, nil
}

// Load reads a lesson file. YAML files (.yaml, .yml) hold a list of lessons;
// any other file is plain text with one sentence per line and becomes a
// single lesson named after the file.
func Load(path string) ([]Lesson, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lesson: open %q: %w", path, err)
	}
	defer f.Close()

	var lessons []Lesson
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		lessons, err = LoadFromReader(f)
	default:
		var l Lesson
		l, err = loadText(f, path)
		lessons = []Lesson{l}
	}
	if err != nil {
		return nil, fmt.Errorf("lesson: parse %q: %w", path, err)
	}
	for i := range lessons {
		lessons[i].Source = path
	}
	return lessons, nil
}

// LoadFromReader decodes a YAML list of lessons from r and validates it.
func LoadFromReader(r io.Reader) ([]Lesson, error) {
	var lessons []Lesson
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&lessons); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no lessons defined")
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	for i := range lessons {
		lessons[i].Sentences = cleanSentences(lessons[i].Sentences)
	}
	if err := Validate(lessons); err != nil {
		return nil, err
	}
	return lessons, nil
}

func loadText(r io.Reader, path string) (Lesson, error) {
	var sentences []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sentences = append(sentences, line)
	}
	if err := scanner.Err(); err != nil {
		return Lesson{}, err
	}
	if len(sentences) == 0 {
		return Lesson{}, errors.New("lesson file is empty")
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Lesson{ID: name, Title: name, Sentences: sentences}, nil
}

func cleanSentences(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks ids, levels, and sentences. It returns all failures joined.
func Validate(lessons []Lesson) error {
	var errs []error
	if len(lessons) == 0 {
		errs = append(errs, errors.New("no lessons defined"))
	}
	seen := make(map[string]bool, len(lessons))
	for i, l := range lessons {
		if strings.TrimSpace(l.ID) == "" {
			errs = append(errs, fmt.Errorf("lessons[%d]: id is required", i))
		} else if seen[l.ID] {
			errs = append(errs, fmt.Errorf("lessons[%d]: duplicate id %q", i, l.ID))
		}
		seen[l.ID] = true
		if !l.Difficulty.IsValid() {
			errs = append(errs, fmt.Errorf("lessons[%d]: difficulty %q is invalid; valid values: beginner, intermediate, advanced", i, l.Difficulty))
		}
		if len(l.Sentences) == 0 {
			errs = append(errs, fmt.Errorf("lessons[%d]: no sentences", i))
		}
	}
	return errors.Join(errs...)
}

// Catalog returns the built-in lessons followed by every lesson file in dir,
// sorted by file name. A missing dir is not an error. Lessons from files
// replace built-ins with the same id.
func Catalog(dir string) ([]Lesson, error) {
	lessons, err := Builtin()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return lessons, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return lessons, nil
		}
		return nil, fmt.Errorf("lesson: read dir %q: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".txt":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		loaded, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		lessons = Merge(lessons, loaded)
	}
	return lessons, nil
}

// Merge appends extra to base, replacing lessons that share an id.
func Merge(base, extra []Lesson) []Lesson {
	out := append([]Lesson(nil), base...)
	for _, l := range extra {
		replaced := false
		for i := range out {
			if out[i].ID == l.ID {
				out[i] = l
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, l)
		}
	}
	return out
}

// Find looks a lesson up by id, or by title ignoring case.
func Find(lessons []Lesson, key string) (Lesson, bool) {
	key = strings.TrimSpace(key)
	for _, l := range lessons {
		if l.ID == key {
			return l, true
		}
	}
	for _, l := range lessons {
		if strings.EqualFold(l.Title, key) {
			return l, true
		}
	}
	return Lesson{}, false
}
