package speech

import "testing"

func TestTranscriptDedup(t *testing.T) {
	var tr transcript
	if !tr.appendFinal("good morning", 0) {
		t.Fatalf("first segment should be appended")
	}
	if tr.appendFinal("Good Morning", 0) {
		t.Fatalf("repeated tail should be skipped")
	}
	if tr.appendFinal("morning", 0) {
		t.Fatalf("repeated last word should be skipped")
	}
	if !tr.appendFinal("everyone", 0) {
		t.Fatalf("new words should be appended")
	}
	if !tr.appendFinal("good morning", 0) {
		t.Fatalf("non-tail repeat should be appended")
	}
	if got := tr.display(); got != "good morning everyone good morning" {
		t.Fatalf("unexpected transcript %q", got)
	}
	if tr.appendFinal("   ", 0) {
		t.Fatalf("blank segment should be skipped")
	}
}

func TestTranscriptSnapshot(t *testing.T) {
	var tr transcript
	tr.setInterim("hel")
	if got := tr.display(); got != "hel" {
		t.Fatalf("unexpected display %q", got)
	}
	tr.appendFinal("hello", 0)
	tr.setInterim("wor")
	if got := tr.snapshot(); got != "hello wor" {
		t.Fatalf("unexpected snapshot %q", got)
	}
	if tr.interim != "" {
		t.Fatalf("interim should be cleared")
	}
	tr.reset()
	if !tr.empty() || tr.snapshot() != "" {
		t.Fatalf("reset should clear everything")
	}
}

func TestTranscriptConfidence(t *testing.T) {
	var tr transcript
	if got := tr.confidence(); got != defaultConfidence {
		t.Fatalf("expected default confidence, got %d", got)
	}
	tr.appendFinal("one", 0.5)
	tr.appendFinal("two", 0.75)
	tr.appendFinal("three", 0)
	if got := tr.confidence(); got != 63 {
		t.Fatalf("expected 63, got %d", got)
	}
}
