package speech

import (
	"strings"
	"testing"
	"time"
)

func TestTimerDuration(t *testing.T) {
	cases := []struct {
		target string
		want   int
	}{
		{"", 8},
		{"hello", 8},
		{"a b c d", 10},
		{"please pass the salt and pepper", 13},
		{"a well-known fact", 10},
		{"... !", 8},
		{strings.Repeat("word ", 10), 19},
		{strings.Repeat("word ", 40), 25},
	}
	for _, tc := range cases {
		if got := TimerDuration(tc.target); got != tc.want {
			t.Fatalf("TimerDuration(%q) = %d, want %d", tc.target, got, tc.want)
		}
	}
}

func TestRestartDelay(t *testing.T) {
	cfg := DefaultConfig()
	cases := map[int]time.Duration{
		1:  400 * time.Millisecond,
		3:  600 * time.Millisecond,
		7:  time.Second,
		20: time.Second,
	}
	for n, want := range cases {
		if got := cfg.restartDelay(n); got != want {
			t.Fatalf("restartDelay(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestSilenceTimeout(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.silenceTimeout("hi there"); got != 3*time.Second {
		t.Fatalf("short sentence: got %v", got)
	}
	if got := cfg.silenceTimeout(strings.Repeat("w ", 8)); got != 4800*time.Millisecond {
		t.Fatalf("medium sentence: got %v", got)
	}
	if got := cfg.silenceTimeout("state-of-the-art well-known co-op"); got != 4800*time.Millisecond {
		t.Fatalf("hyphenated sentence: got %v", got)
	}
	if got := cfg.silenceTimeout(strings.Repeat("w ", 30)); got != 10*time.Second {
		t.Fatalf("long sentence: got %v", got)
	}
}
