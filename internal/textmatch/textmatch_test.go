package textmatch

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"Hello, World!", "hello world"},
		{"  don’t   stop  ", "don't stop"},
		{"well-known — fact", "well known fact"},
		{"“Quoted” text…", "quoted text"},
		{"Room 101, please.", "room 101 please"},
		{"Café au lait", "café au lait"},
		{"---", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTokenizeEmpty(t *testing.T) {
	if got := Tokenize("  ,.!  "); len(got) != 0 {
		t.Fatalf("expected no tokens, got %v", got)
	}
	if got := Tokenize("a-b c"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected tokens: %v", got)
	}
}

func TestAlignMask(t *testing.T) {
	align := Align([]string{"a", "b", "c"}, []string{"a", "c"})
	if align.Length != 2 {
		t.Fatalf("expected length 2, got %d", align.Length)
	}
	mask := align.Mask(3)
	if !reflect.DeepEqual(mask, []bool{true, false, true}) {
		t.Fatalf("unexpected mask: %v", mask)
	}
	wantPairs := []Pair{{Target: 0, Spoken: 0}, {Target: 2, Spoken: 1}}
	if !reflect.DeepEqual(align.Pairs, wantPairs) {
		t.Fatalf("unexpected pairs: %v", align.Pairs)
	}
}

func TestAlignPrefersTargetOnTies(t *testing.T) {
	// Both "a" and "b" are single-word matches; the target side advances first,
	// so the spoken "b" pairs with target "b".
	align := Align([]string{"a", "b"}, []string{"b", "a"})
	if align.Length != 1 {
		t.Fatalf("expected length 1, got %d", align.Length)
	}
	if len(align.Pairs) != 1 || align.Pairs[0] != (Pair{Target: 1, Spoken: 0}) {
		t.Fatalf("unexpected pairs: %v", align.Pairs)
	}
}

func TestScoreProperties(t *testing.T) {
	sentences := []string{
		"Hello, how are you today?",
		"The weather is beautiful today.",
		"a",
		"I'd like a well-known coffee",
	}
	for _, s := range sentences {
		if got := Score(s, s); got != 100 {
			t.Fatalf("Score(%q, same) = %d, want 100", s, got)
		}
		if got := Score(s, ""); got != 0 {
			t.Fatalf("Score(%q, \"\") = %d, want 0", s, got)
		}
	}
	for _, spoken := range []string{"", "anything", "hello world"} {
		if got := Score("", spoken); got != 0 {
			t.Fatalf("Score(\"\", %q) = %d, want 0", spoken, got)
		}
	}
	if got := Score("Hello, World!", "hello world"); got != 100 {
		t.Fatalf("case/punctuation should not matter, got %d", got)
	}
	if Score("a b c", "c b a") >= Score("a b c", "a b c") {
		t.Fatalf("reordered words should score lower")
	}
	if got := Score("a b c", "a x b x c"); got != 100 {
		t.Fatalf("insertions should not reduce accuracy, got %d", got)
	}
}

func TestScoreRounding(t *testing.T) {
	cases := []struct {
		target string
		spoken string
		want   int
	}{
		{"one two three", "one", 33},
		{"one two three", "one three", 67},
		{"a b c d e f g h", "a b c d", 50},
		{"a b c d e f g h", "a c e g h", 63},
	}
	for _, tc := range cases {
		if got := Score(tc.target, tc.spoken); got != tc.want {
			t.Fatalf("Score(%q, %q) = %d, want %d", tc.target, tc.spoken, got, tc.want)
		}
	}
}

func TestMaskEmptySpoken(t *testing.T) {
	mask := Mask("nice to meet you", "")
	if !reflect.DeepEqual(mask, []bool{false, false, false, false}) {
		t.Fatalf("unexpected mask: %v", mask)
	}
	if got := Mask("", "words"); len(got) != 0 {
		t.Fatalf("expected empty mask, got %v", got)
	}
}

func TestGrade(t *testing.T) {
	cases := map[int]string{100: "excellent", 90: "excellent", 85: "great", 70: "good", 60: "fair", 59: "retry", 0: "retry"}
	for acc, want := range cases {
		if got := Grade(acc); got != want {
			t.Fatalf("Grade(%d) = %q, want %q", acc, got, want)
		}
	}
}
