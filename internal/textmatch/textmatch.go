// Package textmatch scores a spoken transcript against a target sentence.
//
// Both strings are normalized into word tokens and aligned with a longest
// common subsequence, so words spoken in the right relative order count and
// reordered or missing words do not. Accuracy is always relative to the
// number of target words.
package textmatch

import (
	"math"
	"strings"
	"unicode"
)

var asciiFold = strings.NewReplacer(
	"‘", "'", "’", "'", "‛", "'", "′", "'",
	"“", `"`, "”", `"`, "„", `"`,
	"‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "−", "-",
)

// Normalize folds typographic quotes and dashes, lowercases, and reduces the
// text to space-separated words made of letters, digits, and apostrophes.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	s := strings.ToLower(asciiFold.Replace(text))
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		// Hyphens separate tokens like any other non-word rune.
		pendingSpace = true
	}
	return b.String()
}

// Tokenize returns the normalized words of text. Empty input yields nil.
func Tokenize(text string) []string {
	n := Normalize(text)
	if n == "" {
		return nil
	}
	return strings.Split(n, " ")
}

// Pair links a target token index to the spoken token index it matched.
type Pair struct {
	Target int
	Spoken int
}

// Alignment is the longest common subsequence of two token sequences.
type Alignment struct {
	Length int
	Pairs  []Pair
}

// Align computes the LCS of target and spoken. The table is filled from the
// end of both sequences; reconstruction walks forward and advances the target
// side on ties.
func Align(target, spoken []string) Alignment {
	n, m := len(target), len(spoken)
	if n == 0 || m == 0 {
		return Alignment{}
	}
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if target[i] == spoken[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else {
				dp[i][j] = max(dp[i+1][j], dp[i][j+1])
			}
		}
	}

	pairs := make([]Pair, 0, dp[0][0])
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case target[i] == spoken[j]:
			pairs = append(pairs, Pair{Target: i, Spoken: j})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return Alignment{Length: dp[0][0], Pairs: pairs}
}

// Mask returns a slice of length n that is true at every target index taking
// part in the alignment.
func (a Alignment) Mask(n int) []bool {
	mask := make([]bool, n)
	for _, p := range a.Pairs {
		if p.Target >= 0 && p.Target < n {
			mask[p.Target] = true
		}
	}
	return mask
}

// Score returns round(100 * matched / len(target words)). An empty target
// scores 0.
func Score(target, spoken string) int {
	t := Tokenize(target)
	if len(t) == 0 {
		return 0
	}
	return accuracy(Align(t, Tokenize(spoken)).Length, len(t))
}

// Mask reports, per target word, whether it was matched by the spoken text.
func Mask(target, spoken string) []bool {
	t := Tokenize(target)
	return Align(t, Tokenize(spoken)).Mask(len(t))
}

func accuracy(matched, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(matched) / float64(total)))
}

// Grade buckets an accuracy score for display.
func Grade(accuracy int) string {
	switch {
	case accuracy >= 90:
		return "excellent"
	case accuracy >= 80:
		return "great"
	case accuracy >= 70:
		return "good"
	case accuracy >= 60:
		return "fair"
	default:
		return "retry"
	}
}
