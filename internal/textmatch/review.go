package textmatch

import (
	"github.com/antzucaro/matchr"
)

// WordStatus classifies one target word after alignment.
type WordStatus int

const (
	WordMissed WordStatus = iota
	WordMatched
	WordNear
)

func (s WordStatus) String() string {
	switch s {
	case WordMatched:
		return "matched"
	case WordNear:
		return "near"
	default:
		return "missed"
	}
}

// defaultNearThreshold is the minimum Jaro-Winkler similarity for a
// phonetically overlapping word to count as a near miss.
const defaultNearThreshold = 0.80

// WordResult is the review of a single target word.
type WordResult struct {
	Word   string
	Status WordStatus
	// Heard is the spoken token aligned with or closest to Word. Empty when
	// nothing was heard in that position.
	Heard string
}

// Review aligns target and spoken and labels every target word. Words that
// were not matched exactly are compared against the unmatched spoken words in
// the same gap of the alignment; a Double Metaphone overlap plus a high
// Jaro-Winkler similarity marks the word as a near miss.
func Review(target, spoken string) []WordResult {
	t := Tokenize(target)
	s := Tokenize(spoken)
	out := make([]WordResult, len(t))
	for i, w := range t {
		out[i] = WordResult{Word: w, Status: WordMissed}
	}
	if len(t) == 0 {
		return out
	}
	align := Align(t, s)

	// Sentinels bracket the gaps before the first and after the last pair.
	pairs := make([]Pair, 0, len(align.Pairs)+2)
	pairs = append(pairs, Pair{Target: -1, Spoken: -1})
	pairs = append(pairs, align.Pairs...)
	pairs = append(pairs, Pair{Target: len(t), Spoken: len(s)})

	for k := 1; k < len(pairs); k++ {
		prev, next := pairs[k-1], pairs[k]
		if next.Target < len(t) {
			out[next.Target].Status = WordMatched
			out[next.Target].Heard = s[next.Spoken]
		}
		gapTargets := t[prev.Target+1 : next.Target]
		gapSpoken := s[prev.Spoken+1 : next.Spoken]
		used := make([]bool, len(gapSpoken))
		for gi, word := range gapTargets {
			best, bestScore := -1, 0.0
			for si, heard := range gapSpoken {
				if used[si] {
					continue
				}
				if score, ok := nearMiss(word, heard); ok && score > bestScore {
					best, bestScore = si, score
				}
			}
			idx := prev.Target + 1 + gi
			if best >= 0 {
				used[best] = true
				out[idx].Status = WordNear
				out[idx].Heard = gapSpoken[best]
			}
		}
	}
	return out
}

// nearMiss reports whether heard sounds like word.
func nearMiss(word, heard string) (float64, bool) {
	if word == "" || heard == "" {
		return 0, false
	}
	if !metaphoneOverlap(word, heard) {
		return 0, false
	}
	score := matchr.JaroWinkler(word, heard, false)
	return score, score >= defaultNearThreshold
}

func metaphoneOverlap(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}

// Counts tallies statuses in a review.
func Counts(words []WordResult) (matched, near, missed int) {
	for _, w := range words {
		switch w.Status {
		case WordMatched:
			matched++
		case WordNear:
			near++
		default:
			missed++
		}
	}
	return matched, near, missed
}
