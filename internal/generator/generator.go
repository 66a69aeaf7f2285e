// Package generator picks the next practice sentence.
package generator

import (
	"math/rand"
	"time"

	"github.com/verte-zerg/tuispeak/internal/textmatch"
)

// Generator picks sentences from a lesson.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator seeded with the current time.
func New() *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewSeeded returns a Generator with a fixed seed.
func NewSeeded(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Sequential returns the sentence at pos, wrapping around, and the next
// position.
func (g *Generator) Sequential(sentences []string, pos int) (string, int) {
	if len(sentences) == 0 {
		return "", 0
	}
	if pos < 0 {
		pos = 0
	}
	idx := pos % len(sentences)
	return sentences[idx], (idx + 1) % len(sentences)
}

// Shuffle returns a random permutation of sentences.
func (g *Generator) Shuffle(sentences []string) []string {
	out := append([]string(nil), sentences...)
	g.rnd.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Pick selects a sentence uniformly, avoiding prev when possible.
func (g *Generator) Pick(sentences []string, prev string) string {
	if len(sentences) == 0 {
		return ""
	}
	for i := 0; i < 4; i++ {
		s := sentences[g.rnd.Intn(len(sentences))]
		if s != prev || len(sentences) == 1 {
			return s
		}
	}
	return sentences[g.rnd.Intn(len(sentences))]
}

// PickWeighted selects a sentence with a bias toward weak words. Each
// sentence weighs 1 + factor per weak word it contains.
func (g *Generator) PickWeighted(sentences []string, weakSet map[string]struct{}, factor float64) string {
	if len(sentences) == 0 {
		return ""
	}
	weights := make([]float64, len(sentences))
	total := 0.0
	for i, s := range sentences {
		weakCount := 0
		for _, word := range textmatch.Tokenize(s) {
			if _, ok := weakSet[word]; ok {
				weakCount++
			}
		}
		w := 1.0 + float64(weakCount)*factor
		weights[i] = w
		total += w
	}

	r := g.rnd.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return sentences[i]
		}
	}
	return sentences[len(sentences)-1]
}
