package speech

import "strings"

// transcript accumulates final segments and tracks the latest interim text.
type transcript struct {
	final   string
	interim string
	// confidences holds the engine confidence of each accepted final segment.
	confidences []float64
}

// appendFinal adds a final segment unless it repeats the tail of what was
// already accumulated. Some engines re-deliver the last final after a restart.
func (t *transcript) appendFinal(text string, confidence float64) bool {
	text = strings.TrimSpace(text)
	t.interim = ""
	if text == "" || t.repeatsTail(text) {
		return false
	}
	if t.final == "" {
		t.final = text
	} else {
		t.final += " " + text
	}
	t.confidences = append(t.confidences, confidence)
	return true
}

func (t *transcript) repeatsTail(text string) bool {
	words := strings.Fields(text)
	have := strings.Fields(t.final)
	if len(words) == 0 || len(have) < len(words) {
		return false
	}
	tail := have[len(have)-len(words):]
	return strings.EqualFold(strings.Join(tail, " "), strings.Join(words, " "))
}

func (t *transcript) setInterim(text string) {
	t.interim = strings.TrimSpace(text)
}

// display returns the accumulated text followed by the interim text.
func (t *transcript) display() string {
	switch {
	case t.final == "":
		return t.interim
	case t.interim == "":
		return t.final
	default:
		return t.final + " " + t.interim
	}
}

// snapshot folds the interim text into the accumulation and returns it.
func (t *transcript) snapshot() string {
	t.final = t.display()
	t.interim = ""
	return t.final
}

func (t *transcript) empty() bool {
	return t.final == "" && t.interim == ""
}

func (t *transcript) reset() {
	t.final = ""
	t.interim = ""
	t.confidences = nil
}

// confidence averages the reported segment confidences as a percentage.
// Engines that report none get defaultConfidence.
func (t *transcript) confidence() int {
	sum, n := 0.0, 0
	for _, c := range t.confidences {
		if c > 0 {
			sum += c
			n++
		}
	}
	if n == 0 {
		return defaultConfidence
	}
	pct := int(sum/float64(n)*100 + 0.5)
	if pct > 100 {
		return 100
	}
	return pct
}
