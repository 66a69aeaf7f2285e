package tui

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/tuispeak/internal/textmatch"
)

type styledRune struct {
	s       string
	width   int
	isSpace bool
}

// wordState is how a sentence word is drawn.
type wordState int

const (
	wordPending wordState = iota
	wordHeard
	wordMatched
	wordNear
	wordMissed
)

// liveStates marks target tokens already heard in the transcript.
func liveStates(target, transcript string) []wordState {
	mask := textmatch.Mask(target, transcript)
	out := make([]wordState, len(mask))
	for i, ok := range mask {
		if ok {
			out[i] = wordHeard
		}
	}
	return out
}

// reviewStates converts a word review into token states.
func reviewStates(review []textmatch.WordResult) []wordState {
	out := make([]wordState, len(review))
	for i, w := range review {
		switch w.Status {
		case textmatch.WordMatched:
			out[i] = wordMatched
		case textmatch.WordNear:
			out[i] = wordNear
		default:
			out[i] = wordMissed
		}
	}
	return out
}

// fieldStates maps token states onto the whitespace-separated fields of
// target. A field holding several tokens takes the worst of them; a field
// with no tokens stays pending.
func fieldStates(target string, tokens []wordState) []wordState {
	fields := strings.Fields(target)
	out := make([]wordState, len(fields))
	next := 0
	for i, f := range fields {
		n := len(textmatch.Tokenize(f))
		state := wordPending
		for j := 0; j < n && next < len(tokens); j++ {
			if j == 0 {
				state = tokens[next]
			} else {
				state = worse(state, tokens[next])
			}
			next++
		}
		out[i] = state
	}
	return out
}

// severity orders states from best to worst.
var severity = map[wordState]int{
	wordMatched: 0,
	wordHeard:   1,
	wordPending: 2,
	wordNear:    3,
	wordMissed:  4,
}

func worse(a, b wordState) wordState {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

func styleFor(state wordState) lipgloss.Style {
	switch state {
	case wordHeard:
		return heardStyle
	case wordMatched:
		return matchedStyle
	case wordNear:
		return nearStyle
	case wordMissed:
		return missedStyle
	default:
		return pendingStyle
	}
}

// buildStyledRunes renders target rune by rune, styling each word by its
// field state.
func buildStyledRunes(target string, states []wordState) []styledRune {
	out := make([]styledRune, 0, len(target))
	field := -1
	inWord := false
	for _, r := range target {
		space := unicode.IsSpace(r)
		if space {
			inWord = false
			out = append(out, styledRune{s: " ", width: 1, isSpace: true})
			continue
		}
		if !inWord {
			inWord = true
			field++
		}
		state := wordPending
		if field < len(states) {
			state = states[field]
		}
		out = append(out, styledRune{
			s:     styleFor(state).Render(string(r)),
			width: runewidth.RuneWidth(r),
		})
	}
	return out
}

func renderStyledRunes(runes []styledRune) string {
	var b strings.Builder
	for _, item := range runes {
		b.WriteString(item.s)
	}
	return b.String()
}

func wrapStyledRunes(runes []styledRune, width int) string {
	if width <= 0 {
		return renderStyledRunes(runes)
	}
	var out strings.Builder
	line := make([]styledRune, 0, len(runes))
	lineWidth := 0
	lastSpaceIdx := -1

	for i := 0; i < len(runes); {
		item := runes[i]
		if lineWidth+item.width > width && len(line) > 0 {
			if lastSpaceIdx >= 0 {
				out.WriteString(renderStyledRunes(line[:lastSpaceIdx]))
				out.WriteRune('\n')
				line = append([]styledRune{}, line[lastSpaceIdx+1:]...)
				lineWidth = lineWidthOf(line)
				lastSpaceIdx = lastSpaceIndex(line)
			} else {
				out.WriteString(renderStyledRunes(line))
				out.WriteRune('\n')
				line = line[:0]
				lineWidth = 0
				lastSpaceIdx = -1
			}
			continue
		}
		line = append(line, item)
		lineWidth += item.width
		if item.isSpace {
			lastSpaceIdx = len(line) - 1
		}
		i++
	}
	out.WriteString(renderStyledRunes(line))
	return out.String()
}

func lineWidthOf(line []styledRune) int {
	total := 0
	for _, item := range line {
		total += item.width
	}
	return total
}

func lastSpaceIndex(line []styledRune) int {
	for i := len(line) - 1; i >= 0; i-- {
		if line[i].isSpace {
			return i
		}
	}
	return -1
}
