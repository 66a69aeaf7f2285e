package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Series is a named percent series (0..100) for charting.
type Series struct {
	Name   string
	Values []float64
}

const (
	defaultChartHeight  = 6
	minChartWidth       = 10
	axisLabelWidth      = 4
	axisSeparator       = " │ "
	terminalWidthBackup = 80
)

var blocks = []rune(" ▁▂▃▄▅▆▇█")

// ChartWidthFor computes a chart width that fits within the total width.
func ChartWidthFor(totalWidth int) int {
	if totalWidth <= 0 {
		return minChartWidth
	}
	w := totalWidth - axisLabelWidth - runewidth.StringWidth(axisSeparator)
	if w < minChartWidth {
		w = minChartWidth
	}
	return w
}

// TerminalWidth returns the width of stdout, or 80 when it is not a terminal.
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

// RenderChart draws each series as a column chart on a fixed 0..100 scale.
// A width of 0 sizes the chart to the terminal.
func RenderChart(w io.Writer, title string, series []Series, width, height int) error {
	if width <= 0 {
		width = ChartWidthFor(TerminalWidth())
	}
	if height <= 0 {
		height = defaultChartHeight
	}
	if _, err := fmt.Fprintln(w, title); err != nil {
		return err
	}
	for _, s := range series {
		if len(s.Values) == 0 {
			continue
		}
		lines := chartLines(resample(s.Values, width), height)
		last := s.Values[len(s.Values)-1]
		minVal, maxVal := minMax(s.Values)
		if _, err := fmt.Fprintf(w, "%s (last %.0f%%, min %.0f%%, max %.0f%%)\n", s.Name, last, minVal, maxVal); err != nil {
			return err
		}
		for i, line := range lines {
			label := ""
			switch i {
			case 0:
				label = "100%"
			case len(lines) - 1:
				label = "0%"
			}
			if _, err := fmt.Fprintf(w, "%*s%s%s\n", axisLabelWidth, label, axisSeparator, line); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

func chartLines(values []float64, height int) []string {
	levels := len(blocks) - 1
	lines := make([]string, height)
	for row := 0; row < height; row++ {
		var b strings.Builder
		// Eighths of a cell filled below this row's floor.
		floor := (height - 1 - row) * levels
		for _, v := range values {
			filled := int(math.Round(clampPct(v) / 100 * float64(height*levels)))
			cell := filled - floor
			if cell < 0 {
				cell = 0
			}
			if cell > levels {
				cell = levels
			}
			b.WriteRune(blocks[cell])
		}
		lines[row] = strings.TrimRight(b.String(), " ")
	}
	return lines
}

// resample averages values into at most width buckets.
func resample(values []float64, width int) []float64 {
	if len(values) <= width {
		return append([]float64(nil), values...)
	}
	out := make([]float64, width)
	for i := 0; i < width; i++ {
		start := i * len(values) / width
		end := (i + 1) * len(values) / width
		if end <= start {
			end = start + 1
		}
		var sum float64
		for _, v := range values[start:end] {
			sum += v
		}
		out[i] = sum / float64(end-start)
	}
	return out
}

func minMax(values []float64) (float64, float64) {
	minVal, maxVal := values[0], values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	return minVal, maxVal
}

func clampPct(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
