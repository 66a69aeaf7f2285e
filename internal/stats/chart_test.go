package stats

import (
	"bytes"
	"strings"
	"testing"
)

func TestChartLines(t *testing.T) {
	lines := chartLines([]float64{0, 50, 100}, 2)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0] != "  █" || lines[1] != " ██" {
		t.Fatalf("unexpected chart: %q", lines)
	}
	partial := chartLines([]float64{25}, 1)
	if partial[0] != "▂" {
		t.Fatalf("expected quarter block, got %q", partial[0])
	}
}

func TestResample(t *testing.T) {
	out := resample([]float64{10, 20, 30, 40}, 2)
	if len(out) != 2 || out[0] != 15 || out[1] != 35 {
		t.Fatalf("unexpected resample: %v", out)
	}
	short := resample([]float64{1, 2}, 10)
	if len(short) != 2 {
		t.Fatalf("short series should not be stretched: %v", short)
	}
}

func TestChartWidthFor(t *testing.T) {
	if got := ChartWidthFor(80); got != 80-axisLabelWidth-3 {
		t.Fatalf("unexpected width %d", got)
	}
	if got := ChartWidthFor(0); got != minChartWidth {
		t.Fatalf("expected min width, got %d", got)
	}
	if got := ChartWidthFor(5); got != minChartWidth {
		t.Fatalf("expected min width for narrow terminals, got %d", got)
	}
}

func TestRenderChart(t *testing.T) {
	var buf bytes.Buffer
	err := RenderChart(&buf, "Test Chart", []Series{
		{Name: "Accuracy", Values: []float64{40, 60, 80}},
		{Name: "Empty"},
	}, 20, 3)
	if err != nil {
		t.Fatalf("RenderChart: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Test Chart", "Accuracy (last 80%, min 40%, max 80%)", "100%", "  0%"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Empty") {
		t.Fatalf("empty series should be skipped")
	}
}
