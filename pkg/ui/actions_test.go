package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vanderheijden86/canopy/internal/store"
)

func TestParseRange(t *testing.T) {
	cases := []struct {
		in      string
		start   int
		end     int
		invalid bool
	}{
		{"2-5", 2, 5, false},
		{" 0-10 ", 0, 10, false},
		{"3 - 7", 3, 7, false},
		{"abc", 0, 0, true},
		{"5-2", 0, 0, true},
		{"4-4", 0, 0, true},
		{"-3", 0, 0, true},
		{"", 0, 0, true},
		{"1.5-2", 0, 0, true},
	}
	for _, tc := range cases {
		start, end, err := ParseRange(tc.in)
		if tc.invalid {
			var inv *InvalidInputError
			if !errors.As(err, &inv) {
				t.Errorf("ParseRange(%q) err = %v, want InvalidInputError", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRange(%q): %v", tc.in, err)
			continue
		}
		if start != tc.start || end != tc.end {
			t.Errorf("ParseRange(%q) = %d,%d want %d,%d", tc.in, start, end, tc.start, tc.end)
		}
	}
}

func TestDefaultValueWindowTitleMatchesPane(t *testing.T) {
	// A plain value request on a long dataset shows the default window;
	// the pane title must describe that window, not the whole dataset.
	m, r := newTestModel(t)
	long := make([]float64, 500)
	for i := range long {
		long[i] = float64(i)
	}
	r.data["/long"] = long
	r.children["/"] = append(r.children["/"],
		store.Entry{Name: "long", Kind: store.KindDataset})

	m = press(t, m, "enter")
	m = m.setCursor(m.tree.RowCount() - 1) // /long
	m = pressAll(t, m, "d", "v")
	m = drainBackground(t, m) // valuesMsg

	if !strings.Contains(m.valuesTitle, "0–100 of 500") {
		t.Fatalf("values title = %q, want the default window 0–100 of 500", m.valuesTitle)
	}
	content := stripANSI(m.valuesVP.View())
	if !strings.Contains(content, "[0] 0") {
		t.Fatalf("values pane missing the window start:\n%s", content)
	}
	if got := m.valuesVP.TotalLineCount(); got != 100 {
		t.Fatalf("values pane holds %d rows, want the default window of 100", got)
	}
}

func TestReductionsStreamAndReport(t *testing.T) {
	m, _ := newTestModel(t)
	m = pressAll(t, m, "enter", "j", "j") // cursor on /beta: 0..9

	cases := []struct {
		key  string
		want string
	}{
		{"m", "min = 0, max = 9"},
		{"M", "mean = 4.5"},
		{"s", "σ = 2.87"},
	}
	for _, tc := range cases {
		m = pressAll(t, m, "d", tc.key)
		deadline := time.After(2 * time.Second)
		for {
			var done bool
			select {
			case raw := <-m.sync.Msgs():
				next, _ := m.Update(raw)
				m = next.(Model)
				_, done = raw.(reductionDoneMsg)
			case <-deadline:
				t.Fatalf("%s reduction never finished", tc.key)
			}
			if done {
				break
			}
		}
		msg, isErr := m.StatusLine()
		if isErr {
			t.Fatalf("%s reduction errored: %q", tc.key, msg)
		}
		if !strings.Contains(msg, tc.want) {
			t.Fatalf("%s reduction status = %q, want contains %q", tc.key, msg, tc.want)
		}
		if m.busy() {
			t.Fatalf("reduction left a job marked in flight")
		}
	}
}

func TestReductionOnGroupIsRejected(t *testing.T) {
	m, _ := newTestModel(t)
	m = pressAll(t, m, "d", "m") // cursor on root group
	msg, isErr := m.StatusLine()
	if !isErr || !strings.Contains(msg, "not a dataset") {
		t.Fatalf("status = %q (err=%v)", msg, isErr)
	}
	if m.busy() {
		t.Fatalf("rejected reduction left a job in flight")
	}
}

func TestDuplicateReductionIsNoOp(t *testing.T) {
	m, _ := newTestModel(t)
	m = pressAll(t, m, "enter", "j", "j")

	// Mark a job in flight by hand; the second request must not start
	// another.
	m.inFlight["/beta"] = "mean"
	m = pressAll(t, m, "d", "M")
	msg, _ := m.StatusLine()
	if !strings.Contains(msg, "already running") {
		t.Fatalf("status = %q, want already-running notice", msg)
	}
}

func TestHistogramRenderFlow(t *testing.T) {
	m, _ := newTestModel(t)
	m = pressAll(t, m, "enter", "j", "j") // /beta

	m = pressAll(t, m, "h", "d") // capture
	if m.histPath != "/beta" {
		t.Fatalf("captured %q, want /beta", m.histPath)
	}
	m = pressAll(t, m, "h", "h") // render
	deadline := time.After(2 * time.Second)
	for m.lastHist == nil {
		select {
		case raw := <-m.sync.Msgs():
			next, _ := m.Update(raw)
			m = next.(Model)
		case <-deadline:
			t.Fatalf("histogram never rendered")
		}
	}
	if m.lastHist.Total != 10 {
		t.Fatalf("histogram binned %d samples, want 10", m.lastHist.Total)
	}
	if !strings.Contains(m.plotTitle, "Histogram of /beta") {
		t.Fatalf("plot title = %q", m.plotTitle)
	}
	if m.focused != panePlot {
		t.Fatalf("render did not focus the plot pane")
	}
}

func TestDensityNeedsBothAxes(t *testing.T) {
	m, _ := newTestModel(t)
	m = pressAll(t, m, "p", "p")
	msg, isErr := m.StatusLine()
	if !isErr || !strings.Contains(msg, "both axes") {
		t.Fatalf("status = %q (err=%v)", msg, isErr)
	}
}

func TestDensityRenderFlow(t *testing.T) {
	m, _ := newTestModel(t)
	m = pressAll(t, m, "enter", "j", "enter", "j") // expand alpha, cursor on /alpha/x

	m = pressAll(t, m, "p", "x")
	if m.plotX != "/alpha/x" {
		t.Fatalf("x axis = %q", m.plotX)
	}
	m = m.setCursor(3) // /beta
	m = pressAll(t, m, "p", "y", "p", "p")
	deadline := time.After(2 * time.Second)
	for m.lastDensity == nil {
		select {
		case raw := <-m.sync.Msgs():
			next, _ := m.Update(raw)
			m = next.(Model)
		case <-deadline:
			t.Fatalf("density never rendered")
		}
	}
	// Axes are truncated to the shorter dataset: 4 pairs.
	if m.lastDensity.Total != 4 {
		t.Fatalf("density binned %d pairs, want 4", m.lastDensity.Total)
	}
}

func TestBinCountPrompt(t *testing.T) {
	m, _ := newTestModel(t)
	m = pressAll(t, m, "h", "b")
	m = typeText(t, m, "12")
	m = press(t, m, "enter")
	if m.histBins != 12 {
		t.Fatalf("bins = %d, want 12", m.histBins)
	}

	m = pressAll(t, m, "h", "b")
	m = typeText(t, m, "zero")
	m = press(t, m, "enter")
	msg, isErr := m.StatusLine()
	if !isErr || !strings.Contains(msg, "invalid input") {
		t.Fatalf("status = %q", msg)
	}
	if m.histBins != 12 {
		t.Fatalf("invalid bins clobbered the old value: %d", m.histBins)
	}
}

func TestSnapshotWithoutPlotIsRejected(t *testing.T) {
	m, _ := newTestModel(t)
	m = pressAll(t, m, "p", "s")
	msg, isErr := m.StatusLine()
	if !isErr || !strings.Contains(msg, "nothing plotted") {
		t.Fatalf("status = %q (err=%v)", msg, isErr)
	}
	if m.Mode() == ModeInput {
		t.Fatalf("snapshot prompt opened with nothing to save")
	}
}
