package ui

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/canopy/internal/store"
	"github.com/vanderheijden86/canopy/pkg/export"
	"github.com/vanderheijden86/canopy/pkg/forest"
	"github.com/vanderheijden86/canopy/pkg/plot"
)

// InvalidInputError reports a prompt answer the callback could not parse.
// It surfaces as a status-line message, never as a crash, and the session
// is back in Normal mode by the time the user sees it.
type InvalidInputError struct {
	Input string
	Want  string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input %q: expected %s", e.Input, e.Want)
}

var rangePattern = regexp.MustCompile(`^\s*(\d+)\s*-\s*(\d+)\s*$`)

// ParseRange parses a half-open element range written as "start-end".
func ParseRange(s string) (start, end int, err error) {
	match := rangePattern.FindStringSubmatch(s)
	if match == nil {
		return 0, 0, &InvalidInputError{Input: s, Want: "a range like 2-5"}
	}
	start, _ = strconv.Atoi(match[1])
	end, _ = strconv.Atoi(match[2])
	if end <= start {
		return 0, 0, &InvalidInputError{Input: s, Want: "end greater than start"}
	}
	return start, end, nil
}

// toggleUnderCursor expands or collapses the group under the cursor.
// Enter on a dataset or a childless group only reports; it never errors.
func (m Model) toggleUnderCursor() (Model, tea.Cmd, error) {
	node, err := m.node()
	if err != nil {
		return m, nil, err
	}
	if !node.IsGroup() {
		return m.setStatus("%s is not a group", node.Path), nil, nil
	}
	if !node.HasChildren && !node.Expanded {
		return m.setStatus("%s has no children", node.Path), nil, nil
	}
	if err := m.tree.ToggleRow(m.cursorRow); err != nil {
		return m, nil, err
	}
	return m.afterTreeEdit(), nil, nil
}

// copyNodePath puts the cursor node's path on the system clipboard.
func (m Model) copyNodePath() (Model, tea.Cmd, error) {
	node, err := m.node()
	if err != nil {
		return m, nil, err
	}
	if err := clipboard.WriteAll(node.Path); err != nil {
		return m, nil, fmt.Errorf("clipboard: %w", err)
	}
	return m.setStatus("copied %s", node.Path), nil, nil
}

// datasetUnderCursor returns the cursor node if it is a dataset.
func (m Model) datasetUnderCursor() (*forest.Node, error) {
	node, err := m.node()
	if err != nil {
		return nil, err
	}
	if node.IsGroup() {
		return nil, fmt.Errorf("%s: %w", node.Path, store.ErrNotDataset)
	}
	return node, nil
}

// jumpToParent moves the cursor to the nearest shallower row above it.
func (m Model) jumpToParent() (Model, tea.Cmd, error) {
	node, err := m.node()
	if err != nil {
		return m, nil, err
	}
	for row := m.cursorRow - 1; row >= 0; row-- {
		other, err := m.tree.NodeAtRow(row)
		if err != nil {
			return m, nil, err
		}
		if other.Depth < node.Depth {
			return m.setCursor(row), nil, nil
		}
	}
	return m.setStatus("%s has no parent", node.Path), nil, nil
}

// jumpToNextSibling moves to the next visible row at the same depth,
// stopping at the end of the parent's span.
func (m Model) jumpToNextSibling() (Model, tea.Cmd, error) {
	node, err := m.node()
	if err != nil {
		return m, nil, err
	}
	for row := m.cursorRow + 1; row < m.tree.RowCount(); row++ {
		other, err := m.tree.NodeAtRow(row)
		if err != nil {
			return m, nil, err
		}
		if other.Depth < node.Depth {
			break
		}
		if other.Depth == node.Depth {
			return m.setCursor(row), nil, nil
		}
	}
	return m.setStatus("%s has no next sibling", node.Path), nil, nil
}

// jumpByNameCallback searches visible rows below the cursor (wrapping)
// for the first name containing the captured text.
func jumpByNameCallback(m Model, text string) (Model, tea.Cmd) {
	m.mode = ModeNormal
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return m.setError(&InvalidInputError{Input: text, Want: "a node name"}), nil
	}
	rows := m.tree.RowCount()
	for i := 1; i <= rows; i++ {
		row := (m.cursorRow + i) % rows
		node, err := m.tree.NodeAtRow(row)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(node.Name), needle) {
			return m.setCursor(row).setStatus("jumped to %s", node.Path), nil
		}
	}
	return m.setStatus("no visible node matches %q", needle), nil
}

// showValues fetches the default value window for the dataset under the
// cursor. The read happens off the foreground; the result lands in the
// values pane.
func (m Model) showValues() (Model, tea.Cmd, error) {
	node, err := m.datasetUnderCursor()
	if err != nil {
		return m, nil, err
	}
	m.mode = ModeNormal
	return m.fetchValues(node.Path, store.NoBound, store.NoBound)
}

// valueRangeCallback parses a "start-end" answer and fetches that window.
func valueRangeCallback(path string) func(Model, string) (Model, tea.Cmd) {
	return func(m Model, text string) (Model, tea.Cmd) {
		m.mode = ModeNormal
		start, end, err := ParseRange(text)
		if err != nil {
			return m.setError(err), nil
		}
		next, cmd, err := m.fetchValues(path, start, end)
		if err != nil {
			return next.setError(err), cmd
		}
		return next, cmd
	}
}

// binCountCallback updates the histogram bin count.
func binCountCallback(m Model, text string) (Model, tea.Cmd) {
	m.mode = ModeNormal
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 {
		return m.setError(&InvalidInputError{Input: text, Want: "a positive bin count"}), nil
	}
	m.histBins = n
	return m.setStatus("histogram bins: %d", n), nil
}

// fetchValues runs a value-window read in the background. A request for a
// node that already has one in flight is a no-op beyond a notice.
func (m Model) fetchValues(path string, start, end int) (Model, tea.Cmd, error) {
	if op, ok := m.inFlight[path]; ok {
		return m.setStatus("%s already running for %s", op, path), nil, nil
	}
	m.inFlight[path] = "values"
	reader, sink := m.reader, m.sync
	go func() {
		text, total, err := reader.Values(path, start, end)
		lo, hi := store.ClampValueRange(start, end, total)
		sink.Send(valuesMsg{Path: path, Text: text, Start: lo, End: hi, Total: total, Err: err})
	}()
	return m.setStatus("reading %s", path), nil, nil
}

// Reduction kinds. The streaming pass computes all four accumulators and
// formats the one asked for.
const (
	reduceMinMax = "min/max"
	reduceMean   = "mean"
	reduceStd    = "stddev"
)

// reduceBatch is the element window one streaming step reads.
const reduceBatch = 4096

// startReduction streams a dataset reduction in the background, posting
// progress into the status line as it goes.
func (m Model) startReduction(kind string) (Model, tea.Cmd, error) {
	node, err := m.datasetUnderCursor()
	if err != nil {
		return m, nil, err
	}
	m.mode = ModeNormal
	if op, ok := m.inFlight[node.Path]; ok {
		return m.setStatus("%s already running for %s", op, node.Path), nil, nil
	}
	m.inFlight[node.Path] = kind
	reader, sink := m.reader, m.sync
	go reduceDataset(reader, sink, node.Path, kind)
	return m.setStatus("%s %s…", kind, node.Path), nil, nil
}

// reduceDataset is the background body of startReduction.
func reduceDataset(r store.Reader, sink *PaneSync, path, kind string) {
	n, err := r.Len(path)
	if err != nil {
		sink.Send(reductionDoneMsg{Path: path, Kind: kind, Err: err})
		return
	}
	var (
		count    int
		sum      float64
		sumSq    float64
		min      = math.Inf(1)
		max      = math.Inf(-1)
		nonFinit int
	)
	for lo := 0; lo < n; lo += reduceBatch {
		hi := lo + reduceBatch
		if hi > n {
			hi = n
		}
		vals, err := r.Floats(path, lo, hi)
		if err != nil {
			sink.Send(reductionDoneMsg{Path: path, Kind: kind, Err: err})
			return
		}
		for _, v := range vals {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				nonFinit++
				continue
			}
			count++
			sum += v
			sumSq += v * v
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		sink.Send(reductionProgressMsg{Path: path, Kind: kind, Done: hi, Size: n})
	}
	if count == 0 {
		sink.Send(reductionDoneMsg{Path: path, Kind: kind, Err: fmt.Errorf("%s: no finite values", path)})
		return
	}

	mean := sum / float64(count)
	variance := sumSq/float64(count) - mean*mean
	if variance < 0 {
		variance = 0
	}
	var text string
	switch kind {
	case reduceMinMax:
		text = fmt.Sprintf("%s: min = %g, max = %g", path, min, max)
	case reduceMean:
		text = fmt.Sprintf("%s: mean = %g over %d elements", path, mean, count)
	case reduceStd:
		text = fmt.Sprintf("%s: σ = %g over %d elements", path, math.Sqrt(variance), count)
	}
	if nonFinit > 0 {
		text += fmt.Sprintf(" (%d non-finite skipped)", nonFinit)
	}
	sink.Send(reductionDoneMsg{Path: path, Kind: kind, Text: text})
}

// maxPlotSample caps how many elements a plot pulls into memory. Longer
// datasets are plotted from their leading window and the title says so.
const maxPlotSample = 100_000

// renderHistogram bins the captured dataset and draws it into the plot
// pane.
func (m Model) renderHistogram() (Model, tea.Cmd, error) {
	path := m.histPath
	if path == "" {
		node, err := m.datasetUnderCursor()
		if err != nil {
			return m, nil, fmt.Errorf("no dataset captured; press d first or park on a dataset")
		}
		path = node.Path
	}
	m.mode = ModeNormal
	if _, ok := m.inFlight["histogram"]; ok {
		return m.setStatus("histogram already rendering"), nil, nil
	}
	m.inFlight["histogram"] = "histogram"
	reader, sink := m.reader, m.sync
	bins, height := m.histBins, m.plotVP.Height
	go func() {
		vals, clipped, err := samplePlotFloats(reader, path)
		if err != nil {
			sink.Send(plotMsg{Kind: "histogram", Err: err})
			return
		}
		h, err := plot.NewHist(vals, bins)
		if err != nil {
			sink.Send(plotMsg{Kind: "histogram", Err: fmt.Errorf("%s: %w", path, err)})
			return
		}
		title := fmt.Sprintf("Histogram of %s (%d bins)", path, bins)
		if clipped {
			title += fmt.Sprintf(", first %d elements", maxPlotSample)
		}
		sink.Send(plotMsg{Kind: "histogram", Title: title, Text: h.Render(height - 2), Hist: h})
	}()
	return m.setStatus("binning %s…", path), nil, nil
}

// renderDensity plots the captured x/y pair as a shaded 2D grid.
func (m Model) renderDensity() (Model, tea.Cmd, error) {
	if m.plotX == "" || m.plotY == "" {
		return m, nil, fmt.Errorf("capture both axes first (x and y)")
	}
	m.mode = ModeNormal
	if _, ok := m.inFlight["density"]; ok {
		return m.setStatus("density plot already rendering"), nil, nil
	}
	m.inFlight["density"] = "density"
	reader, sink := m.reader, m.sync
	xPath, yPath := m.plotX, m.plotY
	cols := clampInt(m.plotVP.Width-8, 10, 200)
	rows := clampInt(m.plotVP.Height-3, 5, 60)
	go func() {
		xs, _, err := samplePlotFloats(reader, xPath)
		if err != nil {
			sink.Send(plotMsg{Kind: "density", Err: err})
			return
		}
		ys, _, err := samplePlotFloats(reader, yPath)
		if err != nil {
			sink.Send(plotMsg{Kind: "density", Err: err})
			return
		}
		if len(xs) > len(ys) {
			xs = xs[:len(ys)]
		} else {
			ys = ys[:len(xs)]
		}
		d, err := plot.NewDensity(xs, ys, cols, rows)
		if err != nil {
			sink.Send(plotMsg{Kind: "density", Err: err})
			return
		}
		title := fmt.Sprintf("Density of %s vs %s", xPath, yPath)
		sink.Send(plotMsg{Kind: "density", Title: title, Text: d.Render(), Density: d})
	}()
	return m.setStatus("plotting %s vs %s…", xPath, yPath), nil, nil
}

// samplePlotFloats reads up to maxPlotSample elements of a dataset.
func samplePlotFloats(r store.Reader, path string) (vals []float64, clipped bool, err error) {
	n, err := r.Len(path)
	if err != nil {
		return nil, false, err
	}
	end := n
	if end > maxPlotSample {
		end, clipped = maxPlotSample, true
	}
	out := make([]float64, 0, end)
	for lo := 0; lo < end; lo += reduceBatch {
		hi := lo + reduceBatch
		if hi > end {
			hi = end
		}
		batch, err := r.Floats(path, lo, hi)
		if err != nil {
			return nil, false, err
		}
		out = append(out, batch...)
	}
	return out, clipped, nil
}

// promptSnapshot asks for an output path and saves the last rendered plot
// as a PNG or SVG.
func (m Model) promptSnapshot() (Model, tea.Cmd, error) {
	if m.lastHist == nil && m.lastDensity == nil {
		return m, nil, fmt.Errorf("nothing plotted yet")
	}
	next, cmd := m.requestInput("snapshot path (.png or .svg): ", snapshotCallback)
	return next, cmd, nil
}

// snapshotCallback writes the pending plot to the captured path.
func snapshotCallback(m Model, text string) (Model, tea.Cmd) {
	m.mode = ModeNormal
	outPath := strings.TrimSpace(text)
	if outPath == "" {
		return m.setError(&InvalidInputError{Input: text, Want: "an output path"}), nil
	}
	opts := export.SnapshotOptions{
		Title:  m.plotTitle,
		Width:  m.cfg.Snapshot.Width,
		Height: m.cfg.Snapshot.Height,
	}
	hist, density, sink := m.lastHist, m.lastDensity, m.sync
	go func() {
		var err error
		if hist != nil {
			err = export.SaveHistogram(hist, outPath, opts)
		} else {
			err = export.SaveDensity(density, outPath, opts)
		}
		sink.Send(snapshotMsg{Path: outPath, Err: err})
	}()
	return m.setStatus("writing snapshot to %s…", outPath), nil
}
