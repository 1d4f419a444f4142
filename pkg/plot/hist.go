// Package plot bins dataset values and renders them as terminal text. The
// histogram and density grids it produces also feed the image snapshot
// writer, so binning lives here and styling stays in the callers.
package plot

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultBins is the histogram bin count used until the user picks one.
const DefaultBins = 30

// ErrNoFiniteValues is returned when every sample is NaN or infinite.
var ErrNoFiniteValues = errors.New("no finite values to bin")

// Hist is a one-dimensional binning of a sample. Edges has one more entry
// than Counts; bin i covers [Edges[i], Edges[i+1]).
type Hist struct {
	Edges   []float64
	Counts  []float64
	Total   int // finite samples binned
	Dropped int // NaN and infinite samples skipped
}

// NewHist bins the finite values into the given number of equal-width bins
// spanning the sample range. A constant sample gets a unit-width range
// centered on the value so it still produces a visible bar.
func NewHist(values []float64, bins int) (*Hist, error) {
	if bins < 1 {
		bins = 1
	}
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return nil, ErrNoFiniteValues
	}
	sort.Float64s(finite)

	lo, hi := finite[0], finite[len(finite)-1]
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	edges := floats.Span(make([]float64, bins+1), lo, hi)
	// The top edge is exclusive; nudge it so the maximum sample still bins.
	edges[bins] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, edges, finite, nil)
	return &Hist{
		Edges:   edges,
		Counts:  counts,
		Total:   len(finite),
		Dropped: len(values) - len(finite),
	}, nil
}

// MaxCount returns the largest bin count.
func (h *Hist) MaxCount() float64 {
	if len(h.Counts) == 0 {
		return 0
	}
	return floats.Max(h.Counts)
}

// Vertical bar glyphs in eighth steps, empty through full.
var barLevels = []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Render draws the histogram as rows of block glyphs, height rows of bars
// plus an axis and a label line. One column per bin; pick the bin count to
// match the pane width.
func (h *Hist) Render(height int) string {
	if height < 1 {
		height = 1
	}
	maxCount := h.MaxCount()
	if maxCount == 0 {
		return "(empty histogram)"
	}

	// Bar heights in rows, fractional so the top cell can use a partial
	// glyph.
	tops := make([]float64, len(h.Counts))
	for i, c := range h.Counts {
		tops[i] = c / maxCount * float64(height)
	}

	gutter := len(strconv.Itoa(int(maxCount)))
	var sb strings.Builder
	for row := height; row >= 1; row-- {
		switch row {
		case height:
			fmt.Fprintf(&sb, "%*d ┤", gutter, int(maxCount))
		case 1:
			fmt.Fprintf(&sb, "%*d ┤", gutter, 0)
		default:
			fmt.Fprintf(&sb, "%*s │", gutter, "")
		}
		for _, top := range tops {
			switch {
			case top >= float64(row):
				sb.WriteRune(barLevels[8])
			case top > float64(row-1):
				level := int((top - float64(row-1)) * 8)
				if level < 1 {
					level = 1
				}
				sb.WriteRune(barLevels[level])
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteByte('\n')
	}

	sb.WriteString(strings.Repeat(" ", gutter+1))
	sb.WriteRune('└')
	sb.WriteString(strings.Repeat("─", len(h.Counts)))
	sb.WriteByte('\n')

	left := formatTick(h.Edges[0])
	right := formatTick(h.Edges[len(h.Edges)-1])
	width := len(h.Counts)
	pad := width - len(left) - len(right)
	if pad < 1 {
		pad = 1
	}
	sb.WriteString(strings.Repeat(" ", gutter+2))
	sb.WriteString(left)
	sb.WriteString(strings.Repeat(" ", pad))
	sb.WriteString(right)
	return sb.String()
}

func formatTick(v float64) string {
	return strconv.FormatFloat(v, 'g', 4, 64)
}
