package plot

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrLengthMismatch is returned when the x and y samples differ in length.
var ErrLengthMismatch = errors.New("x and y lengths differ")

// Density is a two-dimensional binning of (x, y) pairs onto a fixed grid.
// Cells is indexed [row][col] with row 0 at the TOP, matching terminal
// rendering order; y grows upward, so row 0 covers the highest y values.
type Density struct {
	Cells [][]float64
	Cols  int
	Rows  int

	XMin, XMax float64
	YMin, YMax float64

	Total   int // finite pairs binned
	Dropped int // pairs with a NaN or infinite coordinate
}

// NewDensity bins the pairs onto a cols by rows grid spanning the data
// bounds. Pairs with a non-finite coordinate are dropped. A degenerate
// axis (all values equal) gets a unit span so the grid stays well formed.
func NewDensity(xs, ys []float64, cols, rows int) (*Density, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(xs), len(ys))
	}
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	d := &Density{Cols: cols, Rows: rows}
	d.XMin, d.YMin = math.Inf(1), math.Inf(1)
	d.XMax, d.YMax = math.Inf(-1), math.Inf(-1)
	for i := range xs {
		if !finite(xs[i]) || !finite(ys[i]) {
			d.Dropped++
			continue
		}
		d.Total++
		d.XMin = math.Min(d.XMin, xs[i])
		d.XMax = math.Max(d.XMax, xs[i])
		d.YMin = math.Min(d.YMin, ys[i])
		d.YMax = math.Max(d.YMax, ys[i])
	}
	if d.Total == 0 {
		return nil, ErrNoFiniteValues
	}
	if d.XMin == d.XMax {
		d.XMin, d.XMax = d.XMin-0.5, d.XMax+0.5
	}
	if d.YMin == d.YMax {
		d.YMin, d.YMax = d.YMin-0.5, d.YMax+0.5
	}

	d.Cells = make([][]float64, rows)
	for r := range d.Cells {
		d.Cells[r] = make([]float64, cols)
	}
	xSpan := d.XMax - d.XMin
	ySpan := d.YMax - d.YMin
	for i := range xs {
		if !finite(xs[i]) || !finite(ys[i]) {
			continue
		}
		col := int((xs[i] - d.XMin) / xSpan * float64(cols))
		if col >= cols {
			col = cols - 1
		}
		// Row 0 is the top of the grid, so high y maps to low row.
		row := rows - 1 - int((ys[i]-d.YMin)/ySpan*float64(rows))
		if row < 0 {
			row = 0
		}
		d.Cells[row][col]++
	}
	return d, nil
}

// Max returns the largest cell count.
func (d *Density) Max() float64 {
	var m float64
	for _, row := range d.Cells {
		for _, c := range row {
			if c > m {
				m = c
			}
		}
	}
	return m
}

// Shade ramp from sparse to dense.
var densityLevels = []rune{' ', '░', '▒', '▓', '█'}

// Render draws the grid with a shade per cell, a y gutter, and an x axis.
func (d *Density) Render() string {
	maxCount := d.Max()
	if maxCount == 0 {
		return "(empty plot)"
	}

	top := formatTick(d.YMax)
	bottom := formatTick(d.YMin)
	gutter := len(top)
	if len(bottom) > gutter {
		gutter = len(bottom)
	}

	var sb strings.Builder
	for r, row := range d.Cells {
		switch r {
		case 0:
			fmt.Fprintf(&sb, "%*s ┤", gutter, top)
		case len(d.Cells) - 1:
			fmt.Fprintf(&sb, "%*s ┤", gutter, bottom)
		default:
			fmt.Fprintf(&sb, "%*s │", gutter, "")
		}
		for _, c := range row {
			sb.WriteRune(shade(c, maxCount))
		}
		sb.WriteByte('\n')
	}

	sb.WriteString(strings.Repeat(" ", gutter+1))
	sb.WriteRune('└')
	sb.WriteString(strings.Repeat("─", d.Cols))
	sb.WriteByte('\n')

	left := formatTick(d.XMin)
	right := formatTick(d.XMax)
	pad := d.Cols - len(left) - len(right)
	if pad < 1 {
		pad = 1
	}
	sb.WriteString(strings.Repeat(" ", gutter+2))
	sb.WriteString(left)
	sb.WriteString(strings.Repeat(" ", pad))
	sb.WriteString(right)
	return sb.String()
}

func shade(count, max float64) rune {
	if count == 0 {
		return densityLevels[0]
	}
	level := int(math.Ceil(count / max * float64(len(densityLevels)-1)))
	if level < 1 {
		level = 1
	}
	if level > len(densityLevels)-1 {
		level = len(densityLevels) - 1
	}
	return densityLevels[level]
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
