package plot_test

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/vanderheijden86/canopy/pkg/plot"
)

func TestNewDensityBins(t *testing.T) {
	xs := []float64{0, 1, 0, 1}
	ys := []float64{0, 0, 1, 1}
	d, err := plot.NewDensity(xs, ys, 2, 2)
	if err != nil {
		t.Fatalf("NewDensity: %v", err)
	}

	if d.Total != 4 || d.Dropped != 0 {
		t.Errorf("Total=%d Dropped=%d, want 4 and 0", d.Total, d.Dropped)
	}
	// One point per cell; row 0 is the top, so it holds the y=1 points.
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			if d.Cells[r][c] != 1 {
				t.Errorf("cell [%d][%d] = %v, want 1", r, c, d.Cells[r][c])
			}
		}
	}
	if d.XMin != 0 || d.XMax != 1 || d.YMin != 0 || d.YMax != 1 {
		t.Errorf("bounds x[%v,%v] y[%v,%v], want unit square", d.XMin, d.XMax, d.YMin, d.YMax)
	}
}

func TestNewDensityTopRowHoldsHighY(t *testing.T) {
	xs := []float64{0, 0}
	ys := []float64{0, 10}
	d, err := plot.NewDensity(xs, ys, 1, 2)
	if err != nil {
		t.Fatalf("NewDensity: %v", err)
	}
	if d.Cells[0][0] != 1 || d.Cells[1][0] != 1 {
		t.Errorf("cells = %v, want the high point on top and the low point below", d.Cells)
	}
}

func TestNewDensityLengthMismatch(t *testing.T) {
	_, err := plot.NewDensity([]float64{1, 2}, []float64{1}, 4, 4)
	if !errors.Is(err, plot.ErrLengthMismatch) {
		t.Errorf("NewDensity = %v, want ErrLengthMismatch", err)
	}
}

func TestNewDensityDropsNonFinite(t *testing.T) {
	xs := []float64{0, math.NaN(), 2}
	ys := []float64{0, 1, math.Inf(1)}
	d, err := plot.NewDensity(xs, ys, 2, 2)
	if err != nil {
		t.Fatalf("NewDensity: %v", err)
	}
	if d.Total != 1 || d.Dropped != 2 {
		t.Errorf("Total=%d Dropped=%d, want 1 and 2", d.Total, d.Dropped)
	}
}

func TestNewDensityAllNonFinite(t *testing.T) {
	_, err := plot.NewDensity([]float64{math.NaN()}, []float64{1}, 2, 2)
	if !errors.Is(err, plot.ErrNoFiniteValues) {
		t.Errorf("NewDensity = %v, want ErrNoFiniteValues", err)
	}
}

func TestNewDensityDegenerateAxis(t *testing.T) {
	xs := []float64{5, 5, 5}
	ys := []float64{1, 2, 3}
	d, err := plot.NewDensity(xs, ys, 3, 3)
	if err != nil {
		t.Fatalf("NewDensity: %v", err)
	}
	if d.XMin != 4.5 || d.XMax != 5.5 {
		t.Errorf("degenerate x axis widened to [%v, %v], want [4.5, 5.5]", d.XMin, d.XMax)
	}
}

func TestDensityRender(t *testing.T) {
	xs := []float64{0, 0, 0, 0, 1}
	ys := []float64{1, 1, 1, 1, 0}
	d, err := plot.NewDensity(xs, ys, 2, 2)
	if err != nil {
		t.Fatalf("NewDensity: %v", err)
	}

	out := d.Render()
	lines := strings.Split(out, "\n")
	if len(lines) != 4 { // 2 grid rows, axis, labels
		t.Fatalf("Render produced %d lines, want 4", len(lines))
	}
	if !strings.Contains(lines[0], "█") {
		t.Errorf("dense cell missing from top row %q", lines[0])
	}
	if !strings.Contains(lines[0], "1 ┤") {
		t.Errorf("top row %q should carry the y max label", lines[0])
	}
	if !strings.Contains(lines[1], "░") {
		t.Errorf("sparse cell missing from bottom row %q", lines[1])
	}
}
