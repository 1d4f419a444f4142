package export

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"git.sr.ht/~sbinet/gg"
	svg "github.com/ajstarks/svgo"
	"golang.org/x/image/font/basicfont"

	"github.com/vanderheijden86/canopy/pkg/plot"
)

// SnapshotOptions controls a rendered plot image.
type SnapshotOptions struct {
	// Format is "png" or "svg"; empty infers from the path extension.
	Format string
	// Title is drawn across the top; a default is picked when empty.
	Title string
	// Width and Height are in pixels; zero picks 1024x640.
	Width  int
	Height int
}

const (
	defaultSnapshotWidth  = 1024
	defaultSnapshotHeight = 640

	snapMarginLeft   = 72.0
	snapMarginRight  = 32.0
	snapMarginTop    = 76.0
	snapMarginBottom = 58.0
)

var (
	snapBackground = color.RGBA{248, 250, 252, 255}
	snapPanel      = color.RGBA{255, 255, 255, 255}
	snapBorder     = color.RGBA{226, 232, 240, 255}
	snapGrid       = color.RGBA{226, 232, 240, 255}
	snapAxis       = color.RGBA{100, 116, 139, 255}
	snapText       = color.RGBA{15, 23, 42, 255}
	snapSubtle     = color.RGBA{100, 116, 139, 255}
	snapBar        = color.RGBA{59, 130, 246, 255}
	snapCellLow    = color.RGBA{239, 246, 255, 255}
	snapCellHigh   = color.RGBA{30, 64, 175, 255}
)

// SaveHistogram writes a histogram image to path.
func SaveHistogram(h *plot.Hist, path string, opts SnapshotOptions) error {
	if h == nil || len(h.Counts) == 0 {
		return errors.New("no histogram to render")
	}
	if opts.Title == "" {
		opts.Title = "Histogram"
	}
	format := resolveSnapshotFormat(path, opts.Format)
	if err := ensureParentDir(path); err != nil {
		return err
	}
	switch format {
	case "png":
		return renderHistPNG(h, path, opts)
	case "svg":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		renderHistSVG(f, h, opts)
		return nil
	default:
		return fmt.Errorf("unsupported snapshot format %q", format)
	}
}

// SaveDensity writes a density-grid image to path.
func SaveDensity(d *plot.Density, path string, opts SnapshotOptions) error {
	if d == nil || d.Cols == 0 || d.Rows == 0 {
		return errors.New("no density grid to render")
	}
	if opts.Title == "" {
		opts.Title = "Density"
	}
	format := resolveSnapshotFormat(path, opts.Format)
	if err := ensureParentDir(path); err != nil {
		return err
	}
	switch format {
	case "png":
		return renderDensityPNG(d, path, opts)
	case "svg":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		renderDensitySVG(f, d, opts)
		return nil
	default:
		return fmt.Errorf("unsupported snapshot format %q", format)
	}
}

// resolveSnapshotFormat picks the output format: an explicit option wins,
// then the extension, then SVG.
func resolveSnapshotFormat(path, format string) string {
	if format != "" {
		return format
	}
	if filepath.Ext(path) == ".png" {
		return "png"
	}
	return "svg"
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// frame is the shared plot geometry for both output formats.
type frame struct {
	w, h   int
	x, y   float64 // top-left corner of the plot rect
	pw, ph float64
}

func newFrame(w, h int) frame {
	if w <= 0 {
		w = defaultSnapshotWidth
	}
	if h <= 0 {
		h = defaultSnapshotHeight
	}
	return frame{
		w:  w,
		h:  h,
		x:  snapMarginLeft,
		y:  snapMarginTop,
		pw: float64(w) - snapMarginLeft - snapMarginRight,
		ph: float64(h) - snapMarginTop - snapMarginBottom,
	}
}

func (f frame) bottom() float64 { return f.y + f.ph }
func (f frame) right() float64  { return f.x + f.pw }

func renderHistPNG(h *plot.Hist, path string, opts SnapshotOptions) error {
	f := newFrame(opts.Width, opts.Height)
	dc := gg.NewContext(f.w, f.h)
	dc.SetColor(snapBackground)
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)

	drawPanelPNG(dc, f)
	dc.SetColor(snapText)
	dc.DrawStringAnchored(truncate(opts.Title, 90), float64(f.w)/2, 26, 0.5, 0.5)
	dc.SetColor(snapSubtle)
	dc.DrawStringAnchored(histCaption(h), float64(f.w)/2, 44, 0.5, 0.5)

	// Horizontal gridlines with count labels, quarters of the peak.
	max := h.MaxCount()
	dc.SetLineWidth(1)
	for i := 1; i <= 4; i++ {
		frac := float64(i) / 4
		y := f.bottom() - frac*f.ph
		dc.SetColor(snapGrid)
		dc.DrawLine(f.x, y, f.right(), y)
		dc.Stroke()
		dc.SetColor(snapSubtle)
		dc.DrawStringAnchored(countLabel(frac*max), f.x-8, y, 1, 0.5)
	}
	dc.SetColor(snapSubtle)
	dc.DrawStringAnchored("0", f.x-8, f.bottom(), 1, 0.5)

	bw := f.pw / float64(len(h.Counts))
	dc.SetColor(snapBar)
	for i, c := range h.Counts {
		bh := c / max * f.ph
		if bh <= 0 {
			continue
		}
		dc.DrawRectangle(f.x+float64(i)*bw+1, f.bottom()-bh, bw-2, bh)
		dc.Fill()
	}

	dc.SetColor(snapAxis)
	dc.SetLineWidth(1.5)
	dc.DrawLine(f.x, f.y, f.x, f.bottom())
	dc.DrawLine(f.x, f.bottom(), f.right(), f.bottom())
	dc.Stroke()

	dc.SetColor(snapSubtle)
	lo, hi := h.Edges[0], h.Edges[len(h.Edges)-1]
	dc.DrawStringAnchored(tick(lo), f.x, f.bottom()+16, 0, 0.5)
	dc.DrawStringAnchored(tick((lo+hi)/2), f.x+f.pw/2, f.bottom()+16, 0.5, 0.5)
	dc.DrawStringAnchored(tick(hi), f.right(), f.bottom()+16, 1, 0.5)

	return dc.SavePNG(path)
}

func renderHistSVG(w io.Writer, h *plot.Hist, opts SnapshotOptions) {
	f := newFrame(opts.Width, opts.Height)
	canvas := svg.New(w)
	canvas.Start(f.w, f.h)
	canvas.Rect(0, 0, f.w, f.h, "fill:"+css(snapBackground))
	drawPanelSVG(canvas, f)
	canvas.Text(f.w/2, 30, truncate(opts.Title, 90), svgTitleStyle)
	canvas.Text(f.w/2, 48, histCaption(h), svgCaptionStyle)

	max := h.MaxCount()
	for i := 1; i <= 4; i++ {
		frac := float64(i) / 4
		y := px(f.bottom() - frac*f.ph)
		canvas.Line(px(f.x), y, px(f.right()), y, "stroke:"+css(snapGrid)+";stroke-width:1")
		canvas.Text(px(f.x-8), y+4, countLabel(frac*max), svgTickEndStyle)
	}
	canvas.Text(px(f.x-8), px(f.bottom())+4, "0", svgTickEndStyle)

	bw := f.pw / float64(len(h.Counts))
	for i, c := range h.Counts {
		bh := c / max * f.ph
		if bh <= 0 {
			continue
		}
		canvas.Rect(px(f.x+float64(i)*bw+1), px(f.bottom()-bh), px(bw-2), px(bh),
			"fill:"+css(snapBar))
	}

	canvas.Line(px(f.x), px(f.y), px(f.x), px(f.bottom()), svgAxisStyle)
	canvas.Line(px(f.x), px(f.bottom()), px(f.right()), px(f.bottom()), svgAxisStyle)

	lo, hi := h.Edges[0], h.Edges[len(h.Edges)-1]
	canvas.Text(px(f.x), px(f.bottom())+20, tick(lo), svgTickStartStyle)
	canvas.Text(px(f.x+f.pw/2), px(f.bottom())+20, tick((lo+hi)/2), svgTickMidStyle)
	canvas.Text(px(f.right()), px(f.bottom())+20, tick(hi), svgTickEndStyle)
	canvas.End()
}

func renderDensityPNG(d *plot.Density, path string, opts SnapshotOptions) error {
	f := newFrame(opts.Width, opts.Height)
	dc := gg.NewContext(f.w, f.h)
	dc.SetColor(snapBackground)
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)

	drawPanelPNG(dc, f)
	dc.SetColor(snapText)
	dc.DrawStringAnchored(truncate(opts.Title, 90), float64(f.w)/2, 26, 0.5, 0.5)
	dc.SetColor(snapSubtle)
	dc.DrawStringAnchored(densityCaption(d), float64(f.w)/2, 44, 0.5, 0.5)

	max := d.Max()
	cw := f.pw / float64(d.Cols)
	ch := f.ph / float64(d.Rows)
	for r, row := range d.Cells {
		for c, count := range row {
			if count <= 0 {
				continue
			}
			dc.SetColor(heat(count / max))
			dc.DrawRectangle(f.x+float64(c)*cw, f.y+float64(r)*ch, cw, ch)
			dc.Fill()
		}
	}

	dc.SetColor(snapAxis)
	dc.SetLineWidth(1.5)
	dc.DrawLine(f.x, f.y, f.x, f.bottom())
	dc.DrawLine(f.x, f.bottom(), f.right(), f.bottom())
	dc.Stroke()

	dc.SetColor(snapSubtle)
	dc.DrawStringAnchored(tick(d.YMax), f.x-8, f.y, 1, 0.5)
	dc.DrawStringAnchored(tick(d.YMin), f.x-8, f.bottom(), 1, 0.5)
	dc.DrawStringAnchored(tick(d.XMin), f.x, f.bottom()+16, 0, 0.5)
	dc.DrawStringAnchored(tick(d.XMax), f.right(), f.bottom()+16, 1, 0.5)

	return dc.SavePNG(path)
}

func renderDensitySVG(w io.Writer, d *plot.Density, opts SnapshotOptions) {
	f := newFrame(opts.Width, opts.Height)
	canvas := svg.New(w)
	canvas.Start(f.w, f.h)
	canvas.Rect(0, 0, f.w, f.h, "fill:"+css(snapBackground))
	drawPanelSVG(canvas, f)
	canvas.Text(f.w/2, 30, truncate(opts.Title, 90), svgTitleStyle)
	canvas.Text(f.w/2, 48, densityCaption(d), svgCaptionStyle)

	max := d.Max()
	cw := f.pw / float64(d.Cols)
	ch := f.ph / float64(d.Rows)
	for r, row := range d.Cells {
		for c, count := range row {
			if count <= 0 {
				continue
			}
			canvas.Rect(px(f.x+float64(c)*cw), px(f.y+float64(r)*ch),
				px(cw)+1, px(ch)+1, "fill:"+css(heat(count/max)))
		}
	}

	canvas.Line(px(f.x), px(f.y), px(f.x), px(f.bottom()), svgAxisStyle)
	canvas.Line(px(f.x), px(f.bottom()), px(f.right()), px(f.bottom()), svgAxisStyle)

	canvas.Text(px(f.x-8), px(f.y)+4, tick(d.YMax), svgTickEndStyle)
	canvas.Text(px(f.x-8), px(f.bottom())+4, tick(d.YMin), svgTickEndStyle)
	canvas.Text(px(f.x), px(f.bottom())+20, tick(d.XMin), svgTickStartStyle)
	canvas.Text(px(f.right()), px(f.bottom())+20, tick(d.XMax), svgTickEndStyle)
	canvas.End()
}

func drawPanelPNG(dc *gg.Context, f frame) {
	dc.SetColor(snapPanel)
	dc.DrawRoundedRectangle(f.x-12, f.y-12, f.pw+24, f.ph+24, 8)
	dc.Fill()
	dc.SetColor(snapBorder)
	dc.SetLineWidth(1)
	dc.DrawRoundedRectangle(f.x-12, f.y-12, f.pw+24, f.ph+24, 8)
	dc.Stroke()
}

func drawPanelSVG(canvas *svg.SVG, f frame) {
	canvas.Roundrect(px(f.x-12), px(f.y-12), px(f.pw+24), px(f.ph+24), 8, 8,
		"fill:"+css(snapPanel)+";stroke:"+css(snapBorder)+";stroke-width:1")
}

func histCaption(h *plot.Hist) string {
	s := fmt.Sprintf("%d samples, %d bins", h.Total, len(h.Counts))
	if h.Dropped > 0 {
		s += fmt.Sprintf(" (%d non-finite dropped)", h.Dropped)
	}
	return s
}

func densityCaption(d *plot.Density) string {
	s := fmt.Sprintf("%d points on a %dx%d grid", d.Total, d.Cols, d.Rows)
	if d.Dropped > 0 {
		s += fmt.Sprintf(" (%d non-finite dropped)", d.Dropped)
	}
	return s
}

var (
	svgTitleStyle     = "font-family:monospace;font-size:15px;fill:" + css(snapText) + ";text-anchor:middle"
	svgCaptionStyle   = "font-family:monospace;font-size:12px;fill:" + css(snapSubtle) + ";text-anchor:middle"
	svgTickStartStyle = "font-family:monospace;font-size:12px;fill:" + css(snapSubtle) + ";text-anchor:start"
	svgTickMidStyle   = "font-family:monospace;font-size:12px;fill:" + css(snapSubtle) + ";text-anchor:middle"
	svgTickEndStyle   = "font-family:monospace;font-size:12px;fill:" + css(snapSubtle) + ";text-anchor:end"
	svgAxisStyle      = "stroke:" + css(snapAxis) + ";stroke-width:1.5"
)

// heat maps a density fraction in [0, 1] onto the cell color ramp.
func heat(frac float64) color.RGBA {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	lerp := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a) + (float64(b)-float64(a))*frac))
	}
	return color.RGBA{
		lerp(snapCellLow.R, snapCellHigh.R),
		lerp(snapCellLow.G, snapCellHigh.G),
		lerp(snapCellLow.B, snapCellHigh.B),
		255,
	}
}

func css(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func px(v float64) int { return int(math.Round(v)) }

func tick(v float64) string { return strconv.FormatFloat(v, 'g', 4, 64) }

func countLabel(v float64) string { return strconv.Itoa(int(math.Round(v))) }

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
