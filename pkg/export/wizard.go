package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/vanderheijden86/canopy/internal/store"
	"github.com/vanderheijden86/canopy/pkg/config"
	"github.com/vanderheijden86/canopy/pkg/plot"
)

// SnapshotWizard drives the no-TUI flow behind -snapshot: pick datasets,
// a plot kind, and an output file, then render the image without ever
// starting the explorer.
type SnapshotWizard struct {
	reader    store.Reader
	storePath string
	cfg       config.Config
}

// NewSnapshotWizard wraps an opened store for the interactive flow.
func NewSnapshotWizard(r store.Reader, storePath string, cfg config.Config) *SnapshotWizard {
	return &SnapshotWizard{reader: r, storePath: storePath, cfg: cfg}
}

// isTerminal checks if stdin is connected to a terminal.
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// newForm creates a form with appropriate settings based on TTY detection.
func newForm(groups ...*huh.Group) *huh.Form {
	form := huh.NewForm(groups...).WithTheme(huh.ThemeDracula())
	if !isTerminal() {
		form = form.WithAccessible(true)
	}
	return form
}

// Run executes the wizard flow.
func (w *SnapshotWizard) Run(ctx context.Context) error {
	fmt.Println("")
	fmt.Printf("canopy plot snapshot: %s\n", w.storePath)
	fmt.Println("")

	datasets, err := listDatasets(ctx, w.reader)
	if err != nil {
		return fmt.Errorf("walk store: %w", err)
	}
	if len(datasets) == 0 {
		return errors.New("store has no datasets to plot")
	}

	kind, err := w.collectKind()
	if err != nil {
		return err
	}

	switch kind {
	case "histogram":
		return w.runHistogram(ctx, datasets)
	default:
		return w.runDensity(ctx, datasets)
	}
}

// listDatasets walks the store and returns every dataset path in display
// order.
func listDatasets(ctx context.Context, r store.Reader) ([]string, error) {
	nodes, err := walkStore(ctx, r, "")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range nodes {
		if n.kind == store.KindDataset {
			out = append(out, n.path)
		}
	}
	return out, nil
}

func (w *SnapshotWizard) collectKind() (string, error) {
	fmt.Println("Step 1: Plot Kind")
	fmt.Println("────────────────────────────")

	kind := "histogram"
	form := newForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("What do you want to render?").
				Options(
					huh.NewOption("Histogram of one dataset", "histogram"),
					huh.NewOption("Density grid of two datasets", "density"),
				).
				Value(&kind),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	fmt.Println("")
	return kind, nil
}

func (w *SnapshotWizard) runHistogram(ctx context.Context, datasets []string) error {
	fmt.Println("Step 2: Histogram")
	fmt.Println("────────────────────────────")

	dataset := datasets[0]
	bins := strconv.Itoa(w.cfg.Explorer.HistBins)
	form := newForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Dataset").
				Options(huh.NewOptions(datasets...)...).
				Value(&dataset),
			huh.NewInput().
				Title("Bins").
				Value(&bins).
				Validate(validBins),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}
	fmt.Println("")

	out, err := w.collectOutput(suggestOutName(dataset, "hist"))
	if err != nil {
		return err
	}

	vals, err := readAllFloats(ctx, w.reader, dataset)
	if err != nil {
		return err
	}
	nbins, _ := strconv.Atoi(strings.TrimSpace(bins))
	h, err := plot.NewHist(vals, nbins)
	if err != nil {
		return fmt.Errorf("%s: %w", dataset, err)
	}
	opts := SnapshotOptions{
		Title:  dataset,
		Width:  w.cfg.Snapshot.Width,
		Height: w.cfg.Snapshot.Height,
	}
	if err := SaveHistogram(h, out, opts); err != nil {
		return err
	}
	fmt.Printf("✓ wrote %s (%d samples in %d bins)\n", out, h.Total, len(h.Counts))
	return nil
}

// Grid resolution for image-bound density plots; finer than the terminal
// pane since pixels are cheap.
const (
	densitySnapshotCols = 96
	densitySnapshotRows = 64
)

func (w *SnapshotWizard) runDensity(ctx context.Context, datasets []string) error {
	fmt.Println("Step 2: Density Grid")
	fmt.Println("────────────────────────────")

	xPath := datasets[0]
	yPath := datasets[len(datasets)-1]
	form := newForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("X dataset").
				Options(huh.NewOptions(datasets...)...).
				Value(&xPath),
			huh.NewSelect[string]().
				Title("Y dataset").
				Options(huh.NewOptions(datasets...)...).
				Value(&yPath),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}
	fmt.Println("")

	out, err := w.collectOutput(suggestOutName(xPath, "density"))
	if err != nil {
		return err
	}

	xs, err := readAllFloats(ctx, w.reader, xPath)
	if err != nil {
		return err
	}
	ys, err := readAllFloats(ctx, w.reader, yPath)
	if err != nil {
		return err
	}
	d, err := plot.NewDensity(xs, ys, densitySnapshotCols, densitySnapshotRows)
	if err != nil {
		return fmt.Errorf("%s vs %s: %w", xPath, yPath, err)
	}
	opts := SnapshotOptions{
		Title:  fmt.Sprintf("%s vs %s", yPath, xPath),
		Width:  w.cfg.Snapshot.Width,
		Height: w.cfg.Snapshot.Height,
	}
	if err := SaveDensity(d, out, opts); err != nil {
		return err
	}
	fmt.Printf("✓ wrote %s (%d points)\n", out, d.Total)
	return nil
}

func (w *SnapshotWizard) collectOutput(suggested string) (string, error) {
	fmt.Println("Step 3: Output")
	fmt.Println("────────────────────────────")

	out := suggested
	form := newForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Output file").
				Description("The extension picks the format (.png or .svg)").
				Value(&out).
				Placeholder(suggested),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	if out == "" {
		out = suggested
	}
	fmt.Println("")
	return out, nil
}

// suggestOutName derives a default image name from a dataset path.
func suggestOutName(dataset, kind string) string {
	base := path.Base(dataset)
	if base == "/" || base == "." {
		base = "plot"
	}
	return fmt.Sprintf("%s-%s.png", base, kind)
}

func validBins(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return errors.New("bins must be a positive integer")
	}
	return nil
}

// readBatch is the window size for streaming a whole dataset.
const readBatch = 4096

// readAllFloats streams every element of a dataset into memory.
func readAllFloats(ctx context.Context, r store.Reader, nodePath string) ([]float64, error) {
	n, err := r.Len(nodePath)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, n)
	for lo := 0; lo < n; lo += readBatch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hi := lo + readBatch
		if hi > n {
			hi = n
		}
		vals, err := r.Floats(nodePath, lo, hi)
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}
