package ui

import (
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/canopy/internal/store"
	"github.com/vanderheijden86/canopy/pkg/config"
)

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// stripANSI removes escape sequences for plain-text assertions on View().
func stripANSI(s string) string { return ansiRe.ReplaceAllString(s, "") }

// fakeReader serves a canned hierarchy plus numeric datasets, recording
// child-list traffic so tests can assert on fetch counts.
type fakeReader struct {
	children map[string][]store.Entry
	data     map[string][]float64
	fail     map[string]error
	calls    map[string]int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		children: map[string][]store.Entry{
			"/": {
				{Name: "alpha", Kind: store.KindGroup, HasChildren: true},
				{Name: "beta", Kind: store.KindDataset},
			},
			"/alpha": {
				{Name: "x", Kind: store.KindDataset},
			},
		},
		data: map[string][]float64{
			"/beta":    {0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
			"/alpha/x": {1, 1, 2, 2},
		},
		fail:  map[string]error{},
		calls: map[string]int{},
	}
}

func (f *fakeReader) ListChildren(path string) ([]store.Entry, error) {
	f.calls[path]++
	if err := f.fail[path]; err != nil {
		return nil, err
	}
	return f.children[path], nil
}

func (f *fakeReader) Metadata(path string) (string, error) {
	return "metadata for " + path, nil
}

func (f *fakeReader) Attributes(path string) (string, error) {
	return "attributes for " + path, nil
}

func (f *fakeReader) Values(path string, start, end int) (string, int, error) {
	vals, ok := f.data[path]
	if !ok {
		return "", 0, store.ErrNotDataset
	}
	// Window the request the same way the real backends do.
	lo, hi := store.ClampValueRange(start, end, len(vals))
	parts := make([]string, 0, hi-lo)
	for i := lo; i < hi; i++ {
		parts = append(parts, fmt.Sprintf("[%d] %g", i, vals[i]))
	}
	return strings.Join(parts, "\n"), len(vals), nil
}

func (f *fakeReader) Floats(path string, start, end int) ([]float64, error) {
	vals, ok := f.data[path]
	if !ok {
		return nil, store.ErrNotDataset
	}
	if start < 0 {
		start = 0
	}
	if end > len(vals) {
		end = len(vals)
	}
	return vals[start:end], nil
}

func (f *fakeReader) Len(path string) (int, error) {
	vals, ok := f.data[path]
	if !ok {
		return 0, store.ErrNotDataset
	}
	return len(vals), nil
}

func (f *fakeReader) Close() error { return nil }

// newTestModel builds a model over the fake reader with the watcher off.
func newTestModel(t *testing.T) (Model, *fakeReader) {
	t.Helper()
	r := newFakeReader()
	cfg := config.DefaultConfig()
	cfg.Watcher.Disabled = true
	m := NewModel(r, "/tmp/sample.zarr", store.SourceTypeZarrDir, cfg)
	m.theme = TestTheme()
	t.Cleanup(m.Stop)
	return m, r
}

// press runs one key through Update and returns the new model.
func press(t *testing.T, m Model, key string) Model {
	t.Helper()
	var msg tea.KeyMsg
	switch key {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEscape}
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+c":
		msg = tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, _ := m.Update(msg)
	return next.(Model)
}

// pressAll runs a key sequence.
func pressAll(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		m = press(t, m, k)
	}
	return m
}

// typeText feeds each rune of text through the input capture path.
func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		m = press(t, m, string(r))
	}
	return m
}

// drainBackground pulls one background message (posted via the sync
// channel) and applies it, failing the test on timeout.
func drainBackground(t *testing.T, m Model) Model {
	t.Helper()
	select {
	case msg := <-m.sync.Msgs():
		next, _ := m.Update(msg)
		return next.(Model)
	case <-time.After(2 * time.Second):
		t.Fatalf("no background message arrived")
		return m
	}
}
