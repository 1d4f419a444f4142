// Package ui is the canopy explorer: a bubbletea program showing the lazy
// outline of an open store on the left and metadata, attribute, and value
// panes on the right, driven by a modal keybinding set.
package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/canopy/internal/store"
	"github.com/vanderheijden86/canopy/pkg/config"
	"github.com/vanderheijden86/canopy/pkg/debug"
	"github.com/vanderheijden86/canopy/pkg/forest"
	"github.com/vanderheijden86/canopy/pkg/plot"
	"github.com/vanderheijden86/canopy/pkg/watcher"
)

// pane identifies a focusable display surface. Window mode moves focus
// between them; focus decides which viewport scrolls and which frame is
// highlighted.
type pane int

const (
	paneTree pane = iota
	paneAttrs
	paneValues
	panePlot
)

func (p pane) String() string {
	switch p {
	case paneTree:
		return "tree"
	case paneAttrs:
		return "attributes"
	case paneValues:
		return "values"
	case panePlot:
		return "plot"
	default:
		return "unknown"
	}
}

// Model is the whole explorer state. Update follows the usual value
// receiver discipline: handlers return the modified copy.
type Model struct {
	reader     store.Reader
	storePath  string
	sourceType store.SourceType
	cfg        config.Config
	theme      Theme

	tree      *forest.Tree
	cursorRow int

	mode            Mode
	modeBeforeInput Mode
	prompt          string
	onInput         func(Model, string) (Model, tea.Cmd)

	input textinput.Model
	spin  spinner.Model

	sync        *PaneSync
	fileWatcher *watcher.Watcher

	focused  pane
	showHelp bool
	helpText string

	width, height int
	topPaneH      int
	ready         bool

	treeVP   viewport.Model
	valuesVP viewport.Model
	plotVP   viewport.Model

	paneNodePath string
	metaText     string
	attrText     string
	valuesTitle  string
	plotTitle    string

	statusMsg     string
	statusIsError bool

	// at-most-one background job per node path; value is the op label
	// shown if a duplicate request comes in.
	inFlight map[string]string

	plotX       string
	plotY       string
	histPath    string
	histBins    int
	lastHist    *plot.Hist
	lastDensity *plot.Density
}

// NewModel assembles the explorer over an already opened store. The caller
// owns the reader; Stop does not close it.
func NewModel(r store.Reader, storePath string, srcType store.SourceType, cfg config.Config) Model {
	theme := DefaultTheme(lipgloss.NewRenderer(os.Stdout))

	ti := textinput.New()
	ti.CharLimit = 256
	ti.Prompt = ""

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.PaneTitle

	tree := forest.New(r, displayRootName(storePath))

	m := Model{
		reader:     r,
		storePath:  storePath,
		sourceType: srcType,
		cfg:        cfg,
		theme:      theme,
		tree:       tree,
		input:      ti,
		spin:       sp,
		sync:       NewPaneSync(r, cfg.PollInterval()),
		focused:    paneTree,
		inFlight:   make(map[string]string),
		histBins:   cfg.Explorer.HistBins,
		statusMsg:  fmt.Sprintf("opened %s", srcType),
	}

	// Default dimensions so the UI is usable before the first
	// WindowSizeMsg arrives; slow terminals may delay it.
	m.applySize(120, 40)

	m.sync.Publish(tree.RowMap())
	m.sync.SetOffset(0)

	if !cfg.Watcher.Disabled {
		w, err := watcher.New(storePath,
			watcher.WithDebounceDuration(cfg.Debounce()),
			watcher.WithForcePoll(cfg.Watcher.ForcePolling),
		)
		if err == nil {
			if err := w.Start(); err == nil {
				m.fileWatcher = w
			} else {
				debug.Log("watcher start: %v", err)
			}
		} else {
			debug.Log("watcher init: %v", err)
		}
	}

	return m
}

// Stop tears down the background loop and the watcher. Safe to call more
// than once.
func (m Model) Stop() {
	m.sync.Stop()
	if m.fileWatcher != nil {
		m.fileWatcher.Stop()
	}
}

// Init starts the sync loop and arms the long-lived waits.
func (m Model) Init() tea.Cmd {
	m.sync.Start()
	cmds := []tea.Cmd{waitSyncMsg(m.sync), m.spin.Tick}
	if m.fileWatcher != nil {
		cmds = append(cmds, watchStoreCmd(m.fileWatcher))
	}
	return tea.Batch(cmds...)
}

// watchStoreCmd blocks on the next watcher notification.
func watchStoreCmd(w *watcher.Watcher) tea.Cmd {
	return func() tea.Msg {
		_, ok := <-w.Changed()
		if !ok {
			return nil
		}
		return storeChangedMsg{}
	}
}

// displayRootName picks the root row's label from the store path.
func displayRootName(storePath string) string {
	base := storePath
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '/' || base[i] == '\\' {
			if i == len(base)-1 {
				base = base[:i]
				continue
			}
			return base[i+1:]
		}
	}
	if base == "" {
		return "/"
	}
	return base
}

// applySize lays the panes out for a terminal of w by h cells.
func (m *Model) applySize(w, h int) {
	m.width, m.height = w, h
	m.ready = true

	// header + hint bar + status line
	const chromeRows = 3
	body := h - chromeRows
	if body < 6 {
		body = 6
	}

	treeW := int(float64(w) * m.cfg.UI.SplitRatio)
	treeW = clampInt(treeW, 20, w-30)
	rightW := w - treeW

	// Each pane loses two rows and two columns to its border.
	m.treeVP.Width = treeW - 2
	m.treeVP.Height = body - 2

	// Right column: metadata and attributes share the top half, values
	// or plot fill the bottom half.
	topH := body / 2
	if topH < 4 {
		topH = 4
	}
	bottomH := body - topH
	m.topPaneH = topH
	m.valuesVP.Width = rightW - 2
	m.valuesVP.Height = bottomH - 2
	m.plotVP.Width = rightW - 2
	m.plotVP.Height = bottomH - 2
}

// node returns the node under the cursor.
func (m Model) node() (*forest.Node, error) {
	return m.tree.NodeAtRow(m.cursorRow)
}

// moveCursor moves the cursor by delta rows, clamped, and publishes the
// new offset for the sync loop.
func (m Model) moveCursor(delta int) Model {
	return m.setCursor(m.cursorRow + delta)
}

// setCursor parks the cursor on row (clamped) and scrolls the tree
// viewport to keep it visible.
func (m Model) setCursor(row int) Model {
	m.cursorRow = forest.ClampRow(m.tree, row)
	m.sync.SetOffset(forest.OffsetOfRowStart(m.tree, m.cursorRow))
	if m.cursorRow < m.treeVP.YOffset {
		m.treeVP.SetYOffset(m.cursorRow)
	} else if m.cursorRow >= m.treeVP.YOffset+m.treeVP.Height {
		m.treeVP.SetYOffset(m.cursorRow - m.treeVP.Height + 1)
	}
	return m
}

// afterTreeEdit republishes geometry after an expand or collapse and
// re-clamps the cursor so it still addresses a real row.
func (m Model) afterTreeEdit() Model {
	m = m.setCursor(m.cursorRow)
	m.sync.Publish(m.tree.RowMap())
	m.sync.Invalidate()
	return m
}

// setStatus replaces the one-line status message.
func (m Model) setStatus(format string, args ...any) Model {
	m.statusMsg = fmt.Sprintf(format, args...)
	m.statusIsError = false
	return m
}

// setError replaces the status message with an error rendering.
func (m Model) setError(err error) Model {
	m.statusMsg = err.Error()
	m.statusIsError = true
	return m
}

// busy reports whether any background dataset job is running.
func (m Model) busy() bool { return len(m.inFlight) > 0 }

// Mode exposes the active mode for tests and the header.
func (m Model) Mode() Mode { return m.mode }

// CursorRow exposes the cursor row for tests.
func (m Model) CursorRow() int { return m.cursorRow }

// Tree exposes the outline for tests.
func (m Model) Tree() *forest.Tree { return m.tree }

// StatusLine exposes the status message and its error flag for tests.
func (m Model) StatusLine() (string, bool) { return m.statusMsg, m.statusIsError }

// requestInput suspends the current mode and captures one line. The
// continuation fires exactly once, on Enter; escape cancels it. A second
// request while one is pending is rejected, never queued.
func (m Model) requestInput(prompt string, cb func(Model, string) (Model, tea.Cmd)) (Model, tea.Cmd) {
	if m.onInput != nil {
		return m.setStatus("an input prompt is already open"), nil
	}
	m.modeBeforeInput = m.mode
	m.mode = ModeInput
	m.prompt = prompt
	m.onInput = cb
	m.input.SetValue("")
	m.input.Focus()
	return m, textinput.Blink
}

// finishInput uninstalls the continuation and restores the interrupted
// mode before handing the captured text over. The continuation decides
// where to land; completed actions return to Normal.
func (m Model) finishInput(text string) (Model, tea.Cmd) {
	cb := m.onInput
	m.onInput = nil
	m.prompt = ""
	m.input.Blur()
	m.input.SetValue("")
	m.mode = m.modeBeforeInput
	m.focused = paneTree
	if cb == nil {
		return m, nil
	}
	return cb(m, text)
}

// cancelInput drops a pending prompt without firing the continuation.
func (m Model) cancelInput() Model {
	m.onInput = nil
	m.prompt = ""
	m.input.Blur()
	m.input.SetValue("")
	m.mode = ModeNormal
	m.focused = paneTree
	return m
}

// paneStaleGrace bounds how stale a pane update may be before it is
// ignored; a paneTextMsg for a row the cursor already left gets dropped.
const paneStaleGrace = 2

// applyPaneText installs freshly fetched side-pane text. Whole-text
// replacement only; the background loop never writes incrementally.
func (m Model) applyPaneText(msg paneTextMsg) Model {
	if msg.Gen != m.tree.Gen() && absInt(msg.Row-m.cursorRow) > paneStaleGrace {
		return m
	}
	m.paneNodePath = msg.Path
	m.metaText = msg.Metadata
	m.attrText = msg.Attributes
	return m
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
