package ui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/canopy/pkg/forest"
)

// Update routes messages. Background results re-arm the channel wait;
// keys go through the modal dispatch below.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.applySize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case paneTextMsg:
		return m.applyPaneText(msg), waitSyncMsg(m.sync)

	case cursorHealMsg:
		return m.setCursor(msg.Row), waitSyncMsg(m.sync)

	case valuesMsg:
		delete(m.inFlight, msg.Path)
		if msg.Err != nil {
			return m.setError(msg.Err), waitSyncMsg(m.sync)
		}
		m.valuesVP.SetContent(msg.Text)
		m.valuesVP.GotoTop()
		m.valuesTitle = fmt.Sprintf("Values (showing %d–%d of %d)", msg.Start, msg.End, msg.Total)
		m.focused = paneValues
		return m, waitSyncMsg(m.sync)

	case reductionProgressMsg:
		m = m.setStatus("%s %s: %d/%d elements", msg.Kind, msg.Path, msg.Done, msg.Size)
		return m, waitSyncMsg(m.sync)

	case reductionDoneMsg:
		delete(m.inFlight, msg.Path)
		if msg.Err != nil {
			return m.setError(msg.Err), waitSyncMsg(m.sync)
		}
		return m.setStatus("%s", msg.Text), waitSyncMsg(m.sync)

	case plotMsg:
		delete(m.inFlight, msg.Kind)
		if msg.Err != nil {
			return m.setError(msg.Err), waitSyncMsg(m.sync)
		}
		m.plotVP.SetContent(msg.Text)
		m.plotVP.GotoTop()
		m.plotTitle = msg.Title
		m.lastHist = msg.Hist
		m.lastDensity = msg.Density
		m.focused = panePlot
		return m, waitSyncMsg(m.sync)

	case snapshotMsg:
		if msg.Err != nil {
			return m.setError(msg.Err), waitSyncMsg(m.sync)
		}
		return m.setStatus("snapshot saved to %s", msg.Path), waitSyncMsg(m.sync)

	case storeChangedMsg:
		m = m.setStatus("store changed on disk; panes refreshed")
		m.sync.Invalidate()
		if m.fileWatcher == nil {
			return m, nil
		}
		return m, watchStoreCmd(m.fileWatcher)

	case watcherErrMsg:
		return m.setError(msg.Err), nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// handleKey is the uniform boundary every binding runs inside: a handler
// returns an error and the boundary turns it into a status-line message,
// so no single binding can take the session down. The quit keys are the
// one path that bypasses the boundary.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		m.Stop()
		return m, tea.Quit
	}

	if m.showHelp {
		switch key {
		case "esc", "q", "?":
			m.showHelp = false
		}
		return m, nil
	}

	if m.mode == ModeInput {
		return m.handleInputKey(msg)
	}

	if key == "q" && m.mode == ModeNormal {
		m.Stop()
		return m, tea.Quit
	}

	var (
		next Model
		cmd  tea.Cmd
		err  error
	)
	switch m.mode {
	case ModeNormal:
		next, cmd, err = m.handleNormalKey(key)
	case ModeJump:
		next, cmd, err = m.handleJumpKey(key)
	case ModeDataset:
		next, cmd, err = m.handleDatasetKey(key)
	case ModeWindow:
		next, cmd, err = m.handleWindowKey(key)
	case ModePlot:
		next, cmd, err = m.handlePlotKey(key)
	case ModeHist:
		next, cmd, err = m.handleHistKey(key)
	default:
		next = m
	}
	if err != nil {
		next = next.reportKeyError(err)
	}
	return next, cmd
}

// reportKeyError converts a handler failure into user feedback. A cursor
// that drifted past the end of the outline is healed silently; everything
// else becomes a one-line message.
func (m Model) reportKeyError(err error) Model {
	if errors.Is(err, forest.ErrRowOutOfRange) {
		return m.setCursor(m.tree.RowCount() - 1)
	}
	return m.setError(err)
}

func (m Model) handleNormalKey(key string) (Model, tea.Cmd, error) {
	// A focused side pane takes the scroll keys; everything else still
	// lands in the tree.
	if m.focused != paneTree {
		switch key {
		case "j", "down", "k", "up", "pgdown", "pgup", "ctrl+d", "ctrl+u":
			return m.scrollFocusedPane(key), nil, nil
		}
	}

	switch key {
	case "enter":
		return m.toggleUnderCursor()
	case "j", "down":
		return m.moveCursor(1), nil, nil
	case "k", "up":
		return m.moveCursor(-1), nil, nil
	case "{":
		return m.moveCursor(-10), nil, nil
	case "}":
		return m.moveCursor(10), nil, nil
	case "g":
		m.mode = ModeJump
	case "d":
		m.mode = ModeDataset
	case "w":
		m.mode = ModeWindow
	case "p":
		m.mode = ModePlot
	case "h":
		m.mode = ModeHist
	case "y":
		return m.copyNodePath()
	case "r":
		m.sync.Invalidate()
		return m.setStatus("panes refreshed"), nil, nil
	case "?":
		m.showHelp = true
		return m.renderHelp(), nil, nil
	}
	return m, nil, nil
}

func (m Model) handleJumpKey(key string) (Model, tea.Cmd, error) {
	switch key {
	case "esc":
		m.mode = ModeNormal
		return m, nil, nil
	case "t":
		m.mode = ModeNormal
		return m.setCursor(0), nil, nil
	case "b":
		m.mode = ModeNormal
		return m.setCursor(m.tree.RowCount() - 1), nil, nil
	case "p":
		m.mode = ModeNormal
		return m.jumpToParent()
	case "n":
		m.mode = ModeNormal
		return m.jumpToNextSibling()
	case "k":
		next, cmd := m.requestInput("jump to name: ", jumpByNameCallback)
		return next, cmd, nil
	}
	return m, nil, nil
}

func (m Model) handleDatasetKey(key string) (Model, tea.Cmd, error) {
	switch key {
	case "esc":
		m.mode = ModeNormal
		return m, nil, nil
	case "v":
		return m.showValues()
	case "V":
		node, err := m.datasetUnderCursor()
		if err != nil {
			return m, nil, err
		}
		next, cmd := m.requestInput(
			fmt.Sprintf("range for %s (start-end): ", node.Path),
			valueRangeCallback(node.Path),
		)
		return next, cmd, nil
	case "m":
		return m.startReduction(reduceMinMax)
	case "M":
		return m.startReduction(reduceMean)
	case "s":
		return m.startReduction(reduceStd)
	case "c":
		m.mode = ModeNormal
		m.valuesVP.SetContent("")
		m.valuesTitle = ""
		m.focused = paneTree
		return m.setStatus("values cleared"), nil, nil
	}
	return m, nil, nil
}

func (m Model) handleWindowKey(key string) (Model, tea.Cmd, error) {
	switch key {
	case "esc":
		m.mode = ModeNormal
		m.focused = paneTree
		return m, nil, nil
	case "t":
		m.focused = paneTree
	case "a":
		m.focused = paneAttrs
	case "v":
		m.focused = paneValues
	case "p", "h":
		m.focused = panePlot
	default:
		return m, nil, nil
	}
	m.mode = ModeNormal
	return m.setStatus("focus: %s", m.focused), nil, nil
}

func (m Model) handlePlotKey(key string) (Model, tea.Cmd, error) {
	switch key {
	case "esc":
		m.mode = ModeNormal
		return m, nil, nil
	case "x":
		node, err := m.datasetUnderCursor()
		if err != nil {
			return m, nil, err
		}
		m.plotX = node.Path
		m.mode = ModeNormal
		return m.setStatus("x axis: %s", node.Path), nil, nil
	case "y":
		node, err := m.datasetUnderCursor()
		if err != nil {
			return m, nil, err
		}
		m.plotY = node.Path
		m.mode = ModeNormal
		return m.setStatus("y axis: %s", node.Path), nil, nil
	case "p":
		return m.renderDensity()
	case "s":
		return m.promptSnapshot()
	case "c":
		m.plotX, m.plotY = "", ""
		m.mode = ModeNormal
		return m.setStatus("plot selection cleared"), nil, nil
	}
	return m, nil, nil
}

func (m Model) handleHistKey(key string) (Model, tea.Cmd, error) {
	switch key {
	case "esc":
		m.mode = ModeNormal
		return m, nil, nil
	case "d":
		node, err := m.datasetUnderCursor()
		if err != nil {
			return m, nil, err
		}
		m.histPath = node.Path
		m.mode = ModeNormal
		return m.setStatus("histogram data: %s", node.Path), nil, nil
	case "h":
		return m.renderHistogram()
	case "b":
		next, cmd := m.requestInput("bin count: ", binCountCallback)
		return next, cmd, nil
	case "s":
		return m.promptSnapshot()
	case "c":
		m.histPath = ""
		m.histBins = m.cfg.Explorer.HistBins
		m.mode = ModeNormal
		return m.setStatus("histogram selection cleared"), nil, nil
	}
	return m, nil, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return m.finishInput(m.input.Value())
	case "esc":
		return m.cancelInput(), nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// scrollFocusedPane routes movement keys to whichever side pane holds
// focus. The attributes pane shows whole-text snapshots and does not
// scroll.
func (m Model) scrollFocusedPane(key string) Model {
	vp := &m.valuesVP
	switch m.focused {
	case panePlot:
		vp = &m.plotVP
	case paneAttrs:
		return m
	}
	switch key {
	case "j", "down":
		vp.LineDown(1)
	case "k", "up":
		vp.LineUp(1)
	case "pgdown", "ctrl+d":
		vp.HalfViewDown()
	case "pgup", "ctrl+u":
		vp.HalfViewUp()
	}
	return m
}
