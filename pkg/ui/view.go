package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View draws the whole frame: header, tree pane beside the side panes,
// the hotkey hint strip, and the status or prompt line.
func (m Model) View() string {
	if !m.ready {
		return "loading…"
	}
	if m.showHelp {
		return lipgloss.JoinVertical(lipgloss.Left,
			m.renderHeader(),
			m.helpText,
			m.renderStatusLine(),
		)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderBody(),
		m.renderHints(),
		m.renderStatusLine(),
	)
}

func (m Model) renderHeader() string {
	t := m.theme
	title := t.Header.Render("canopy")
	mode := t.ModeBadge.Render(m.mode.String())
	spin := ""
	if m.busy() {
		spin = " " + m.spin.View()
	}
	path := t.Base.Render(" " + truncate(m.storePath, m.width/2))
	src := t.SourceTag.Render(fmt.Sprintf(" [%s]", m.sourceType))
	line := title + path + src + spin
	gap := m.width - lipgloss.Width(line) - lipgloss.Width(mode)
	if gap < 1 {
		gap = 1
	}
	return line + strings.Repeat(" ", gap) + mode
}

func (m Model) renderBody() string {
	treeW := m.treeVP.Width + 2
	rightW := m.width - treeW

	tree := m.renderTreePane()
	right := m.renderSidePanes(rightW)
	return lipgloss.JoinHorizontal(lipgloss.Top, tree, right)
}

// renderTreePane windows the outline through the tree viewport with the
// cursor row highlighted.
func (m Model) renderTreePane() string {
	var b strings.Builder
	w := m.treeVP.Width
	for row := 0; row < m.tree.RowCount(); row++ {
		line := truncate(m.tree.Line(row), w)
		if row == m.cursorRow {
			line = m.theme.CursorLine.Render(padRight(line, w))
		}
		b.WriteString(line)
		if row != m.tree.RowCount()-1 {
			b.WriteByte('\n')
		}
	}
	vp := m.treeVP
	vp.SetContent(b.String())
	vp.SetYOffset(m.treeVP.YOffset)

	style := m.theme.Pane
	if m.focused == paneTree {
		style = m.theme.PaneFocused
	}
	return style.Width(m.treeVP.Width).Height(m.treeVP.Height).Render(vp.View())
}

func (m Model) renderSidePanes(width int) string {
	topH := m.topPaneH
	meta := m.renderTextPane("Metadata", m.metaText, width/2, topH, false)
	attrs := m.renderTextPane("Attributes", m.attrText, width-width/2, topH, m.focused == paneAttrs)
	top := lipgloss.JoinHorizontal(lipgloss.Top, meta, attrs)

	var bottom string
	if m.focused == panePlot || (m.plotTitle != "" && m.focused != paneValues) {
		title := m.plotTitle
		if title == "" {
			title = "Plot"
		}
		bottom = m.renderViewportPane(title, m.plotVP, width, m.focused == panePlot)
	} else {
		title := m.valuesTitle
		if title == "" {
			title = "Values"
		}
		bottom = m.renderViewportPane(title, m.valuesVP, width, m.focused == paneValues)
	}
	return lipgloss.JoinVertical(lipgloss.Left, top, bottom)
}

// renderTextPane frames a whole-text side pane. The text is replaced in
// one piece by the sync loop; there is nothing to scroll.
func (m Model) renderTextPane(title, text string, width, height int, focused bool) string {
	style := m.theme.Pane
	if focused {
		style = m.theme.PaneFocused
	}
	inner := width - 2
	body := m.theme.PaneTitle.Render(truncate(title, inner)) + "\n" + text
	return style.Width(inner).Height(height - 2).Render(clipLines(body, height-2))
}

// renderViewportPane frames a scrollable pane.
func (m Model) renderViewportPane(title string, vp interface{ View() string }, width int, focused bool) string {
	style := m.theme.Pane
	if focused {
		style = m.theme.PaneFocused
	}
	inner := width - 2
	body := m.theme.PaneTitle.Render(truncate(title, inner)) + "\n" + vp.View()
	return style.Width(inner).Render(body)
}

// renderHints draws the active mode's hotkey strip.
func (m Model) renderHints() string {
	t := m.theme
	parts := make([]string, 0, len(modeHints[m.mode]))
	for _, h := range modeHints[m.mode] {
		parts = append(parts, t.HintKey.Render(h.key)+" "+t.HintLabel.Render(h.label))
	}
	return truncate(" "+strings.Join(parts, "  "), m.width)
}

// renderStatusLine shows the minibuffer prompt while input is captured
// and the one-line status message otherwise.
func (m Model) renderStatusLine() string {
	if m.mode == ModeInput {
		return m.theme.Prompt.Render(m.prompt) + m.input.View()
	}
	if m.statusMsg == "" {
		return ""
	}
	style := m.theme.StatusOK
	prefix := " "
	if m.statusIsError {
		style = m.theme.StatusErr
		prefix = " ✗ "
	}
	return style.Render(truncate(prefix+m.statusMsg, m.width))
}

// clipLines keeps at most n lines of s.
func clipLines(s string, n int) string {
	if n <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n")
}
