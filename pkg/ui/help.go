package ui

import (
	"github.com/charmbracelet/glamour"
)

const helpMarkdown = `# canopy keymap

## Normal
| key | action |
|-----|--------|
| enter | open or close the group under the cursor |
| j / k, ↓ / ↑ | move the cursor |
| { / } | move ten rows up / down |
| y | copy the node path to the clipboard |
| r | refresh the side panes |
| ? | this help |
| q | quit |

## Jump (g)
t top · b bottom · p parent · n next sibling · k jump to a name

## Dataset (d)
v value window · V ranged values ("start-end") · m min/max · M mean ·
s standard deviation · c clear the values pane

## Window (w)
t tree · a attributes · v values · p plot — moves keyboard focus

## Plot (p)
x / y capture the dataset under the cursor as an axis · p render the
density plot · s save a PNG/SVG snapshot · c reset the selection

## Histogram (h)
d capture the dataset · h render · b change the bin count ·
s save a snapshot · c reset

Escape leaves any sub-mode. Prompts accept with enter and cancel with
escape.
`

// renderHelp lazily renders the keymap overlay. The glamour pass runs once
// per session (and again after a resize) rather than per frame.
func (m Model) renderHelp() Model {
	width := clampInt(m.width-4, 40, 100)
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		m.helpText = helpMarkdown
		return m
	}
	out, err := r.Render(helpMarkdown)
	if err != nil {
		m.helpText = helpMarkdown
		return m
	}
	m.helpText = clipLines(out, m.height-2)
	return m
}
