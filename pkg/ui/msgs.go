package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/canopy/pkg/plot"
)

// paneTextMsg carries freshly fetched side-pane text for the node the
// cursor sits on. Emitted by the PaneSync loop; the whole pane text is
// replaced in one assignment.
type paneTextMsg struct {
	Row        int
	Path       string
	Metadata   string
	Attributes string
	Gen        uint64
}

// cursorHealMsg reparks a cursor stranded past the end of the outline,
// typically after a large collapse removed the rows under it.
type cursorHealMsg struct {
	Row int
}

// valuesMsg delivers a formatted value window for the values pane.
type valuesMsg struct {
	Path  string
	Text  string
	Start int
	End   int
	Total int
	Err   error
}

// reductionProgressMsg reports a streaming reduction's position, in
// elements processed so far.
type reductionProgressMsg struct {
	Path string
	Kind string
	Done int
	Size int
}

// reductionDoneMsg delivers a finished reduction (or its failure).
type reductionDoneMsg struct {
	Path string
	Kind string
	Text string
	Err  error
}

// plotMsg delivers a rendered text-art plot for the plot pane, along with
// the binned data the snapshot exporter reuses.
type plotMsg struct {
	Kind    string // "histogram" or "density"
	Title   string
	Text    string
	Hist    *plot.Hist
	Density *plot.Density
	Err     error
}

// snapshotMsg reports the outcome of a plot snapshot export.
type snapshotMsg struct {
	Path string
	Err  error
}

// storeChangedMsg fires when the watcher sees the store change on disk.
type storeChangedMsg struct{}

// watcherErrMsg surfaces a watcher failure in the status line.
type watcherErrMsg struct {
	Err error
}

// waitSyncMsg blocks on the next background message. Every handled
// background message re-arms this command, so the channel is always
// drained.
func waitSyncMsg(s *PaneSync) tea.Cmd {
	return func() tea.Msg {
		return <-s.Msgs()
	}
}
