package ui

// Mode selects which keybinding set is live. Exactly one mode is active at
// a time; sub-modes are entered from Normal by a leader key and left with
// escape. ModeInput suspends whichever mode requested it and restores that
// mode when the captured line is handed off.
type Mode int

const (
	ModeNormal Mode = iota
	ModeJump
	ModeDataset
	ModeWindow
	ModePlot
	ModeHist
	ModeInput
)

// String returns the label shown in the header and hint bar.
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "NORMAL"
	case ModeJump:
		return "JUMP"
	case ModeDataset:
		return "DATASET"
	case ModeWindow:
		return "WINDOW"
	case ModePlot:
		return "PLOT"
	case ModeHist:
		return "HISTOGRAM"
	case ModeInput:
		return "INPUT"
	default:
		return "UNKNOWN"
	}
}

// hint is one entry in the bottom hotkey strip.
type hint struct {
	key   string
	label string
}

// modeHints is the static (mode, key) reference rendered under the panes.
// The dispatch switch in update.go is the authority; this table only
// describes it.
var modeHints = map[Mode][]hint{
	ModeNormal: {
		{"enter", "open/close"},
		{"j/k", "move"},
		{"{/}", "±10"},
		{"g", "jump"},
		{"d", "dataset"},
		{"w", "window"},
		{"p", "plot"},
		{"h", "histogram"},
		{"y", "copy path"},
		{"?", "help"},
		{"q", "quit"},
	},
	ModeJump: {
		{"t", "top"},
		{"b", "bottom"},
		{"p", "parent"},
		{"n", "next sibling"},
		{"k", "by name"},
		{"esc", "back"},
	},
	ModeDataset: {
		{"v", "values"},
		{"V", "value range"},
		{"m", "min/max"},
		{"M", "mean"},
		{"s", "std dev"},
		{"c", "clear"},
		{"esc", "back"},
	},
	ModeWindow: {
		{"t", "tree"},
		{"a", "attributes"},
		{"v", "values"},
		{"p", "plot"},
		{"esc", "back"},
	},
	ModePlot: {
		{"x", "set x"},
		{"y", "set y"},
		{"p", "plot x/y"},
		{"s", "snapshot"},
		{"c", "reset"},
		{"esc", "back"},
	},
	ModeHist: {
		{"d", "set data"},
		{"h", "plot"},
		{"b", "bins"},
		{"s", "snapshot"},
		{"c", "reset"},
		{"esc", "back"},
	},
	ModeInput: {
		{"enter", "accept"},
		{"esc", "cancel"},
	},
}
