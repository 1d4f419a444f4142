package ui

import (
	"os"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"
)

// TermProfile holds the detected terminal color profile. Computed once at
// package init so style helpers can branch without re-detecting.
var TermProfile colorprofile.Profile

func init() {
	TermProfile = colorprofile.Detect(os.Stdout, os.Environ())
}

// ThemeFg returns the given hex color for ANSI256+ terminals and a safe
// ANSI white for 16-color or lower terminals.
func ThemeFg(hex string) lipgloss.TerminalColor {
	if TermProfile < colorprofile.ANSI256 {
		return lipgloss.ANSIColor(7)
	}
	return lipgloss.Color(hex)
}

// Theme carries the explorer's colors and the pre-built styles derived
// from them. Styles are computed once at startup, not per frame.
type Theme struct {
	Renderer *lipgloss.Renderer

	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Subtext   lipgloss.AdaptiveColor
	Border    lipgloss.AdaptiveColor
	Highlight lipgloss.AdaptiveColor
	Muted     lipgloss.AdaptiveColor
	Error     lipgloss.AdaptiveColor
	Success   lipgloss.AdaptiveColor

	Base        lipgloss.Style
	Header      lipgloss.Style
	SourceTag   lipgloss.Style
	ModeBadge   lipgloss.Style
	PaneTitle   lipgloss.Style
	Pane        lipgloss.Style
	PaneFocused lipgloss.Style
	CursorLine  lipgloss.Style
	StatusErr   lipgloss.Style
	StatusOK    lipgloss.Style
	HintKey     lipgloss.Style
	HintLabel   lipgloss.Style
	Prompt      lipgloss.Style
}

// DefaultTheme returns the standard Dracula-inspired adaptive theme.
func DefaultTheme(r *lipgloss.Renderer) Theme {
	t := Theme{
		Renderer: r,

		Primary:   lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"},
		Secondary: lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"},
		Subtext:   lipgloss.AdaptiveColor{Light: "#666666", Dark: "#BFBFBF"},
		Border:    lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#44475A"},
		Highlight: lipgloss.AdaptiveColor{Light: "#E0E0E0", Dark: "#44475A"},
		Muted:     lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"},
		Error:     lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"},
		Success:   lipgloss.AdaptiveColor{Light: "#007700", Dark: "#50FA7B"},
	}

	t.Base = r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#F8F8F2"})
	t.Header = r.NewStyle().
		Background(t.Primary).
		Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#282A36"}).
		Bold(true).
		Padding(0, 1)
	t.SourceTag = r.NewStyle().Foreground(ThemeFg("#8BE9FD"))
	t.ModeBadge = r.NewStyle().
		Background(t.Highlight).
		Foreground(t.Primary).
		Bold(true).
		Padding(0, 1)
	t.PaneTitle = r.NewStyle().Foreground(t.Primary).Bold(true)
	t.Pane = r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border)
	t.PaneFocused = r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Primary)
	t.CursorLine = r.NewStyle().
		Background(t.Highlight).
		Bold(true)
	t.StatusErr = r.NewStyle().Foreground(t.Error).Bold(true)
	t.StatusOK = r.NewStyle().Foreground(t.Success)
	t.HintKey = r.NewStyle().Foreground(t.Primary).Bold(true)
	t.HintLabel = r.NewStyle().Foreground(t.Muted)
	t.Prompt = r.NewStyle().Foreground(t.Primary).Bold(true)

	return t
}

// TestTheme returns a theme suitable for use in tests.
func TestTheme() Theme {
	return DefaultTheme(lipgloss.NewRenderer(os.Stdout))
}
