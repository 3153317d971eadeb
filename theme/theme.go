package theme

import "github.com/charmbracelet/lipgloss"

// Theme holds the monitor's lipgloss styles and glyphs.
type Theme struct {
	Title   lipgloss.Style
	Section lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style
	Accent  lipgloss.Style
	Warning lipgloss.Style

	Symbols Symbols
}

type Symbols struct {
	BeatOff      rune // · beat not reached
	BeatOn       rune // ● current beat
	BeatAccent   rune // ◉ current accented beat
	ProgressFull rune // █
	ProgressPart rune // ░
	TransitionUp rune // ↗ tempo rising
	TransitionDn rune // ↘ tempo falling
}

// New builds the default theme.
func New() *Theme {
	fg := lipgloss.Color("#d8b4fe")
	muted := lipgloss.Color("#6b21a8")
	accent := lipgloss.Color("#f0abfc")
	warning := lipgloss.Color("#fb923c")

	return &Theme{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(accent),
		Section: lipgloss.NewStyle().Foreground(fg).Bold(true),
		Label:   lipgloss.NewStyle().Foreground(muted),
		Value:   lipgloss.NewStyle().Foreground(fg),
		Muted:   lipgloss.NewStyle().Foreground(muted),
		Accent:  lipgloss.NewStyle().Foreground(accent).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(warning),

		Symbols: Symbols{
			BeatOff:      '·',
			BeatOn:       '●',
			BeatAccent:   '◉',
			ProgressFull: '█',
			ProgressPart: '░',
			TransitionUp: '↗',
			TransitionDn: '↘',
		},
	}
}
