package output

import "github.com/charmbracelet/lipgloss"

// ANSI 256-color palette shared by the pretty formatter.
const (
	ColorPrimary = lipgloss.Color("39")
	ColorSuccess = lipgloss.Color("42")
	ColorWarning = lipgloss.Color("214")
	ColorDanger  = lipgloss.Color("196")
	ColorMuted   = lipgloss.Color("245")
)

var (
	// HeaderBox frames the run metadata.
	HeaderBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 1)

	// FooterBox frames the run summary.
	FooterBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(0, 1)
)

var (
	LabelStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	ValueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	SizeStyle    = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	GrowthStyle  = lipgloss.NewStyle().Foreground(ColorWarning)
	ShrinkStyle  = lipgloss.NewStyle().Foreground(ColorSuccess)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ColorDanger)
	MutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	WarningStyle = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
)
