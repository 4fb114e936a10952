package tui

import "github.com/charmbracelet/lipgloss"

const (
	iconPending = "\u25cb" // ○
	iconRunning = "\u25b6" // ▶
	iconSuccess = "\u2713" // ✓
	iconFailed  = "\u2717" // ✗
)

var (
	colorPrimary = lipgloss.Color("#7D56F4")
	colorSuccess = lipgloss.Color("#04B575")
	colorError   = lipgloss.Color("#FF5F56")
	colorWarning = lipgloss.Color("#FFBD2E")
	colorMuted   = lipgloss.Color("#626262")
	colorBorder  = lipgloss.Color("#444444")
)

type styles struct {
	title        lipgloss.Style
	list         lipgloss.Style
	selected     lipgloss.Style
	detail       lipgloss.Style
	detailHeader lipgloss.Style
	status       lipgloss.Style
	pending      lipgloss.Style
	running      lipgloss.Style
	success      lipgloss.Style
	failed       lipgloss.Style
	duration     lipgloss.Style
	muted        lipgloss.Style
}

var theme = styles{
	title: lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(colorPrimary).
		Padding(0, 1),
	list: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(1, 2),
	selected: lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(colorPrimary).
		Padding(0, 1),
	detail: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorPrimary).
		Padding(1, 2),
	detailHeader: lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(colorPrimary).
		Padding(0, 1),
	status:   lipgloss.NewStyle().Foreground(colorMuted).MarginTop(1),
	pending:  lipgloss.NewStyle().Foreground(colorMuted),
	running:  lipgloss.NewStyle().Foreground(colorWarning).Bold(true),
	success:  lipgloss.NewStyle().Foreground(colorSuccess).Bold(true),
	failed:   lipgloss.NewStyle().Foreground(colorError).Bold(true),
	duration: lipgloss.NewStyle().Foreground(colorMuted).Italic(true),
	muted:    lipgloss.NewStyle().Foreground(colorMuted),
}
