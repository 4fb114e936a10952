package console

import "github.com/charmbracelet/lipgloss"

// Styles are the lipgloss styles used for operator output.
type Styles struct {
	Error   lipgloss.Style
	Warn    lipgloss.Style
	Success lipgloss.Style
	Header  lipgloss.Style
	File    lipgloss.Style
	Muted   lipgloss.Style
}

// Icons used in job lines.
const (
	iconStart   = "\u25b6" // ▶
	iconSuccess = "\u2713" // ✓
	iconError   = "\u2717" // ✗
	iconWarn    = "\u26a0" // ⚠
	tailRule    = "\u2502" // │
)

// DefaultStyles returns the colored style set.
func DefaultStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Error:   r.NewStyle().Foreground(lipgloss.Color("#FF5F56")).Bold(true),
		Warn:    r.NewStyle().Foreground(lipgloss.Color("#FFBD2E")).Bold(true),
		Success: r.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true),
		Header:  r.NewStyle().Foreground(lipgloss.Color("#0077B6")).Bold(true),
		File:    r.NewStyle().Foreground(lipgloss.Color("#CCCCCC")),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("#626262")),
	}
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles(r *lipgloss.Renderer) Styles {
	s := r.NewStyle()
	return Styles{Error: s, Warn: s, Success: s, Header: s, File: s, Muted: s}
}
