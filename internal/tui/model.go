// Package tui is an interactive job board for a run. Supervisor events are
// forwarded into a bubbletea program; the board lists every job with its
// state and shows the recent progress lines of the selected job.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dkoosis/fanout/internal/job"
	"github.com/dkoosis/fanout/internal/monitor"
)

// maxLines caps the progress history kept per job.
const maxLines = 200

type startedMsg struct {
	spec job.Spec
	pid  int
	at   time.Time
}

type finishedMsg struct{ res job.Result }

type progressMsg struct{ em monitor.Emission }

type doneMsg struct{ err error }

type row struct {
	name     string
	state    job.State
	pid      int
	exitCode int
	started  time.Time
	finished time.Time
	lines    []string
	lastLine int
}

func (r *row) duration(now time.Time) time.Duration {
	switch {
	case r.started.IsZero():
		return 0
	case r.finished.IsZero():
		return now.Sub(r.started)
	default:
		return r.finished.Sub(r.started)
	}
}

func (r *row) appendLine(line string) {
	r.lines = append(r.lines, line)
	if len(r.lines) > maxLines {
		r.lines = r.lines[len(r.lines)-maxLines:]
	}
}

// Model is the bubbletea model of the job board.
type Model struct {
	rows     []*row
	index    map[string]int
	selected int
	spinner  spinner.Model
	viewport viewport.Model
	cancel   context.CancelFunc
	now      func() time.Time

	width     int
	height    int
	listWidth int
	ready     bool

	done        bool
	interrupted bool
	err         error
}

// NewModel returns a board listing names in order. cancel is called when the
// operator interrupts the run.
func NewModel(names []string, cancel context.CancelFunc) Model {
	m := Model{
		index:    make(map[string]int, len(names)),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(theme.running)),
		viewport: viewport.New(0, 0),
		cancel:   cancel,
		now:      time.Now,
	}
	for _, name := range names {
		m.addRow(name)
	}
	return m
}

func (m *Model) addRow(name string) *row {
	if i, ok := m.index[name]; ok {
		return m.rows[i]
	}
	r := &row{name: name, state: job.Pending}
	m.index[name] = len(m.rows)
	m.rows = append(m.rows, r)
	return r
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles key presses, window resizes and supervisor events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc":
			if m.done {
				return m, tea.Quit
			}
		case "ctrl+c":
			if m.done {
				return m, tea.Quit
			}
			if !m.interrupted && m.cancel != nil {
				m.interrupted = true
				m.cancel()
			}
		case "up", "k":
			if m.selected > 0 {
				m.selected--
				m.refreshViewport()
			}
		case "down", "j":
			if m.selected < len(m.rows)-1 {
				m.selected++
				m.refreshViewport()
			}
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.listWidth = m.calculateListWidth()
		m.viewport.Width = max(m.width-m.listWidth-8, 10)
		m.viewport.Height = max(m.height-10, 3)
		m.ready = true
		m.refreshViewport()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case startedMsg:
		r := m.addRow(msg.spec.Name)
		r.state = job.Running
		r.pid = msg.pid
		r.started = msg.at
	case finishedMsg:
		r := m.addRow(msg.res.Name)
		r.state = msg.res.State
		r.exitCode = msg.res.ExitCode
		if !msg.res.StartedAt.IsZero() {
			r.started = msg.res.StartedAt
		}
		r.finished = msg.res.FinishedAt
	case progressMsg:
		r := m.addRow(msg.em.Job)
		r.appendLine(msg.em.Line)
		r.lastLine = msg.em.LineNumber
		if m.rows[m.selected] == r {
			m.refreshViewport()
		}
	case doneMsg:
		m.done = true
		m.err = msg.err
	}
	return m, nil
}

func (m *Model) calculateListWidth() int {
	widest := 0
	for _, r := range m.rows {
		widest = max(widest, lipgloss.Width(r.name))
	}
	// icon, name, duration and box padding
	w := widest + 16
	if w > m.width/2 {
		w = m.width / 2
	}
	return max(w, 22)
}

func (m *Model) refreshViewport() {
	if m.selected < 0 || m.selected >= len(m.rows) {
		return
	}
	r := m.rows[m.selected]
	if len(r.lines) == 0 {
		m.viewport.SetContent(theme.muted.Render("no progress yet"))
		return
	}
	m.viewport.SetContent(strings.Join(r.lines, "\n"))
	m.viewport.GotoBottom()
}

// View renders the board.
func (m Model) View() string {
	if !m.ready {
		return "Starting..."
	}
	title := theme.title.Width(max(m.width-2, 10)).Render("fanout")

	list := theme.list.Width(m.listWidth).Render(m.renderList())

	var detail string
	if m.selected < len(m.rows) {
		r := m.rows[m.selected]
		header := theme.detailHeader.Render(r.name)
		detail = header + "\n\n" + m.viewport.View()
	}
	detailPanel := theme.detail.Width(max(m.width-m.listWidth-4, 10)).Render(detail)

	panels := lipgloss.JoinHorizontal(lipgloss.Top, list, detailPanel)
	return lipgloss.JoinVertical(lipgloss.Left, title, panels, theme.status.Render(m.statusText()))
}

func (m Model) renderList() string {
	now := m.now()
	lines := make([]string, 0, len(m.rows))
	for i, r := range m.rows {
		dur := ""
		if !r.started.IsZero() {
			dur = " " + formatDuration(r.duration(now))
		}
		if i == m.selected {
			lines = append(lines, theme.selected.Render(fmt.Sprintf("%s %s%s", m.rawIcon(r), r.name, dur)))
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s %s%s", m.icon(r), r.name, theme.duration.Render(dur)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) statusText() string {
	succeeded, failed, running := 0, 0, 0
	for _, r := range m.rows {
		switch r.state {
		case job.Succeeded:
			succeeded++
		case job.Failed:
			failed++
		case job.Running, job.Killed:
			running++
		}
	}
	counts := fmt.Sprintf("%d running, %d succeeded, %d failed", running, succeeded, failed)
	switch {
	case m.done && m.err != nil:
		return counts + " | failed: " + m.err.Error() + " | q quit"
	case m.done:
		return counts + " | done | q quit"
	case m.interrupted:
		return counts + " | interrupting..."
	default:
		return counts + " | ↑/↓ select • ctrl+c interrupt"
	}
}

func (m Model) icon(r *row) string {
	switch r.state {
	case job.Pending:
		return theme.pending.Render(iconPending)
	case job.Running, job.Killed:
		return m.spinner.View()
	case job.Succeeded:
		return theme.success.Render(iconSuccess)
	default:
		return theme.failed.Render(iconFailed)
	}
}

func (m Model) rawIcon(r *row) string {
	switch r.state {
	case job.Pending:
		return iconPending
	case job.Running, job.Killed:
		return iconRunning
	case job.Succeeded:
		return iconSuccess
	default:
		return iconFailed
	}
}

// Err returns the error the run finished with.
func (m Model) Err() error { return m.err }

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Round(100*time.Millisecond).Seconds())
}
