package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/fanout/internal/job"
	"github.com/dkoosis/fanout/internal/monitor"
)

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func TestModelTracksJobs(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewModel([]string{"authors", "works"}, nil)
	m.now = func() time.Time { return start.Add(3 * time.Second) }
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	m = update(t, m, startedMsg{spec: job.Spec{Name: "collect-ids"}, pid: 10, at: start})
	require.Len(t, m.rows, 3, "unlisted jobs are appended")
	assert.Equal(t, job.Running, m.rows[2].state)

	m = update(t, m, startedMsg{spec: job.Spec{Name: "authors"}, pid: 11, at: start})
	m = update(t, m, progressMsg{em: monitor.Emission{Job: "authors", Line: "parsed 10", LineNumber: 4}})
	m = update(t, m, finishedMsg{res: job.Result{Name: "works", State: job.Failed, ExitCode: 2}})

	assert.Equal(t, []string{"parsed 10"}, m.rows[0].lines)
	assert.Equal(t, 4, m.rows[0].lastLine)
	assert.Equal(t, job.Failed, m.rows[1].state)
	assert.Equal(t, 2, m.rows[1].exitCode)

	view := m.View()
	assert.Contains(t, view, "authors")
	assert.Contains(t, view, "parsed 10")
	assert.Contains(t, view, "2 running, 0 succeeded, 1 failed")
}

func TestModelSelection(t *testing.T) {
	m := NewModel([]string{"a", "b"}, nil)
	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.selected)
	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.selected, "selection stops at the last job")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.selected)
}

func TestModelInterruptAndQuit(t *testing.T) {
	cancelled := 0
	m := NewModel([]string{"a"}, func() { cancelled++ })

	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Equal(t, 1, cancelled)
	assert.True(t, m.interrupted)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Nil(t, cmd, "the board stays open until the run is done")

	m = update(t, m, doneMsg{err: errors.New("1 job(s) failed")})
	assert.EqualError(t, m.Err(), "1 job(s) failed")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestHistoryIsCapped(t *testing.T) {
	r := &row{}
	for i := 0; i < maxLines+5; i++ {
		r.appendLine("x")
	}
	assert.Len(t, r.lines, maxLines)
}

func TestReporterForwardsEvents(t *testing.T) {
	var got []tea.Msg
	r := &Reporter{send: func(msg tea.Msg) { got = append(got, msg) }, now: time.Now}

	r.JobStarted(job.Spec{Name: "a"}, 1)
	r.JobFinished(job.Result{Name: "a", State: job.Succeeded})
	r.Progress(monitor.Emission{Job: "a", Line: "x"})

	require.Len(t, got, 3)
	assert.IsType(t, startedMsg{}, got[0])
	assert.IsType(t, finishedMsg{}, got[1])
	assert.IsType(t, progressMsg{}, got[2])
}
