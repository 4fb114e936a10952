package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dkoosis/fanout/internal/job"
	"github.com/dkoosis/fanout/internal/monitor"
	"github.com/dkoosis/fanout/internal/supervisor"
)

// Reporter forwards supervisor events into a running program.
type Reporter struct {
	send func(tea.Msg)
	now  func() time.Time
}

var _ supervisor.Reporter = (*Reporter)(nil)

// NewReporter returns a reporter that sends events to p.
func NewReporter(p *tea.Program) *Reporter {
	return &Reporter{send: p.Send, now: time.Now}
}

func (r *Reporter) JobStarted(spec job.Spec, pid int) {
	r.send(startedMsg{spec: spec, pid: pid, at: r.now()})
}

func (r *Reporter) JobFinished(res job.Result) {
	r.send(finishedMsg{res: res})
}

func (r *Reporter) Progress(em monitor.Emission) {
	r.send(progressMsg{em: em})
}

// Run shows the board while work executes. Interrupting from the board
// cancels the context passed to work. Run returns once work has finished
// and the operator has closed the board.
func Run(ctx context.Context, names []string, work func(ctx context.Context, r supervisor.Reporter) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(names, cancel), tea.WithAltScreen())

	result := make(chan error, 1)
	go func() {
		err := work(ctx, NewReporter(p))
		result <- err
		p.Send(doneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		if werr := <-result; werr != nil {
			return werr
		}
		return err
	}
	return <-result
}
