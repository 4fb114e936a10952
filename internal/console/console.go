// Package console renders a run for an operator: job start and finish lines,
// a single live status line fed by the monitor, failure tails, and the
// closing merge summary.
//
// On a terminal the live progress overwrites itself in place. Otherwise each
// progress line is printed as "job | text" so logs captured by CI stay
// readable.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dkoosis/fanout/internal/job"
	"github.com/dkoosis/fanout/internal/merge"
	"github.com/dkoosis/fanout/internal/monitor"
	"github.com/dkoosis/fanout/internal/pipeline"
	"github.com/dkoosis/fanout/internal/supervisor"
)

// Option configures a Console.
type Option func(*Console)

// WithTTY overrides terminal detection.
func WithTTY(tty bool) Option {
	return func(c *Console) { c.tty = &tty }
}

// WithWidth overrides the detected terminal width.
func WithWidth(width int) Option {
	return func(c *Console) { c.width = width }
}

// WithColor enables or disables colored output.
func WithColor(color bool) Option {
	return func(c *Console) { c.color = &color }
}

// Console writes operator-facing output. It implements supervisor.Reporter.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	tty     *bool
	color   *bool
	width   int
	styles  Styles
	status  *statusLine
	printer *message.Printer
	title   cases.Caser
}

var _ supervisor.Reporter = (*Console)(nil)

// New returns a console writing to out.
func New(out io.Writer, opts ...Option) *Console {
	c := &Console{
		out:     out,
		printer: message.NewPrinter(language.English),
		title:   cases.Title(language.English),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tty == nil {
		tty := isTerminal(out)
		c.tty = &tty
	}
	if c.color == nil {
		c.color = c.tty
	}
	if c.width <= 0 {
		c.width = terminalWidth(out)
	}

	r := lipgloss.NewRenderer(out)
	if *c.color {
		c.styles = DefaultStyles(r)
	} else {
		c.styles = PlainStyles(r)
	}
	c.status = newStatusLine(out, c.width)
	return c
}

// Interactive reports whether the console writes to a terminal.
func (c *Console) Interactive() bool { return *c.tty }

// JobStarted prints a launch line. Launch failures are reported on finish.
func (c *Console) JobStarted(spec job.Spec, pid int) {
	if pid <= 0 {
		return
	}
	c.println(fmt.Sprintf("%s %s %s",
		c.styles.Header.Render(iconStart),
		spec.Name,
		c.styles.Muted.Render(fmt.Sprintf("pid %d", pid))))
}

// JobFinished prints the outcome of a job.
func (c *Console) JobFinished(res job.Result) {
	dur := c.styles.Muted.Render(formatDuration(res.Duration()))
	if res.State == job.Succeeded {
		c.println(fmt.Sprintf("%s %s %s", c.styles.Success.Render(iconSuccess), res.Name, dur))
		return
	}
	detail := fmt.Sprintf("exit %d", res.ExitCode)
	if res.Terminated {
		detail += ", terminated"
	}
	if res.Err != nil && res.ExitCode < 0 {
		detail = res.Err.Error()
	}
	c.println(fmt.Sprintf("%s %s %s %s", c.styles.Error.Render(iconError), res.Name, c.styles.Error.Render(detail), dur))
}

// Progress shows the latest log line surfaced by the monitor.
func (c *Console) Progress(em monitor.Emission) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if *c.tty {
		c.status.draw(fmt.Sprintf("%s:%d %s", em.Job, em.LineNumber, em.Line))
		return
	}
	fmt.Fprintf(c.out, "%s | %s\n", em.Job, em.Line)
}

// Phase prints a heading for a pipeline phase.
func (c *Console) Phase(name string) {
	c.println(c.styles.Header.Render("== " + c.title.String(name) + " =="))
}

// Failure prints err with whatever diagnostic detail its type carries.
func (c *Console) Failure(err error) {
	if err == nil {
		return
	}
	var (
		prereq    *supervisor.PrerequisiteError
		failures  *supervisor.JobFailuresError
		conflicts *merge.ConflictError
	)
	switch {
	case errors.Is(err, context.Canceled):
		c.println(c.styles.Warn.Render(iconWarn + " interrupted"))
	case errors.As(err, &prereq):
		c.println(fmt.Sprintf("%s %s", c.styles.Error.Render(iconError), prereq.Error()))
		c.printTail(prereq.Result.LogPath, prereq.Tail)
	case errors.As(err, &failures):
		c.println(fmt.Sprintf("%s %s", c.styles.Error.Render(iconError), failures.Error()))
		for _, f := range failures.Jobs {
			c.println(fmt.Sprintf("%s %s (exit %d)", c.styles.Error.Render(iconError), f.Result.Name, f.Result.ExitCode))
			c.printTail(f.Result.LogPath, f.Tail)
		}
	case errors.As(err, &conflicts):
		c.println(fmt.Sprintf("%s %s", c.styles.Error.Render(iconError),
			c.printer.Sprintf("merge conflict in %d file(s)", len(conflicts.Files()))))
		for _, e := range conflicts.Conflicts {
			c.println(fmt.Sprintf("  %s: %s differs from %s", c.styles.File.Render(e.File), e.Job, e.Owner))
		}
		c.println(c.styles.Muted.Render("  files merged before the conflict were left in place"))
	default:
		c.println(fmt.Sprintf("%s %v", c.styles.Error.Render(iconError), err))
	}
}

// Summary prints the outcome of a successful run.
func (c *Console) Summary(sum pipeline.Summary) {
	c.Phase("merge summary")
	p := c.printer
	c.println(p.Sprintf("  copied             %d", sum.Merge.Copied))
	c.println(p.Sprintf("  identical skipped  %d", sum.Merge.SkippedIdentical))
	c.println(p.Sprintf("  reference ignored  %d", sum.Merge.ReferenceConflictIgnored))
	for _, rc := range sum.Merge.ReferenceConflicts {
		c.println(fmt.Sprintf("  %s %s: kept %s, discarded %s",
			c.styles.Warn.Render(iconWarn), c.styles.File.Render(rc.File), rc.KeptFrom, rc.Discarded))
	}
	if sum.Removed > 0 {
		c.println(p.Sprintf("  cleared %d previous file(s)", sum.Removed))
	}
	c.println(fmt.Sprintf("  output: %s", sum.OutputDir))
	if sum.KeptWorkspace && sum.Workspace != "" {
		c.println(fmt.Sprintf("  workspace kept: %s", sum.Workspace))
	}
}

// Workspace reports a preserved working tree after a failed run.
func (c *Console) Workspace(sum pipeline.Summary) {
	if sum.KeptWorkspace && sum.Workspace != "" {
		c.println(c.styles.Muted.Render("workspace kept: " + sum.Workspace))
	}
}

// DryRun prints the command line each job would run.
func (c *Console) DryRun(command []string, prereq *job.Spec, specs []job.Spec) {
	if prereq != nil {
		c.println(fmt.Sprintf("%s: %s", prereq.Name, formatArgv(command, prereq.Args)))
	}
	for _, s := range specs {
		c.println(fmt.Sprintf("%s: %s", s.Name, formatArgv(command, s.Args)))
	}
}

// Close clears the status line.
func (c *Console) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.clear()
}

func (c *Console) printTail(path string, tail []string) {
	if len(tail) == 0 {
		c.println(c.styles.Muted.Render(fmt.Sprintf("  (no output in %s)", path)))
		return
	}
	c.println(c.styles.Muted.Render(fmt.Sprintf("  last %d line(s) of %s", len(tail), path)))
	for _, line := range tail {
		c.println(c.styles.Muted.Render("  "+tailRule) + " " + line)
	}
}

// println writes a full line, keeping the status line below it.
func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.clear()
	fmt.Fprintln(c.out, s)
}

func formatArgv(command, args []string) string {
	parts := make([]string, 0, len(command)+len(args))
	for _, a := range append(append([]string{}, command...), args...) {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = fmt.Sprintf("%q", a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Round(100*time.Millisecond).Seconds())
}

type fder interface{ Fd() uintptr }

func isTerminal(w io.Writer) bool {
	if f, ok := w.(fder); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(fder)
	if !ok {
		f = os.Stdout
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}
