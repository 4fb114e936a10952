// Package supervisor runs jobs in two phases: a prerequisite job that must
// succeed on its own, then a fixed set of jobs launched together and polled
// until every one of them has exited.
//
// The poll loop is single threaded. Each tick samples the live monitor once,
// checks every unfinished job without blocking, and sleeps for the sampling
// interval only when nothing changed. With fail-fast enabled the first
// failure triggers a termination request to every sibling still running;
// those siblings are then observed exiting on later ticks like any other job.
package supervisor

import (
	"context"
	"time"

	"github.com/phuslu/log"

	"github.com/dkoosis/fanout/internal/job"
	"github.com/dkoosis/fanout/internal/logging"
	"github.com/dkoosis/fanout/internal/monitor"
)

// DefaultInterval is the pause between ticks in which no job changed state.
const DefaultInterval = time.Second

// DefaultTailLines is the number of log lines attached to failures.
const DefaultTailLines = 20

// Reporter observes supervisor progress. Calls are made from the poll loop.
type Reporter interface {
	JobStarted(spec job.Spec, pid int)
	JobFinished(res job.Result)
	Progress(em monitor.Emission)
}

// NopReporter ignores every event.
type NopReporter struct{}

func (NopReporter) JobStarted(job.Spec, int)  {}
func (NopReporter) JobFinished(job.Result)    {}
func (NopReporter) Progress(monitor.Emission) {}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithInterval sets the idle pause between ticks.
func WithInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSleep replaces the function used to pause between ticks.
func WithSleep(fn func(ctx context.Context, d time.Duration)) Option {
	return func(s *Supervisor) { s.sleep = fn }
}

// WithReporter registers an observer for job events and live progress.
func WithReporter(r Reporter) Option {
	return func(s *Supervisor) { s.reporter = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithTailLines sets how many log lines are attached to failures.
func WithTailLines(n int) Option {
	return func(s *Supervisor) { s.tailLines = n }
}

// WithClock overrides the time source used for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// Supervisor launches jobs and tracks them to completion.
type Supervisor struct {
	launcher  job.Launcher
	monitor   *monitor.Monitor
	interval  time.Duration
	sleep     func(ctx context.Context, d time.Duration)
	reporter  Reporter
	logger    *log.Logger
	tailLines int
	now       func() time.Time
}

// New constructs a supervisor that starts workers through launcher.
func New(launcher job.Launcher, opts ...Option) *Supervisor {
	s := &Supervisor{
		launcher:  launcher,
		monitor:   monitor.New(),
		interval:  DefaultInterval,
		sleep:     sleepContext,
		reporter:  NopReporter{},
		logger:    logging.Discard(),
		tailLines: DefaultTailLines,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunPrerequisite runs spec to completion, blocking the caller. A nonzero
// exit returns a *PrerequisiteError carrying the tail of the job's log.
func (s *Supervisor) RunPrerequisite(ctx context.Context, spec job.Spec) (job.Result, error) {
	s.logger.Info().Str("job", spec.Name).Msg("running prerequisite")
	results := s.run(ctx, []job.Spec{spec}, false)
	res, _ := results.Get(spec.Name)
	if res.State == job.Succeeded {
		return res, nil
	}
	tail := s.tail(res)
	cause := res.Err
	if ctx.Err() != nil {
		cause = ctx.Err()
	}
	return res, &PrerequisiteError{Result: res, Tail: tail, Err: cause}
}

// RunParallel launches every spec and polls until all of them are terminal.
// It never fails on individual jobs: the returned results hold every job's
// outcome and Failures turns them into an error for the caller.
func (s *Supervisor) RunParallel(ctx context.Context, specs []job.Spec, failFast bool) job.Results {
	s.logger.Info().Int("jobs", len(specs)).Bool("fail_fast", failFast).Msg("launching parallel jobs")
	return s.run(ctx, specs, failFast)
}

// Failures returns a *JobFailuresError describing every failed job, or nil.
func (s *Supervisor) Failures(results job.Results) error {
	failed := results.Failed()
	if len(failed) == 0 {
		return nil
	}
	jobs := make([]FailedJob, 0, len(failed))
	for _, res := range failed {
		jobs = append(jobs, FailedJob{Result: res, Tail: s.tail(res)})
	}
	return &JobFailuresError{Jobs: jobs}
}

func (s *Supervisor) run(ctx context.Context, specs []job.Spec, failFast bool) job.Results {
	results := job.NewResults(specs)
	handles := make([]*job.Handle, 0, len(specs))
	for _, spec := range specs {
		handles = append(handles, s.launch(ctx, spec))
	}

	remaining := len(handles)
	failFastSent := false
	waitCtx := ctx
	for remaining > 0 {
		if em, ok := s.monitor.Sample(specs); ok {
			s.reporter.Progress(em)
		}

		transitioned := false
		for _, h := range handles {
			if !h.Poll(s.now()) {
				continue
			}
			transitioned = true
			remaining--
			res := h.Result()
			results.Set(res)
			s.logFinished(res)
			s.reporter.JobFinished(res)

			if res.State == job.Failed && failFast && !failFastSent {
				failFastSent = true
				s.terminate(handles, h, "fail-fast")
			}
		}
		if remaining == 0 {
			break
		}

		if waitCtx.Err() != nil {
			// After cancellation keep polling at the normal pace until every
			// terminated job has been observed exiting.
			s.terminate(handles, nil, "cancelled")
			waitCtx = context.Background()
		}
		if !transitioned {
			s.sleep(waitCtx, s.interval)
		}
	}
	return results
}

func (s *Supervisor) launch(ctx context.Context, spec job.Spec) *job.Handle {
	h := job.NewHandle(spec)
	proc, err := s.launcher.Launch(ctx, spec)
	// A fresh handle is always Pending, so Started cannot fail here.
	_ = h.Started(proc, err, s.now())
	if err != nil {
		s.logger.Error().Str("job", spec.Name).Err(err).Msg("launch failed")
		s.reporter.JobStarted(spec, 0)
		return h
	}
	s.logger.Info().Str("job", spec.Name).Int("pid", proc.Pid()).Str("log", spec.LogPath).Msg("job launched")
	s.reporter.JobStarted(spec, proc.Pid())
	return h
}

// tail reads the end of a finished job's log. A read error still returns
// whatever lines were collected.
func (s *Supervisor) tail(res job.Result) []string {
	lines, err := job.Tail(res.LogPath, s.tailLines)
	if err != nil {
		s.logger.Debug().Str("job", res.Name).Str("log", res.LogPath).Err(err).Msg("reading log tail failed")
	}
	return lines
}

// terminate sends a best-effort termination request to every running job
// except skip. Jobs already asked to terminate are left alone, as are jobs
// whose process has exited but has not been polled yet.
func (s *Supervisor) terminate(handles []*job.Handle, skip *job.Handle, reason string) {
	for _, h := range handles {
		if h == skip || exited(h.Process()) || !h.MarkKilled() {
			continue
		}
		proc := h.Process()
		if proc == nil {
			continue
		}
		if err := proc.Terminate(); err != nil {
			s.logger.Debug().Str("job", h.Spec.Name).Err(err).Msg("termination request failed")
			continue
		}
		s.logger.Warn().Str("job", h.Spec.Name).Str("reason", reason).Msg("termination requested")
	}
}

func exited(proc job.Process) bool {
	if proc == nil {
		return false
	}
	select {
	case <-proc.Done():
		return true
	default:
		return false
	}
}

func (s *Supervisor) logFinished(res job.Result) {
	entry := s.logger.Info()
	if res.State == job.Failed {
		entry = s.logger.Error()
	}
	entry.Str("job", res.Name).
		Str("state", res.State.String()).
		Int("exit_code", res.ExitCode).
		Bool("terminated", res.Terminated).
		Dur("duration", res.Duration()).
		Msg("job finished")
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
