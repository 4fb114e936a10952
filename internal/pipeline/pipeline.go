// Package pipeline drives a full run: it lays out the workspace, runs the
// prerequisite job, fans out the parallel jobs, and merges their outputs
// into the destination directory once every job has succeeded.
//
// Errors are reported per phase. A prerequisite failure is a
// *supervisor.PrerequisiteError, failed parallel jobs a
// *supervisor.JobFailuresError, and merge collisions a *merge.ConflictError.
// An interrupted run returns an error wrapping the context error.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phuslu/log"

	"github.com/dkoosis/fanout/internal/config"
	"github.com/dkoosis/fanout/internal/job"
	"github.com/dkoosis/fanout/internal/logging"
	"github.com/dkoosis/fanout/internal/merge"
	"github.com/dkoosis/fanout/internal/supervisor"
	"github.com/dkoosis/fanout/internal/workspace"
)

// ErrInterrupted is returned, wrapping the context error, when a run is
// cancelled before it completes.
var ErrInterrupted = errors.New("run interrupted")

// Summary describes a finished or aborted run.
type Summary struct {
	RunID         string
	Workspace     string
	KeptWorkspace bool
	Prerequisite  *job.Result
	Results       job.Results
	Merge         merge.Report
	Removed       int
	OutputDir     string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLauncher replaces the launcher built from the worker configuration.
func WithLauncher(l job.Launcher) Option {
	return func(p *Pipeline) { p.launcher = l }
}

// WithReporter registers an observer for job events.
func WithReporter(r supervisor.Reporter) Option {
	return func(p *Pipeline) { p.reporter = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithRunID fixes the run id.
func WithRunID(id string) Option {
	return func(p *Pipeline) { p.runID = id }
}

// WithSkipPrerequisite skips the prerequisite job. The configuration must
// name an existing id directory.
func WithSkipPrerequisite(skip bool) Option {
	return func(p *Pipeline) { p.skipPrerequisite = skip }
}

// WithSleep replaces the pause between idle supervisor ticks.
func WithSleep(fn func(ctx context.Context, d time.Duration)) Option {
	return func(p *Pipeline) { p.sleep = fn }
}

// Pipeline runs the configured jobs end to end.
type Pipeline struct {
	cfg              *config.Config
	launcher         job.Launcher
	reporter         supervisor.Reporter
	logger           *log.Logger
	runID            string
	skipPrerequisite bool
	sleep            func(ctx context.Context, d time.Duration)
}

// New returns a pipeline for cfg.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		cfg:      cfg,
		reporter: supervisor.NopReporter{},
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.skipPrerequisite && cfg.Worker.IDDir == "" {
		return nil, errors.New("skipping the prerequisite requires worker.id_dir")
	}
	if p.runID == "" {
		p.runID = workspace.NewRunID()
	}
	if p.launcher == nil {
		p.launcher = &job.ExecLauncher{
			Command: cfg.Worker.Command,
			Env:     cfg.Worker.Env,
			Dir:     cfg.Worker.Dir,
		}
	}
	return p, nil
}

// RunID identifies this run in the workspace name and in logs.
func (p *Pipeline) RunID() string { return p.runID }

// Plan returns the specs a run would launch, without creating anything.
// The prerequisite spec is nil when it is skipped.
func (p *Pipeline) Plan() (*job.Spec, []job.Spec) {
	ws := workspace.Plan(p.cfg.WorkDir, p.workspaceOptions()...)
	prereq, specs := BuildSpecs(p.cfg, ws)
	if p.skipPrerequisite {
		return nil, specs
	}
	return &prereq, specs
}

// Run executes the prerequisite, the parallel jobs and the merge. The
// returned summary is filled in as far as the run got.
func (p *Pipeline) Run(ctx context.Context) (sum Summary, err error) {
	ws, err := workspace.New(p.cfg.WorkDir, p.workspaceOptions()...)
	if err != nil {
		return sum, err
	}
	sum = Summary{
		RunID:         p.runID,
		Workspace:     ws.Root,
		KeptWorkspace: p.cfg.KeepTemp,
		OutputDir:     p.cfg.OutputDir,
	}
	defer func() {
		if cerr := ws.Close(p.cfg.KeepTemp); cerr != nil && err == nil {
			err = cerr
		}
	}()

	prereq, specs := BuildSpecs(p.cfg, ws)
	if !p.skipPrerequisite {
		if err := ws.AddJob(prereq.Name); err != nil {
			return sum, err
		}
	}
	for _, spec := range specs {
		if err := ws.AddJob(spec.Name); err != nil {
			return sum, err
		}
	}

	sup := supervisor.New(p.launcher, p.supervisorOptions()...)

	if !p.skipPrerequisite {
		res, err := sup.RunPrerequisite(ctx, prereq)
		sum.Prerequisite = &res
		if ctx.Err() != nil {
			return sum, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
		}
		if err != nil {
			return sum, err
		}
	} else {
		p.logger.Info().Str("id_dir", ws.IDDir()).Msg("skipping prerequisite")
	}

	sum.Results = sup.RunParallel(ctx, specs, p.cfg.FailFast)
	if ctx.Err() != nil {
		return sum, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	}
	if err := sup.Failures(sum.Results); err != nil {
		return sum, err
	}

	rec := merge.New(p.cfg.ReferenceFiles,
		merge.WithPattern(p.cfg.MergePattern),
		merge.WithLogger(p.logger),
	)
	removed, err := rec.Prepare(p.cfg.OutputDir)
	sum.Removed = removed
	if err != nil {
		return sum, err
	}
	outputs := make([]merge.Output, 0, len(specs))
	for _, spec := range specs {
		outputs = append(outputs, merge.Output{Job: spec.Name, Dir: spec.OutputDir})
	}
	sum.Merge, err = rec.Merge(p.cfg.OutputDir, outputs)
	if err != nil {
		return sum, err
	}
	p.logger.Info().
		Int("copied", sum.Merge.Copied).
		Int("skipped_identical", sum.Merge.SkippedIdentical).
		Int("reference_conflicts", sum.Merge.ReferenceConflictIgnored).
		Str("dest", p.cfg.OutputDir).
		Msg("merge complete")
	return sum, nil
}

func (p *Pipeline) workspaceOptions() []workspace.Option {
	return []workspace.Option{
		workspace.WithRunID(p.runID),
		workspace.WithIDDir(p.cfg.Worker.IDDir),
		workspace.WithLogger(p.logger),
	}
}

func (p *Pipeline) supervisorOptions() []supervisor.Option {
	opts := []supervisor.Option{
		supervisor.WithInterval(p.cfg.SampleInterval.Duration),
		supervisor.WithReporter(p.reporter),
		supervisor.WithLogger(p.logger),
		supervisor.WithTailLines(p.cfg.TailLines),
	}
	if p.sleep != nil {
		opts = append(opts, supervisor.WithSleep(p.sleep))
	}
	return opts
}
