// fanout runs one worker process per entity, watches their logs, and merges
// their partitioned CSV outputs into a single directory.
//
// Usage:
//
//	fanout --config fanout.yaml
//	fanout --only authors,works --keep-temp
//	fanout --dry-run
//
// A prerequisite job collects reference ids first; the entity jobs then run
// in parallel. With fail-fast on, the first failure terminates the rest.
//
// Exit codes: 0 success, 1 pipeline failure, 2 usage or configuration
// error, 130 interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/dkoosis/fanout/internal/config"
	"github.com/dkoosis/fanout/internal/console"
	"github.com/dkoosis/fanout/internal/logging"
	"github.com/dkoosis/fanout/internal/pipeline"
	"github.com/dkoosis/fanout/internal/supervisor"
	"github.com/dkoosis/fanout/internal/tui"
	"github.com/dkoosis/fanout/internal/version"
	"github.com/dkoosis/fanout/internal/workspace"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitInterrupted = 130
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	flags            config.CliFlags
	dryRun           bool
	skipPrerequisite bool
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("fanout", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	f := &opts.flags
	fs.StringVar(&f.ConfigPath, "config", "", "Config file (fanout.yaml, fanout.yml or fanout.toml)")
	fs.BoolVar(&f.FailFast, "fail-fast", true, "Terminate running jobs after the first failure")
	fs.BoolVar(&f.KeepTemp, "keep-temp", false, "Keep the working tree after the run")
	fs.BoolVar(&f.TUI, "tui", false, "Show the interactive job board")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.OutputDir, "output", "", "Merged output directory")
	fs.StringVar(&f.WorkDir, "work-dir", "", "Parent directory of the working tree")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	fs.DurationVar(&f.SampleInterval, "interval", 0, "Pause between idle polling ticks")
	only := fs.String("only", "", "Comma-separated subset of jobs to run")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Print the job command lines and exit")
	fs.BoolVar(&opts.skipPrerequisite, "skip-prerequisite", false, "Reuse the ids in worker.id_dir")
	showVersion := fs.Bool("version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "fanout: unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return exitUsage
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return exitOK
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "fail-fast":
			f.FailFastSet = true
		case "keep-temp":
			f.KeepTempSet = true
		case "tui":
			f.TUISet = true
		}
	})
	if *only != "" {
		f.Only = strings.Split(*only, ",")
	}

	resolved, err := config.Resolve(*f)
	if err != nil {
		fmt.Fprintf(stderr, "fanout: %v\n", err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, resolved.Config, opts, stdout, stderr)
}

func execute(ctx context.Context, cfg *config.Config, opts options, stdout, stderr io.Writer) int {
	runID := workspace.NewRunID()
	con := console.New(stdout)
	useTUI := cfg.TUI && con.Interactive() && !opts.dryRun

	logger := logging.Discard()
	if !useTUI {
		tty := isTTYWriter(stderr)
		logger = logging.New(stderr, logging.Options{
			Level:   cfg.LogLevel,
			Console: tty,
			Color:   tty,
			RunID:   runID,
		})
	}

	newPipeline := func(r supervisor.Reporter) (*pipeline.Pipeline, error) {
		return pipeline.New(cfg,
			pipeline.WithRunID(runID),
			pipeline.WithLogger(logger),
			pipeline.WithReporter(r),
			pipeline.WithSkipPrerequisite(opts.skipPrerequisite),
		)
	}

	p, err := newPipeline(con)
	if err != nil {
		fmt.Fprintf(stderr, "fanout: %v\n", err)
		return exitUsage
	}
	if opts.dryRun {
		prereq, specs := p.Plan()
		con.DryRun(cfg.Worker.Command, prereq, specs)
		return exitOK
	}

	logger.Info().Str("config", cfg.Path).Strs("jobs", cfg.Jobs).Msg("starting run")
	start := time.Now()

	var sum pipeline.Summary
	if useTUI {
		names := cfg.Jobs
		if !opts.skipPrerequisite {
			names = append([]string{cfg.Prerequisite}, cfg.Jobs...)
		}
		err = tui.Run(ctx, names, func(ctx context.Context, r supervisor.Reporter) error {
			tp, err := newPipeline(r)
			if err != nil {
				return err
			}
			sum, err = tp.Run(ctx)
			return err
		})
	} else {
		con.Phase("running jobs")
		sum, err = p.Run(ctx)
	}
	con.Close()

	if err != nil {
		con.Failure(err)
		con.Workspace(sum)
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("run failed")
		return exitCode(err)
	}
	con.Summary(sum)
	logger.Info().Dur("elapsed", time.Since(start)).Msg("run complete")
	return exitOK
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pipeline.ErrInterrupted), errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return exitFailure
	}
}

// isTTYWriter reports whether w is a terminal.
func isTTYWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
