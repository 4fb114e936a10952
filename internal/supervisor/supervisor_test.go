package supervisor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/fanout/internal/job"
	"github.com/dkoosis/fanout/internal/logging"
	"github.com/dkoosis/fanout/internal/monitor"
)

// script describes how a fake worker behaves: it exits with code after
// exitAfter polls, or with 143 on the poll following a termination request.
// A gone worker has already exited when launched and is only waiting to be
// polled.
type script struct {
	exitAfter int
	code      int
	launchErr error
	gone      bool
}

type fakeProcess struct {
	script     script
	polls      int
	terminates int
	exited     bool
}

func (p *fakeProcess) Pid() int { return 1000 }

func (p *fakeProcess) Done() <-chan struct{} {
	if !p.exited && !p.script.gone {
		return nil
	}
	done := make(chan struct{})
	close(done)
	return done
}

func (p *fakeProcess) Poll() (bool, int, error) {
	if p.exited {
		return true, p.script.code, nil
	}
	p.polls++
	if p.terminates > 0 {
		p.exited = true
		p.script.code = 143
		return true, 143, nil
	}
	if p.polls >= p.script.exitAfter {
		p.exited = true
		return true, p.script.code, nil
	}
	return false, 0, nil
}

func (p *fakeProcess) Terminate() error {
	p.terminates++
	if p.exited {
		return errors.New("process already finished")
	}
	return nil
}

type fakeLauncher struct {
	scripts  map[string]script
	procs    map[string]*fakeProcess
	launched []string
}

func newFakeLauncher(scripts map[string]script) *fakeLauncher {
	return &fakeLauncher{scripts: scripts, procs: make(map[string]*fakeProcess)}
}

func (l *fakeLauncher) Launch(_ context.Context, spec job.Spec) (job.Process, error) {
	l.launched = append(l.launched, spec.Name)
	sc := l.scripts[spec.Name]
	if sc.launchErr != nil {
		return nil, sc.launchErr
	}
	p := &fakeProcess{script: sc}
	l.procs[spec.Name] = p
	return p, nil
}

type recordingReporter struct {
	started  []string
	finished []string
	progress []monitor.Emission
}

func (r *recordingReporter) JobStarted(spec job.Spec, _ int) { r.started = append(r.started, spec.Name) }
func (r *recordingReporter) JobFinished(res job.Result)      { r.finished = append(r.finished, res.Name) }
func (r *recordingReporter) Progress(em monitor.Emission)    { r.progress = append(r.progress, em) }

func specs(t *testing.T, names ...string) []job.Spec {
	t.Helper()
	dir := t.TempDir()
	out := make([]job.Spec, 0, len(names))
	for _, n := range names {
		out = append(out, job.Spec{Name: n, LogPath: filepath.Join(dir, n+".log"), OutputDir: filepath.Join(dir, n)})
	}
	return out
}

func newTestSupervisor(l job.Launcher, sleeps *int, opts ...Option) *Supervisor {
	base := []Option{WithSleep(func(context.Context, time.Duration) {
		if sleeps != nil {
			*sleeps++
		}
	})}
	return New(l, append(base, opts...)...)
}

func states(results job.Results) map[string]job.State {
	out := make(map[string]job.State)
	for name, res := range results.Map() {
		out[name] = res.State
	}
	return out
}

func TestRunParallelAllSucceed(t *testing.T) {
	l := newFakeLauncher(map[string]script{
		"authors":      {exitAfter: 1},
		"institutions": {exitAfter: 3},
		"works":        {exitAfter: 5},
	})
	rep := &recordingReporter{}
	s := newTestSupervisor(l, nil, WithReporter(rep))

	results := s.RunParallel(context.Background(), specs(t, "authors", "institutions", "works"), true)

	want := map[string]job.State{"authors": job.Succeeded, "institutions": job.Succeeded, "works": job.Succeeded}
	if diff := cmp.Diff(want, states(results)); diff != "" {
		t.Fatalf("unexpected states (-want +got):\n%s", diff)
	}
	for name, p := range l.procs {
		assert.Zero(t, p.terminates, name)
	}
	assert.NoError(t, s.Failures(results))
	assert.Equal(t, []string{"authors", "institutions", "works"}, rep.started)
	assert.Equal(t, []string{"authors", "institutions", "works"}, rep.finished)
}

func TestRunParallelFailFastTerminatesRunningSiblingsOnce(t *testing.T) {
	l := newFakeLauncher(map[string]script{
		"done":    {exitAfter: 1},
		"broken":  {exitAfter: 2, code: 1},
		"slow":    {exitAfter: 100},
		"slower":  {exitAfter: 200},
		"trailer": {exitAfter: 2},
	})
	s := newTestSupervisor(l, nil)

	results := s.RunParallel(context.Background(), specs(t, "done", "broken", "slow", "slower", "trailer"), true)

	assert.Zero(t, l.procs["done"].terminates, "already terminal before the failure")
	assert.Zero(t, l.procs["broken"].terminates, "the failed job itself is not signalled")
	assert.Equal(t, 1, l.procs["slow"].terminates)
	assert.Equal(t, 1, l.procs["slower"].terminates)
	assert.Equal(t, 1, l.procs["trailer"].terminates, "still running when the failure was seen")

	slow, _ := results.Get("slow")
	assert.Equal(t, job.Failed, slow.State)
	assert.True(t, slow.Terminated)
	assert.Equal(t, 143, slow.ExitCode)

	done, _ := results.Get("done")
	assert.Equal(t, job.Succeeded, done.State)

	var failures *JobFailuresError
	require.ErrorAs(t, s.Failures(results), &failures)
	assert.Equal(t, []string{"broken", "slow", "slower", "trailer"}, failures.Names())
}

func TestRunParallelFailFastSkipsExitedSiblings(t *testing.T) {
	l := newFakeLauncher(map[string]script{
		"broken":   {exitAfter: 1, code: 1},
		"finished": {exitAfter: 1, gone: true},
		"running":  {exitAfter: 100},
	})
	var logs bytes.Buffer
	s := newTestSupervisor(l, nil, WithLogger(logging.New(&logs, logging.Options{Level: "debug"})))

	results := s.RunParallel(context.Background(), specs(t, "broken", "finished", "running"), true)

	assert.Zero(t, l.procs["finished"].terminates)
	assert.Equal(t, 1, l.procs["running"].terminates)

	finished, _ := results.Get("finished")
	assert.Equal(t, job.Succeeded, finished.State)
	assert.False(t, finished.Terminated)

	assert.Equal(t, 1, bytes.Count(logs.Bytes(), []byte("termination requested")))
	assert.Contains(t, logs.String(), `"job":"running"`)
}

func TestRunParallelWithoutFailFastRunsToCompletion(t *testing.T) {
	l := newFakeLauncher(map[string]script{
		"a": {exitAfter: 1, code: 2},
		"b": {exitAfter: 4},
		"c": {exitAfter: 6, code: 5},
	})
	s := newTestSupervisor(l, nil)

	results := s.RunParallel(context.Background(), specs(t, "a", "b", "c"), false)

	for name, p := range l.procs {
		assert.Zero(t, p.terminates, name)
	}
	b, _ := results.Get("b")
	assert.Equal(t, job.Succeeded, b.State)
	c, _ := results.Get("c")
	assert.Equal(t, 5, c.ExitCode)
	assert.False(t, c.Terminated)

	var failures *JobFailuresError
	require.ErrorAs(t, s.Failures(results), &failures)
	assert.Equal(t, []string{"a", "c"}, failures.Names())
	assert.Contains(t, failures.Error(), "a (exit 2)")
}

func TestRunParallelSleepsOnlyOnIdleTicks(t *testing.T) {
	l := newFakeLauncher(map[string]script{
		"a": {exitAfter: 3},
		"b": {exitAfter: 3},
	})
	sleeps := 0
	s := newTestSupervisor(l, &sleeps)

	s.RunParallel(context.Background(), specs(t, "a", "b"), true)

	// Ticks 1 and 2 are idle; tick 3 resolves both jobs and ends the loop.
	assert.Equal(t, 2, sleeps)
}

func TestRunParallelLaunchErrorTriggersFailFast(t *testing.T) {
	l := newFakeLauncher(map[string]script{
		"missing": {launchErr: errors.New("exec: not found")},
		"ok":      {exitAfter: 50},
	})
	s := newTestSupervisor(l, nil)

	results := s.RunParallel(context.Background(), specs(t, "missing", "ok"), true)

	missing, _ := results.Get("missing")
	assert.Equal(t, job.Failed, missing.State)
	assert.Equal(t, -1, missing.ExitCode)
	assert.Error(t, missing.Err)
	assert.Equal(t, 1, l.procs["ok"].terminates)
}

func TestRunParallelCancellationTerminatesEveryJob(t *testing.T) {
	l := newFakeLauncher(map[string]script{
		"a": {exitAfter: 1000},
		"b": {exitAfter: 1000},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newTestSupervisor(l, nil)

	results := s.RunParallel(ctx, specs(t, "a", "b"), false)

	assert.Equal(t, 2, results.Len())
	for name, p := range l.procs {
		assert.Equal(t, 1, p.terminates, name)
	}
	assert.Len(t, results.Failed(), 2)
}

func TestRunParallelReportsLiveProgress(t *testing.T) {
	l := newFakeLauncher(map[string]script{"authors": {exitAfter: 2}})
	sp := specs(t, "authors")
	require.NoError(t, os.WriteFile(sp[0].LogPath, []byte("parsed 100 records\n"), 0o644))
	rep := &recordingReporter{}
	s := newTestSupervisor(l, nil, WithReporter(rep))

	s.RunParallel(context.Background(), sp, true)

	require.Len(t, rep.progress, 1)
	assert.Equal(t, "parsed 100 records", rep.progress[0].Line)
	assert.Equal(t, "authors", rep.progress[0].Job)
}

func TestRunPrerequisite(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		l := newFakeLauncher(map[string]script{"collect-ids": {exitAfter: 3}})
		s := newTestSupervisor(l, nil)

		res, err := s.RunPrerequisite(context.Background(), specs(t, "collect-ids")[0])
		require.NoError(t, err)
		assert.Equal(t, job.Succeeded, res.State)
	})

	t.Run("failure carries log tail", func(t *testing.T) {
		l := newFakeLauncher(map[string]script{"collect-ids": {exitAfter: 1, code: 4}})
		sp := specs(t, "collect-ids")[0]
		require.NoError(t, os.WriteFile(sp.LogPath, []byte("a\nb\nc\nTraceback: boom\n"), 0o644))
		s := newTestSupervisor(l, nil, WithTailLines(2))

		_, err := s.RunPrerequisite(context.Background(), sp)
		var pre *PrerequisiteError
		require.ErrorAs(t, err, &pre)
		assert.Equal(t, 4, pre.Result.ExitCode)
		assert.Equal(t, []string{"c", "Traceback: boom"}, pre.Tail)
		assert.Contains(t, err.Error(), "collect-ids")
	})

	t.Run("tail skips past overlong lines", func(t *testing.T) {
		l := newFakeLauncher(map[string]script{"collect-ids": {exitAfter: 1, code: 1}})
		sp := specs(t, "collect-ids")[0]
		huge := bytes.Repeat([]byte("{"), 2*job.MaxLineBytes)
		content := append([]byte("start\n"), huge...)
		content = append(content, "\nTraceback:\nValueError: bad record\n"...)
		require.NoError(t, os.WriteFile(sp.LogPath, content, 0o644))
		s := newTestSupervisor(l, nil, WithTailLines(2))

		_, err := s.RunPrerequisite(context.Background(), sp)
		var pre *PrerequisiteError
		require.ErrorAs(t, err, &pre)
		assert.Equal(t, []string{"Traceback:", "ValueError: bad record"}, pre.Tail)
	})

	t.Run("cancelled", func(t *testing.T) {
		l := newFakeLauncher(map[string]script{"collect-ids": {exitAfter: 1000}})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s := newTestSupervisor(l, nil)

		_, err := s.RunPrerequisite(ctx, specs(t, "collect-ids")[0])
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
