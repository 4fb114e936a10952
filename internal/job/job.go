// Package job describes the unit of work the supervisor launches: an
// immutable Spec, the lifecycle State a running job moves through, and the
// Result it settles on.
package job

import (
	"fmt"
	"time"
)

// State represents the lifecycle state of a job.
type State int

const (
	// Pending indicates the job has not been launched yet.
	Pending State = iota
	// Running indicates the worker process is alive.
	Running
	// Killed marks a running job that was asked to terminate. It is still
	// polled and resolves as Failed once its process exits.
	Killed
	// Succeeded indicates the worker exited with status 0.
	Succeeded
	// Failed indicates the worker exited nonzero or could not be started.
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Killed:
		return "killed"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}

// Spec is the static description of one job.
type Spec struct {
	Name      string
	OutputDir string
	LogPath   string
	Args      []string
}

// Result is the settled outcome of a job.
type Result struct {
	Name       string
	State      State
	ExitCode   int
	Terminated bool
	Err        error
	LogPath    string
	OutputDir  string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall time between launch and exit.
func (r Result) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Results maps job names to their results while remembering declaration order.
type Results struct {
	names  []string
	byName map[string]Result
}

// NewResults creates an empty result set ordered by specs.
func NewResults(specs []Spec) Results {
	r := Results{names: make([]string, 0, len(specs)), byName: make(map[string]Result, len(specs))}
	for _, s := range specs {
		r.names = append(r.names, s.Name)
	}
	return r
}

// Set records the result for a job.
func (r Results) Set(res Result) {
	r.byName[res.Name] = res
}

// Get returns the result recorded for name.
func (r Results) Get(name string) (Result, bool) {
	res, ok := r.byName[name]
	return res, ok
}

// Len returns the number of recorded results.
func (r Results) Len() int { return len(r.byName) }

// All returns recorded results in declaration order.
func (r Results) All() []Result {
	out := make([]Result, 0, len(r.byName))
	for _, name := range r.names {
		if res, ok := r.byName[name]; ok {
			out = append(out, res)
		}
	}
	return out
}

// Failed returns every failed result in declaration order.
func (r Results) Failed() []Result {
	var out []Result
	for _, res := range r.All() {
		if res.State == Failed {
			out = append(out, res)
		}
	}
	return out
}

// Map returns a copy of the name to result mapping.
func (r Results) Map() map[string]Result {
	out := make(map[string]Result, len(r.byName))
	for k, v := range r.byName {
		out[k] = v
	}
	return out
}
