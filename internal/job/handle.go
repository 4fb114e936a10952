package job

import (
	"fmt"
	"time"
)

// Handle tracks one job at runtime. It is owned by a single supervisor
// goroutine and is not safe for concurrent use.
type Handle struct {
	Spec Spec

	proc      Process
	launchErr error
	state     State
	result    Result
}

// NewHandle returns a Pending handle for spec.
func NewHandle(spec Spec) *Handle {
	return &Handle{
		Spec:   spec,
		state:  Pending,
		result: Result{Name: spec.Name, LogPath: spec.LogPath, OutputDir: spec.OutputDir},
	}
}

// State returns the current lifecycle state.
func (h *Handle) State() State { return h.state }

// Process returns the running process, or nil once the job is terminal or
// failed to launch.
func (h *Handle) Process() Process {
	if h.state != Running && h.state != Killed {
		return nil
	}
	return h.proc
}

// Started moves the handle to Running. A launch error is remembered and
// surfaces as Failed on the next poll.
func (h *Handle) Started(proc Process, err error, at time.Time) error {
	if h.state != Pending {
		return fmt.Errorf("job %s: cannot start from state %s", h.Spec.Name, h.state)
	}
	h.proc = proc
	h.launchErr = err
	h.state = Running
	h.result.StartedAt = at
	return nil
}

// MarkKilled records that a termination request was sent. It reports false
// if the job was not Running, so callers can send the request at most once.
func (h *Handle) MarkKilled() bool {
	if h.state != Running {
		return false
	}
	h.state = Killed
	h.result.Terminated = true
	return true
}

// Poll performs a non-blocking liveness check and resolves the handle if its
// process has exited. It reports whether the handle became terminal.
func (h *Handle) Poll(now time.Time) bool {
	if h.state != Running && h.state != Killed {
		return false
	}
	if h.launchErr != nil {
		h.resolve(-1, h.launchErr, now)
		return true
	}
	exited, code, err := h.proc.Poll()
	if !exited {
		return false
	}
	h.resolve(code, err, now)
	return true
}

func (h *Handle) resolve(code int, err error, at time.Time) {
	h.result.ExitCode = code
	h.result.Err = err
	h.result.FinishedAt = at
	switch {
	case h.state == Killed:
		h.state = Failed
	case code == 0 && err == nil:
		h.state = Succeeded
	default:
		h.state = Failed
	}
	h.result.State = h.state
	h.proc = nil
}

// Result returns the job result. It is only meaningful once State is terminal.
func (h *Handle) Result() Result {
	res := h.result
	res.State = h.state
	return res
}
