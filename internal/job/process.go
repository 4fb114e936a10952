package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// Process is a launched worker.
type Process interface {
	// Pid returns the operating system process id, or 0 if unknown.
	Pid() int
	// Poll reports whether the process has exited, without blocking.
	Poll() (exited bool, code int, err error)
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Terminate requests termination. It does not wait for the exit.
	Terminate() error
}

// Launcher starts worker processes for job specs.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (Process, error)
}

// ExecLauncher runs Command followed by the spec arguments, with combined
// stdout and stderr written to the spec's log file.
type ExecLauncher struct {
	Command []string
	Env     map[string]string
	Dir     string
}

// Launch starts the worker. The context is not bound to the process
// lifetime: cancellation is delivered by the supervisor through Terminate so
// the whole process group is signalled.
func (l *ExecLauncher) Launch(_ context.Context, spec Spec) (Process, error) {
	if len(l.Command) == 0 || l.Command[0] == "" {
		return nil, errors.New("worker command is empty")
	}

	logFile, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log for %s: %w", spec.Name, err)
	}

	argv := append(append([]string{}, l.Command[1:]...), spec.Args...)
	// #nosec G204 -- the worker command comes from operator configuration
	cmd := exec.Command(l.Command[0], argv...)
	cmd.Dir = l.Dir
	cmd.Env = mergeEnv(os.Environ(), l.Env)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("start %s: %w", spec.Name, err)
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		_ = logFile.Close()
		p.mu.Lock()
		p.code, p.err = exitStatus(err)
		p.mu.Unlock()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu   sync.Mutex
	code int
	err  error
}

func (p *execProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Poll() (bool, int, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return true, p.code, p.err
	default:
		return false, 0, nil
	}
}

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Terminate() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	return terminateProcessGroup(p.cmd)
}

// exitStatus converts a Wait error into an exit code. A nonzero exit is not
// an error in itself; err is only set when the process could not be waited on.
func exitStatus(waitErr error) (int, error) {
	if waitErr == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if code, ok := getExitCodeFromError(exitErr); ok {
			return code, nil
		}
		return exitErr.ExitCode(), nil
	}
	return -1, waitErr
}

func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	env := make([]string, len(base), len(base)+len(extra))
	copy(env, base)
	for k, v := range extra {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
