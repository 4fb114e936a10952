package supervisor

import (
	"fmt"
	"strings"

	"github.com/dkoosis/fanout/internal/job"
)

// PrerequisiteError reports that the prerequisite job did not succeed.
type PrerequisiteError struct {
	Result job.Result
	Tail   []string
	Err    error
}

func (e *PrerequisiteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("prerequisite %s failed (exit %d): %v", e.Result.Name, e.Result.ExitCode, e.Err)
	}
	return fmt.Sprintf("prerequisite %s failed (exit %d)", e.Result.Name, e.Result.ExitCode)
}

func (e *PrerequisiteError) Unwrap() error { return e.Err }

// FailedJob is one failed parallel job and the tail of its log.
type FailedJob struct {
	Result job.Result
	Tail   []string
}

// JobFailuresError collects every failed parallel job.
type JobFailuresError struct {
	Jobs []FailedJob
}

func (e *JobFailuresError) Error() string {
	parts := make([]string, 0, len(e.Jobs))
	for _, j := range e.Jobs {
		parts = append(parts, fmt.Sprintf("%s (exit %d)", j.Result.Name, j.Result.ExitCode))
	}
	return fmt.Sprintf("%d job(s) failed: %s", len(e.Jobs), strings.Join(parts, ", "))
}

// Names returns the failed job names in declaration order.
func (e *JobFailuresError) Names() []string {
	names := make([]string, 0, len(e.Jobs))
	for _, j := range e.Jobs {
		names = append(names, j.Result.Name)
	}
	return names
}
