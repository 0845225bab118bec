package engine

import (
	"fmt"
	"io"
	"time"
)

// StepResult records the outcome of one executed step.
type StepResult struct {
	// Name is the step name.
	Name string `json:"name"`

	// Status is the recorded outcome.
	Status StepStatus `json:"status"`

	// Error is the failure description, empty on success.
	Error string `json:"error,omitempty"`

	// ErrorClass is the classification of the failure, empty on success.
	ErrorClass ErrorClass `json:"error_class,omitempty"`

	// Duration is how long the step took.
	Duration time.Duration `json:"duration"`
}

// RunReport is the itemized summary of one run. It is built fresh every run,
// printed at the end, and never required as input for a later run: the only
// durable state is what the backend itself reflects.
type RunReport struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// State is the terminal state the run reached.
	State RunState `json:"state"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run finished.
	CompletedAt time.Time `json:"completed_at"`

	// Steps holds the per-step outcomes in execution order.
	Steps []StepResult `json:"steps"`

	// AbortReason describes why an aborted run stopped, empty otherwise.
	AbortReason string `json:"abort_reason,omitempty"`
}

// Record appends a step result.
func (r *RunReport) Record(result StepResult) {
	r.Steps = append(r.Steps, result)
}

// Counts returns the number of steps per status.
func (r *RunReport) Counts() (ok, warnings, failed int) {
	for _, s := range r.Steps {
		switch s.Status {
		case StepStatusOK:
			ok++
		case StepStatusWarning:
			warnings++
		case StepStatusFailed:
			failed++
		}
	}
	return ok, warnings, failed
}

// Clean reports whether the run completed without a single warning or
// failure.
func (r *RunReport) Clean() bool {
	_, warnings, failed := r.Counts()
	return r.State == RunStateCompleted && warnings == 0 && failed == 0
}

// ExitCode maps the run outcome to a process exit code: 0 for a clean
// completion, 1 for an aborted run, 2 for a completion with warnings or
// per-step failures.
func (r *RunReport) ExitCode() int {
	if r.State == RunStateAborted {
		return 1
	}
	if r.Clean() {
		return 0
	}
	return 2
}

// Duration returns the total run duration.
func (r *RunReport) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Render writes the itemized human-readable summary. Every recorded error
// appears here even when the step was non-fatal; nothing fails silently.
func (r *RunReport) Render(w io.Writer) {
	fmt.Fprintf(w, "run %s: %s (%s)\n", r.RunID, r.State, r.Duration().Round(time.Millisecond))
	if r.AbortReason != "" {
		fmt.Fprintf(w, "  aborted: %s\n", r.AbortReason)
	}
	for _, s := range r.Steps {
		if s.Error != "" {
			fmt.Fprintf(w, "  %-24s %-8s %s\n", s.Name, s.Status, s.Error)
			continue
		}
		fmt.Fprintf(w, "  %-24s %s\n", s.Name, s.Status)
	}
	ok, warnings, failed := r.Counts()
	fmt.Fprintf(w, "%d ok, %d warning(s), %d failed\n", ok, warnings, failed)
}
