package engine

import (
	"encoding/json"
	"fmt"
)

// RunState represents the orchestrator's position in the per-run state
// machine.
type RunState string

const (
	// RunStateNotStarted indicates no step has been attempted yet.
	RunStateNotStarted RunState = "not_started"

	// RunStateRunning indicates steps are being executed in order.
	RunStateRunning RunState = "running"

	// RunStateCompleted indicates every step was processed, possibly with
	// warnings or per-step failures.
	RunStateCompleted RunState = "completed"

	// RunStateAborted indicates a precondition failed, a fatal step failed,
	// or cancellation was observed at a step boundary.
	RunStateAborted RunState = "aborted"
)

// IsTerminal returns true if the state represents a finished run.
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateAborted
}

// Validate checks if the run state is valid.
func (s RunState) Validate() error {
	switch s {
	case RunStateNotStarted, RunStateRunning, RunStateCompleted, RunStateAborted:
		return nil
	default:
		return fmt.Errorf("invalid run state: %s", s)
	}
}

// StepStatus is the recorded outcome of a single step.
type StepStatus string

const (
	// StepStatusOK indicates every action of the step succeeded.
	StepStatusOK StepStatus = "ok"

	// StepStatusWarning indicates a non-fatal action failure; the run
	// continued.
	StepStatusWarning StepStatus = "warning"

	// StepStatusFailed indicates the step failed outright, either because a
	// configuration write failed or because the step was fatal.
	StepStatusFailed StepStatus = "failed"

	// StepStatusSkipped indicates the step was never reached because the run
	// aborted earlier.
	StepStatusSkipped StepStatus = "skipped"
)

// Severity returns the log level matching the status.
func (s StepStatus) Severity() string {
	switch s {
	case StepStatusFailed:
		return "error"
	case StepStatusWarning:
		return "warning"
	default:
		return "info"
	}
}

// Validate checks if the step status is valid.
func (s StepStatus) Validate() error {
	switch s {
	case StepStatusOK, StepStatusWarning, StepStatusFailed, StepStatusSkipped:
		return nil
	default:
		return fmt.Errorf("invalid step status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum
// serialization.
func (s StepStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *StepStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = StepStatus(str)
	return s.Validate()
}

// AddResult is the typed outcome of an idempotent repository registration,
// so callers and tests can tell "already satisfied" from "newly applied".
type AddResult string

const (
	// AddResultAdded indicates a new entry line was appended.
	AddResultAdded AddResult = "added"

	// AddResultAlreadyPresent indicates an equivalent active line already
	// existed and nothing was written.
	AddResultAlreadyPresent AddResult = "already_present"
)
