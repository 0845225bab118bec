package stores

import "time"

// RunRecord is one persisted run.
type RunRecord struct {
	// ID is the run identifier.
	ID string `json:"id"`

	// State is the terminal run state.
	State string `json:"state"`

	// Platform is the os-release ID the run targeted.
	Platform string `json:"platform,omitempty"`

	// Backend is the package backend used.
	Backend string `json:"backend,omitempty"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run finished.
	CompletedAt time.Time `json:"completed_at"`

	// AbortReason describes why an aborted run stopped.
	AbortReason string `json:"abort_reason,omitempty"`

	// OKCount, WarningCount, and FailedCount summarize the step outcomes.
	OKCount      int `json:"ok_count"`
	WarningCount int `json:"warning_count"`
	FailedCount  int `json:"failed_count"`
}

// StepRecord is one persisted step outcome.
type StepRecord struct {
	// ID is the record identifier.
	ID string `json:"id"`

	// RunID is the run this step belongs to.
	RunID string `json:"run_id"`

	// Position is the step's execution order within the run.
	Position int `json:"position"`

	// Name is the step name.
	Name string `json:"name"`

	// Status is the recorded outcome.
	Status string `json:"status"`

	// Error is the failure description, empty on success.
	Error string `json:"error,omitempty"`

	// ErrorClass is the failure classification, empty on success.
	ErrorClass string `json:"error_class,omitempty"`

	// Duration is how long the step took.
	Duration time.Duration `json:"duration"`
}
