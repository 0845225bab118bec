package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/openrig/openrig/pkg/telemetry"
)

// defaultActionTimeout bounds a single backend invocation. Key fetches and
// service enablement have been observed to hang indefinitely on a stuck
// remote; the deadline converts that into a failed action instead.
const defaultActionTimeout = 10 * time.Minute

// Journal records completed runs for later inspection. Implementations live
// in pkg/stores; a nil journal disables recording.
type Journal interface {
	RecordRun(ctx context.Context, report *RunReport) error
}

// Config configures an Orchestrator.
type Config struct {
	// Graph is the ordered step graph to execute.
	Graph *StepGraph

	// Env is the run environment the actions execute against.
	Env *Env

	// Preconditions are checked once before the first step.
	Preconditions []Precondition

	// ActionTimeout bounds each action invocation. Defaults to ten minutes.
	ActionTimeout time.Duration

	// Metrics receives run and step measurements. Optional.
	Metrics *telemetry.Metrics

	// Tracer receives run and step spans. Optional.
	Tracer *telemetry.Tracer

	// Journal records the finished report. Optional.
	Journal Journal
}

// Orchestrator runs a step graph strictly sequentially, captures per-step
// outcomes, and decides whether a failure is fatal or a recoverable warning.
// It exclusively owns the RunReport and the step sequence.
type Orchestrator struct {
	graph         *StepGraph
	env           *Env
	preconditions []Precondition
	actionTimeout time.Duration
	metrics       *telemetry.Metrics
	tracer        *telemetry.Tracer
	journal       Journal

	state RunState
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Graph == nil {
		return nil, NewInternalError("step graph is required", nil)
	}
	if cfg.Env == nil {
		return nil, NewInternalError("run environment is required", nil)
	}
	if cfg.Env.Logger == nil {
		return nil, NewInternalError("logger is required", nil)
	}
	timeout := cfg.ActionTimeout
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	return &Orchestrator{
		graph:         cfg.Graph,
		env:           cfg.Env,
		preconditions: cfg.Preconditions,
		actionTimeout: timeout,
		metrics:       cfg.Metrics,
		tracer:        cfg.Tracer,
		journal:       cfg.Journal,
		state:         RunStateNotStarted,
	}, nil
}

// State returns the orchestrator's current run state.
func (o *Orchestrator) State() RunState {
	return o.state
}

// Run executes the graph and returns the report. The report is always
// non-nil; the error is non-nil only when the run aborted.
//
// Cancellation is observed at step boundaries only. An in-flight action is
// never interrupted mid-way: it finishes or hits its bounded-wait deadline.
func (o *Orchestrator) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.New().String(),
		State:     RunStateNotStarted,
		StartedAt: time.Now(),
	}
	log := o.env.Logger.WithRunID(report.RunID)

	if err := o.checkPreconditions(); err != nil {
		o.state = RunStateAborted
		report.State = RunStateAborted
		report.AbortReason = err.Error()
		report.CompletedAt = time.Now()
		log.WithError(err).Error("precondition failed, nothing was run")
		return report, err
	}

	var abortErr error
	runCtx := ctx
	if o.tracer != nil {
		var endSpan func(error)
		runCtx, endSpan = o.tracer.StartRunSpan(ctx, report.RunID)
		defer func() { endSpan(abortErr) }()
	}

	if o.metrics != nil {
		o.metrics.RecordRunStarted(o.env.Backend.Name())
	}
	o.state = RunStateRunning
	report.State = RunStateRunning
	log.WithField("steps", o.graph.Len()).Info("run started")

	for _, step := range o.graph.Steps() {
		if err := runCtx.Err(); err != nil {
			abortErr = NewInternalError("run cancelled", err)
			report.AbortReason = "cancelled before step " + step.Name
			break
		}

		result := o.runStep(runCtx, report.RunID, step, log)
		report.Record(result)
		if o.metrics != nil {
			o.metrics.RecordStepExecution(string(result.Status), result.Duration)
		}

		if result.Status == StepStatusFailed && step.Fatal {
			abortErr = NewInternalError("fatal step failed: "+step.Name, errors.New(result.Error))
			report.AbortReason = "fatal step failed: " + step.Name
			break
		}
	}

	report.CompletedAt = time.Now()
	if abortErr != nil {
		o.state = RunStateAborted
		report.State = RunStateAborted
	} else {
		o.state = RunStateCompleted
		report.State = RunStateCompleted
	}

	if o.metrics != nil {
		o.metrics.RecordRunCompleted(string(report.State), report.Duration())
	}
	o.recordJournal(ctx, report, log)

	ok, warnings, failed := report.Counts()
	log.WithFields(map[string]interface{}{
		"state": string(report.State), "ok": ok, "warnings": warnings, "failed": failed,
	}).Info("run finished")
	return report, abortErr
}

// runStep executes one step's actions in order. The first action failure
// ends the step; its classification decides the recorded status.
func (o *Orchestrator) runStep(ctx context.Context, runID string, step Step, log *telemetry.Logger) StepResult {
	slog := log.WithStep(step.Name)
	slog.Info("step started")
	start := time.Now()

	var stepErr error
	stepCtx := ctx
	if o.tracer != nil {
		var endSpan func(error)
		stepCtx, endSpan = o.tracer.StartStepSpan(ctx, runID, step.Name)
		defer func() { endSpan(stepErr) }()
		telemetry.SetSpanAttributes(stepCtx, attribute.Bool("step.fatal", step.Fatal))
	}

	result := StepResult{Name: step.Name, Status: StepStatusOK}
	for _, action := range step.Actions {
		if o.env.DryRun {
			slog.Infof("dry-run: %s", action.Describe())
			continue
		}

		err := o.runAction(stepCtx, action)
		if err == nil {
			continue
		}

		stepErr = err
		class := ClassOf(err)
		result.Error = err.Error()
		result.ErrorClass = class
		if o.metrics != nil {
			o.metrics.RecordError(string(class))
		}

		if step.Fatal || class.FailsStep() {
			result.Status = StepStatusFailed
			slog.WithError(err).Error("step failed")
		} else {
			result.Status = StepStatusWarning
			slog.WithError(err).Warn("step degraded to warning")
		}
		break
	}

	result.Duration = time.Since(start)
	if result.Status == StepStatusOK {
		slog.WithField("duration", result.Duration.String()).Info("step completed")
	}
	return result
}

// runAction executes one action under the bounded-wait deadline. A deadline
// hit is reported as a timeout error; it is not retried within this run.
func (o *Orchestrator) runAction(ctx context.Context, action Action) error {
	actionCtx, cancel := context.WithTimeout(ctx, o.actionTimeout)
	defer cancel()

	err := action.Execute(actionCtx, o.env)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !IsTimeout(err) {
		return NewTimeoutError(action.Describe()+" exceeded deadline", err).
			WithOperation(string(action.Kind()))
	}
	return err
}

// checkPreconditions runs every precondition against the environment.
func (o *Orchestrator) checkPreconditions() error {
	for _, check := range o.preconditions {
		if err := check(o.env); err != nil {
			if IsPrecondition(err) {
				return err
			}
			return NewPreconditionError("precondition check failed", err)
		}
	}
	return nil
}

// recordJournal appends the finished report to the journal, if configured.
// Journal failures are logged, never fatal: the report was already produced.
func (o *Orchestrator) recordJournal(ctx context.Context, report *RunReport, log *telemetry.Logger) {
	if o.journal == nil {
		return
	}
	if err := o.journal.RecordRun(ctx, report); err != nil {
		log.WithError(err).Warn("recording run history failed")
	}
}
