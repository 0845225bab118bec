package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openrig/openrig/pkg/telemetry"
)

// fakeBackend scripts backend behavior per operation.
type fakeBackend struct {
	name        string
	refreshErr  error
	installErr  error
	repairErr   error
	installed   map[string]bool
	held        []string
	foreign     []string
	installLog  [][]string
	refreshHits int
	repairHits  int
}

func (b *fakeBackend) Name() string {
	if b.name == "" {
		return "fake"
	}
	return b.name
}

func (b *fakeBackend) Refresh(context.Context) error {
	b.refreshHits++
	return b.refreshErr
}

func (b *fakeBackend) Install(_ context.Context, names []string, _ InstallOptions) error {
	b.installLog = append(b.installLog, names)
	return b.installErr
}

func (b *fakeBackend) IsInstalled(_ context.Context, name string) (bool, error) {
	return b.installed[name], nil
}

func (b *fakeBackend) HeldPackages(context.Context) ([]string, error) {
	return b.held, nil
}

func (b *fakeBackend) ForeignReleasePackages(context.Context, string) ([]string, error) {
	return b.foreign, nil
}

func (b *fakeBackend) Repair(context.Context) error {
	b.repairHits++
	return b.repairErr
}

// fakeSources scripts registry behavior.
type fakeSources struct {
	addResult    AddResult
	addErr       error
	dedupRemoved int
	dedupErr     error
	pinErr       error
	enableCount  int
	enableErr    error
	added        []RepoSource
	pins         []PinRule
	keys         map[string][]byte
}

func (s *fakeSources) AddRepo(src RepoSource) (AddResult, error) {
	s.added = append(s.added, src)
	if s.addErr != nil {
		return "", s.addErr
	}
	if s.addResult == "" {
		return AddResultAdded, nil
	}
	return s.addResult, nil
}

func (s *fakeSources) InstallKey(path string, data []byte) error {
	if s.keys == nil {
		s.keys = make(map[string][]byte)
	}
	s.keys[path] = data
	return nil
}

func (s *fakeSources) DeduplicateAll() (int, error) {
	return s.dedupRemoved, s.dedupErr
}

func (s *fakeSources) ApplyPin(rule PinRule) error {
	s.pins = append(s.pins, rule)
	return s.pinErr
}

func (s *fakeSources) EnableComponents(...string) (int, error) {
	return s.enableCount, s.enableErr
}

type fakeKeys struct {
	data []byte
	err  error
}

func (k *fakeKeys) Fetch(context.Context, string) ([]byte, error) {
	return k.data, k.err
}

type fakeSystem struct {
	calls [][]string
	err   error
}

func (s *fakeSystem) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	s.calls = append(s.calls, append([]string{name}, args...))
	return nil, s.err
}

// recordingJournal captures the report handed to the journal.
type recordingJournal struct {
	reports []*RunReport
	err     error
}

func (j *recordingJournal) RecordRun(_ context.Context, report *RunReport) error {
	j.reports = append(j.reports, report)
	return j.err
}

func testEnv(backend *fakeBackend, sources *fakeSources) *Env {
	return &Env{
		Backend:  backend,
		Sources:  sources,
		Keys:     &fakeKeys{data: []byte("key")},
		System:   &fakeSystem{},
		Platform: Platform{ID: "debian", Codename: "bookworm", ReleaseTag: "deb12"},
		Logger:   telemetry.FromContext(context.Background()),
	}
}

func mustGraph(t *testing.T, steps ...Step) *StepGraph {
	t.Helper()
	g, err := NewStepGraph(steps...)
	if err != nil {
		t.Fatalf("NewStepGraph failed: %v", err)
	}
	return g
}

func TestRunNonFatalFailureBecomesWarning(t *testing.T) {
	backend := &fakeBackend{}
	sources := &fakeSources{}

	failing := &fakeBackend{installErr: NewTransientError("mirror unreachable", nil)}
	graph := mustGraph(t,
		Step{Name: "one", Actions: []Action{&RepairAction{}}},
		Step{Name: "two", Actions: []Action{&InstallAction{Packages: []string{"git"}}}},
		Step{Name: "three", Actions: []Action{&DeduplicateAction{}}},
	)

	env := testEnv(backend, sources)
	env.Backend = &splitBackend{repair: backend, install: failing}

	o, err := New(Config{Graph: graph, Env: env})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.State != RunStateCompleted {
		t.Errorf("state = %s, want completed", report.State)
	}
	if len(report.Steps) != 3 {
		t.Fatalf("expected 3 step results, got %d", len(report.Steps))
	}
	if report.Steps[0].Status != StepStatusOK {
		t.Errorf("step one = %s, want ok", report.Steps[0].Status)
	}
	if report.Steps[1].Status != StepStatusWarning {
		t.Errorf("step two = %s, want warning", report.Steps[1].Status)
	}
	if report.Steps[1].ErrorClass != ErrorClassTransient {
		t.Errorf("step two class = %s, want transient", report.Steps[1].ErrorClass)
	}
	if report.Steps[2].Status != StepStatusOK {
		t.Errorf("step three = %s, want ok", report.Steps[2].Status)
	}
	if report.ExitCode() != 2 {
		t.Errorf("exit code = %d, want 2", report.ExitCode())
	}
}

// splitBackend routes repair and install to different fakes so one can fail
// while the other succeeds.
type splitBackend struct {
	repair  *fakeBackend
	install *fakeBackend
}

func (b *splitBackend) Name() string                  { return "fake" }
func (b *splitBackend) Refresh(ctx context.Context) error { return b.repair.Refresh(ctx) }
func (b *splitBackend) Install(ctx context.Context, names []string, opts InstallOptions) error {
	return b.install.Install(ctx, names, opts)
}
func (b *splitBackend) IsInstalled(ctx context.Context, name string) (bool, error) {
	return b.repair.IsInstalled(ctx, name)
}
func (b *splitBackend) HeldPackages(ctx context.Context) ([]string, error) {
	return b.repair.HeldPackages(ctx)
}
func (b *splitBackend) ForeignReleasePackages(ctx context.Context, tag string) ([]string, error) {
	return b.repair.ForeignReleasePackages(ctx, tag)
}
func (b *splitBackend) Repair(ctx context.Context) error { return b.repair.Repair(ctx) }

func TestRunPreconditionAbortsWithEmptyReport(t *testing.T) {
	graph := mustGraph(t, Step{Name: "one", Actions: []Action{&RepairAction{}}})
	backend := &fakeBackend{}
	env := testEnv(backend, &fakeSources{})

	o, err := New(Config{
		Graph: graph,
		Env:   env,
		Preconditions: []Precondition{
			func(*Env) error { return NewPreconditionError("must run as root", nil) },
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	report, err := o.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsPrecondition(err) {
		t.Errorf("expected precondition, got %s", ClassOf(err))
	}
	if report.State != RunStateAborted {
		t.Errorf("state = %s, want aborted", report.State)
	}
	if len(report.Steps) != 0 {
		t.Errorf("expected empty report, got %d steps", len(report.Steps))
	}
	if report.ExitCode() != 1 {
		t.Errorf("exit code = %d, want 1", report.ExitCode())
	}
	if backend.repairHits != 0 {
		t.Error("no step should have run")
	}
}

func TestRunFatalStepAborts(t *testing.T) {
	backend := &fakeBackend{installErr: NewNotFoundError("unknown packages: base", nil)}
	graph := mustGraph(t,
		Step{Name: "base", Fatal: true, Actions: []Action{&InstallAction{Packages: []string{"base"}}}},
		Step{Name: "later", Actions: []Action{&RepairAction{}}},
	)
	env := testEnv(backend, &fakeSources{})

	o, err := New(Config{Graph: graph, Env: env})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	report, err := o.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if report.State != RunStateAborted {
		t.Errorf("state = %s, want aborted", report.State)
	}
	if len(report.Steps) != 1 {
		t.Fatalf("expected 1 step result, got %d", len(report.Steps))
	}
	if report.Steps[0].Status != StepStatusFailed {
		t.Errorf("step = %s, want failed", report.Steps[0].Status)
	}
	if backend.repairHits != 0 {
		t.Error("the later step must not run after a fatal failure")
	}
}

func TestRunConfigWriteFailsStepButContinues(t *testing.T) {
	sources := &fakeSources{dedupErr: NewConfigWriteError("read-only filesystem", nil)}
	backend := &fakeBackend{}
	graph := mustGraph(t,
		Step{Name: "dedup", Actions: []Action{&DeduplicateAction{}}},
		Step{Name: "repair", Actions: []Action{&RepairAction{}}},
	)

	o, err := New(Config{Graph: graph, Env: testEnv(backend, sources)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.State != RunStateCompleted {
		t.Errorf("state = %s, want completed", report.State)
	}
	if report.Steps[0].Status != StepStatusFailed {
		t.Errorf("dedup step = %s, want failed", report.Steps[0].Status)
	}
	if report.Steps[1].Status != StepStatusOK {
		t.Errorf("repair step = %s, want ok", report.Steps[1].Status)
	}
}

func TestRunCancellationAtStepBoundary(t *testing.T) {
	backend := &fakeBackend{}
	ctx, cancel := context.WithCancel(context.Background())

	graph := mustGraph(t,
		Step{Name: "one", Actions: []Action{&cancellingAction{cancel: cancel}}},
		Step{Name: "two", Actions: []Action{&RepairAction{}}},
	)

	o, err := New(Config{Graph: graph, Env: testEnv(backend, &fakeSources{})})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	report, err := o.Run(ctx)
	if err == nil {
		t.Fatal("expected error")
	}
	if report.State != RunStateAborted {
		t.Errorf("state = %s, want aborted", report.State)
	}
	if len(report.Steps) != 1 {
		t.Errorf("expected 1 executed step, got %d", len(report.Steps))
	}
	if backend.repairHits != 0 {
		t.Error("step two must not start after cancellation")
	}
}

// cancellingAction cancels the run context while executing, simulating an
// external signal arriving mid-step.
type cancellingAction struct {
	cancel context.CancelFunc
}

func (a *cancellingAction) Kind() ActionKind { return ActionKindRepair }
func (a *cancellingAction) Describe() string { return "cancel the run" }
func (a *cancellingAction) Execute(context.Context, *Env) error {
	a.cancel()
	return nil
}

func TestRunDryRunExecutesNothing(t *testing.T) {
	backend := &fakeBackend{installErr: errors.New("must not be called")}
	sources := &fakeSources{dedupErr: errors.New("must not be called")}
	graph := mustGraph(t,
		Step{Name: "one", Actions: []Action{&InstallAction{Packages: []string{"git"}}}},
		Step{Name: "two", Actions: []Action{&DeduplicateAction{}}},
	)

	env := testEnv(backend, sources)
	env.DryRun = true

	o, err := New(Config{Graph: graph, Env: env})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !report.Clean() {
		t.Errorf("expected a clean dry run, got %+v", report)
	}
	if len(backend.installLog) != 0 {
		t.Error("dry run must not call the backend")
	}
}

func TestRunRecordsJournal(t *testing.T) {
	journal := &recordingJournal{}
	graph := mustGraph(t, Step{Name: "one", Actions: []Action{&RepairAction{}}})

	o, err := New(Config{Graph: graph, Env: testEnv(&fakeBackend{}, &fakeSources{}), Journal: journal})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(journal.reports) != 1 {
		t.Fatalf("expected 1 journal record, got %d", len(journal.reports))
	}
	if journal.reports[0].RunID != report.RunID {
		t.Error("journal received a different report")
	}
}

func TestRunJournalFailureIsNotFatal(t *testing.T) {
	journal := &recordingJournal{err: errors.New("disk full")}
	graph := mustGraph(t, Step{Name: "one", Actions: []Action{&RepairAction{}}})

	o, err := New(Config{Graph: graph, Env: testEnv(&fakeBackend{}, &fakeSources{}), Journal: journal})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.State != RunStateCompleted {
		t.Errorf("state = %s, want completed", report.State)
	}
}

func TestRunActionTimeout(t *testing.T) {
	graph := mustGraph(t, Step{Name: "slow", Actions: []Action{&sleepingAction{d: 200 * time.Millisecond}}})

	o, err := New(Config{
		Graph:         graph,
		Env:           testEnv(&fakeBackend{}, &fakeSources{}),
		ActionTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Steps[0].Status != StepStatusWarning {
		t.Errorf("step = %s, want warning", report.Steps[0].Status)
	}
	if report.Steps[0].ErrorClass != ErrorClassTimeout {
		t.Errorf("class = %s, want timeout", report.Steps[0].ErrorClass)
	}
}

// sleepingAction blocks until the context deadline or its own duration.
type sleepingAction struct {
	d time.Duration
}

func (a *sleepingAction) Kind() ActionKind { return ActionKindInstall }
func (a *sleepingAction) Describe() string { return "sleep" }
func (a *sleepingAction) Execute(ctx context.Context, _ *Env) error {
	select {
	case <-time.After(a.d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestNewValidation(t *testing.T) {
	graph := mustGraph(t, Step{Name: "one", Actions: []Action{&RepairAction{}}})
	env := testEnv(&fakeBackend{}, &fakeSources{})

	if _, err := New(Config{Env: env}); err == nil {
		t.Error("expected error without a graph")
	}
	if _, err := New(Config{Graph: graph}); err == nil {
		t.Error("expected error without an environment")
	}
	noLogger := *env
	noLogger.Logger = nil
	if _, err := New(Config{Graph: graph, Env: &noLogger}); err == nil {
		t.Error("expected error without a logger")
	}
}
