package engine

import (
	"strings"
	"testing"
	"time"
)

func TestReportCountsAndExitCode(t *testing.T) {
	report := &RunReport{State: RunStateCompleted}
	report.Record(StepResult{Name: "a", Status: StepStatusOK})
	report.Record(StepResult{Name: "b", Status: StepStatusWarning, Error: "mirror unreachable"})
	report.Record(StepResult{Name: "c", Status: StepStatusOK})

	ok, warnings, failed := report.Counts()
	if ok != 2 || warnings != 1 || failed != 0 {
		t.Errorf("counts = %d/%d/%d, want 2/1/0", ok, warnings, failed)
	}
	if report.Clean() {
		t.Error("a run with warnings is not clean")
	}
	if report.ExitCode() != 2 {
		t.Errorf("exit code = %d, want 2", report.ExitCode())
	}
}

func TestReportExitCodes(t *testing.T) {
	clean := &RunReport{State: RunStateCompleted}
	clean.Record(StepResult{Name: "a", Status: StepStatusOK})
	if clean.ExitCode() != 0 {
		t.Errorf("clean exit code = %d, want 0", clean.ExitCode())
	}

	aborted := &RunReport{State: RunStateAborted, AbortReason: "unsupported platform"}
	if aborted.ExitCode() != 1 {
		t.Errorf("aborted exit code = %d, want 1", aborted.ExitCode())
	}
}

func TestReportRenderSurfacesEveryError(t *testing.T) {
	report := &RunReport{
		RunID:       "test-run",
		State:       RunStateCompleted,
		StartedAt:   time.Now(),
		CompletedAt: time.Now().Add(time.Second),
	}
	report.Record(StepResult{Name: "repair", Status: StepStatusOK})
	report.Record(StepResult{Name: "nodejs", Status: StepStatusWarning, Error: "mirror unreachable"})

	var b strings.Builder
	report.Render(&b)
	out := b.String()

	for _, want := range []string{"test-run", "repair", "nodejs", "warning", "mirror unreachable", "1 ok, 1 warning(s), 0 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("render output missing %q:\n%s", want, out)
		}
	}
}
