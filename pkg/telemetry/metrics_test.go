package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDisabledMetricsIsSafeToRecord(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	// Every record method must be a no-op on the disabled facade, and on a
	// nil instance: callers hold an optional *Metrics and never branch.
	for _, m := range []*Metrics{m, nil} {
		m.RecordRunStarted("apt")
		m.RecordRunCompleted("completed", time.Second)
		m.RecordStepExecution("ok", time.Second)
		m.RecordBackendCall("apt", "install", time.Second)
		m.RecordBackendError("apt", "install")
		m.RecordError("transient")
		m.RecordDuplicatesRemoved(2)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("disabled handler status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestEnabledMetricsExposesRecordings(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{
		Enabled:       true,
		ListenAddress: ":0",
		Path:          "/metrics",
		Namespace:     "openrig",
	})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordRunStarted("apt")
	m.RecordRunCompleted("completed", 45*time.Second)
	m.RecordStepExecution("warning", 2*time.Second)
	m.RecordBackendCall("apt", "install", time.Second)
	m.RecordBackendError("apt", "install")
	m.RecordError("not_found")
	m.RecordDuplicatesRemoved(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`openrig_runs_started_total{backend="apt"} 1`,
		`openrig_runs_completed_total{state="completed"} 1`,
		`openrig_steps_executed_total{status="warning"} 1`,
		`openrig_backend_calls_total{backend="apt",operation="install"} 1`,
		`openrig_backend_errors_total{backend="apt",operation="install"} 1`,
		`openrig_errors_by_class_total{class="not_found"} 1`,
		`openrig_duplicate_source_lines_removed_total 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestRecordDuplicatesRemovedIgnoresNonPositive(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, ListenAddress: ":0", Namespace: "openrig"})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordDuplicatesRemoved(0)
	m.RecordDuplicatesRemoved(-1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "openrig_duplicate_source_lines_removed_total 0") {
		t.Error("expected the counter to stay at zero")
	}
}
