package commands

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/openrig/openrig/pkg/engine"
)

func TestResolveGraphDefault(t *testing.T) {
	graph, err := resolveGraph(engine.Platform{ID: "debian", Codename: "bookworm"}, "", nil)
	if err != nil {
		t.Fatalf("resolveGraph failed: %v", err)
	}
	if graph.Len() == 0 {
		t.Fatal("expected a non-empty default graph")
	}
	if graph.Names()[0] != "repair" {
		t.Errorf("expected repair first, got %s", graph.Names()[0])
	}
}

func TestResolveGraphSubset(t *testing.T) {
	graph, err := resolveGraph(engine.Platform{ID: "debian", Codename: "bookworm"}, "", []string{"repair", "refresh"})
	if err != nil {
		t.Fatalf("resolveGraph failed: %v", err)
	}
	if !reflect.DeepEqual(graph.Names(), []string{"repair", "refresh"}) {
		t.Errorf("unexpected subset: %v", graph.Names())
	}
}

func TestResolveGraphManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steps.yaml")
	manifest := "version: 1\nsteps:\n  - name: only\n    actions:\n      - dedup: {}\n"
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}

	graph, err := resolveGraph(engine.Platform{ID: "debian"}, path, nil)
	if err != nil {
		t.Fatalf("resolveGraph failed: %v", err)
	}
	if !reflect.DeepEqual(graph.Names(), []string{"only"}) {
		t.Errorf("unexpected graph: %v", graph.Names())
	}
}

func TestResolveGraphUnknownStep(t *testing.T) {
	if _, err := resolveGraph(engine.Platform{ID: "debian", Codename: "bookworm"}, "", []string{"nope"}); err == nil {
		t.Error("expected error for an unknown step")
	}
}

func TestExitCodeError(t *testing.T) {
	cause := errors.New("boom")
	err := &ExitCodeError{Code: 2, Err: cause}
	if err.Error() != "boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("expected the cause to unwrap")
	}

	var target *ExitCodeError
	if !errors.As(error(err), &target) || target.Code != 2 {
		t.Error("expected errors.As to recover the exit code")
	}
}

func TestRequireRoot(t *testing.T) {
	if err := requireRoot(true)(nil); err != nil {
		t.Errorf("dry run must not require privilege: %v", err)
	}
	err := requireRoot(false)(nil)
	if os.Geteuid() == 0 {
		if err != nil {
			t.Errorf("expected nil for root: %v", err)
		}
	} else if !engine.IsPrecondition(err) {
		t.Errorf("expected precondition error, got %v", err)
	}
}
