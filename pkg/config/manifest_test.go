package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openrig/openrig/pkg/engine"
)

const sampleManifest = `version: 1
steps:
  - name: sources-dedup
    description: remove duplicate repository entries
    actions:
      - dedup: {}
  - name: base-tools
    actions:
      - install:
          packages: [git, curl]
          no_recommends: true
  - name: docker
    actions:
      - repo:
          id: docker
          entry_line: "deb [signed-by=/etc/apt/keyrings/docker.asc] https://download.docker.com/linux/debian bookworm stable"
          signing_key_url: "https://download.docker.com/linux/debian/gpg"
          signing_key_path: /etc/apt/keyrings/docker.asc
      - install:
          packages: [docker-ce]
      - service:
          unit: docker
  - name: nodejs-pin
    actions:
      - pin:
          id: nodesource
          packages: [nodejs]
          release: o=deb.nodesource.com
          priority: 600
`

func TestParseAndBuild(t *testing.T) {
	m, err := Parse([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(m.Steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(m.Steps))
	}

	graph, err := m.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if graph.Len() != 4 {
		t.Fatalf("expected 4 graph steps, got %d", graph.Len())
	}

	docker, ok := graph.Get("docker")
	if !ok {
		t.Fatal("expected docker step")
	}
	if len(docker.Actions) != 3 {
		t.Fatalf("expected 3 docker actions, got %d", len(docker.Actions))
	}
	if docker.Actions[0].Kind() != engine.ActionKindRepoAdd {
		t.Errorf("expected repo-add first, got %s", docker.Actions[0].Kind())
	}
	if docker.Actions[2].Kind() != engine.ActionKindServiceEnable {
		t.Errorf("expected service-enable last, got %s", docker.Actions[2].Kind())
	}

	install, ok := graph.Get("base-tools")
	if !ok {
		t.Fatal("expected base-tools step")
	}
	act, ok := install.Actions[0].(*engine.InstallAction)
	if !ok {
		t.Fatalf("expected install action, got %T", install.Actions[0])
	}
	if !act.Options.NoRecommends {
		t.Error("expected no_recommends to carry through")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steps.yaml")
	if err := os.WriteFile(path, []byte(sampleManifest), 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Version != 1 {
		t.Errorf("version = %d, want 1", m.Version)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for a missing manifest")
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"bad version", "version: 2\nsteps:\n  - name: a\n    actions:\n      - dedup: {}\n"},
		{"no steps", "version: 1\nsteps: []\n"},
		{"step without name", "version: 1\nsteps:\n  - actions:\n      - dedup: {}\n"},
		{"step without actions", "version: 1\nsteps:\n  - name: a\n    actions: []\n"},
		{"empty action", "version: 1\nsteps:\n  - name: a\n    actions:\n      - {}\n"},
		{"two operations in one action", "version: 1\nsteps:\n  - name: a\n    actions:\n      - dedup: {}\n        refresh: {}\n"},
		{"install without packages", "version: 1\nsteps:\n  - name: a\n    actions:\n      - install:\n          packages: []\n"},
		{"key url without path", "version: 1\nsteps:\n  - name: a\n    actions:\n      - repo:\n          id: x\n          entry_line: deb https://x y z\n          signing_key_url: https://x/gpg\n"},
		{"not yaml", "{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.manifest)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestBuildRejectsDuplicateStepNames(t *testing.T) {
	m, err := Parse([]byte("version: 1\nsteps:\n  - name: a\n    actions:\n      - dedup: {}\n  - name: a\n    actions:\n      - refresh: {}\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, err := m.Build(); err == nil {
		t.Error("expected error for duplicate step names")
	}
}
