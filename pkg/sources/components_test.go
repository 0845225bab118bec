package sources

import (
	"path/filepath"
	"testing"
)

func TestEnableComponents(t *testing.T) {
	r := newTestRegistry(t)
	writeFile(t, r.layout.PrimaryFile,
		"deb https://deb.debian.org/debian bookworm main\n")

	rewritten, err := r.EnableComponents("non-free", "non-free-firmware")
	if err != nil {
		t.Fatalf("EnableComponents failed: %v", err)
	}
	if rewritten != 1 {
		t.Errorf("expected 1 rewritten line, got %d", rewritten)
	}

	want := "deb https://deb.debian.org/debian bookworm main non-free non-free-firmware\n"
	if got := readFile(t, r.layout.PrimaryFile); got != want {
		t.Errorf("unexpected content:\n%q\nwant:\n%q", got, want)
	}

	// Second application is a no-op.
	rewritten, err = r.EnableComponents("non-free", "non-free-firmware")
	if err != nil {
		t.Fatalf("second EnableComponents failed: %v", err)
	}
	if rewritten != 0 {
		t.Errorf("expected 0 rewritten lines on second run, got %d", rewritten)
	}
	if got := readFile(t, r.layout.PrimaryFile); got != want {
		t.Errorf("second run altered the file: %q", got)
	}
}

func TestEnableComponentsPartial(t *testing.T) {
	r := newTestRegistry(t)
	writeFile(t, r.layout.PrimaryFile,
		"deb https://deb.debian.org/debian bookworm main non-free\n")

	rewritten, err := r.EnableComponents("non-free", "non-free-firmware")
	if err != nil {
		t.Fatalf("EnableComponents failed: %v", err)
	}
	if rewritten != 1 {
		t.Errorf("expected 1 rewritten line, got %d", rewritten)
	}

	want := "deb https://deb.debian.org/debian bookworm main non-free non-free-firmware\n"
	if got := readFile(t, r.layout.PrimaryFile); got != want {
		t.Errorf("unexpected content: %q", got)
	}
}

func TestEnableComponentsPreservesNonActiveLines(t *testing.T) {
	r := newTestRegistry(t)
	content := "# archive configuration\n" +
		"deb https://deb.debian.org/debian bookworm main\n" +
		"\n" +
		"deb-src https://deb.debian.org/debian bookworm main\n"
	writeFile(t, r.layout.PrimaryFile, content)

	if _, err := r.EnableComponents("contrib"); err != nil {
		t.Fatalf("EnableComponents failed: %v", err)
	}

	want := "# archive configuration\n" +
		"deb https://deb.debian.org/debian bookworm main contrib\n" +
		"\n" +
		"deb-src https://deb.debian.org/debian bookworm main\n"
	if got := readFile(t, r.layout.PrimaryFile); got != want {
		t.Errorf("non-active lines altered:\n%q\nwant:\n%q", got, want)
	}
}

func TestEnableComponentsIgnoresFragments(t *testing.T) {
	r := newTestRegistry(t)
	writeFile(t, r.layout.PrimaryFile,
		"deb https://deb.debian.org/debian bookworm main\n")
	fragment := filepath.Join(r.layout.FragmentDir, "docker.list")
	fragContent := "deb https://download.docker.com/linux/debian bookworm stable\n"
	writeFile(t, fragment, fragContent)

	if _, err := r.EnableComponents("non-free"); err != nil {
		t.Fatalf("EnableComponents failed: %v", err)
	}
	if got := readFile(t, fragment); got != fragContent {
		t.Errorf("fragment file altered: %q", got)
	}
}

func TestEnableComponentsNoTags(t *testing.T) {
	r := newTestRegistry(t)
	rewritten, err := r.EnableComponents()
	if err != nil {
		t.Fatalf("EnableComponents failed: %v", err)
	}
	if rewritten != 0 {
		t.Errorf("expected 0 rewritten lines, got %d", rewritten)
	}
}
