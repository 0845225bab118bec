package sources

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openrig/openrig/pkg/engine"
	"github.com/openrig/openrig/pkg/telemetry"
)

// Layout describes where a distribution keeps its repository definition and
// pin files, and the keyword that marks an active entry line.
type Layout struct {
	// PrimaryFile is the main repository definition file, processed first.
	PrimaryFile string

	// FragmentDir holds per-source definition files, processed in
	// lexicographic order after the primary file.
	FragmentDir string

	// FragmentExt is the filename extension fragment files carry.
	FragmentExt string

	// PinDir holds one pin-definition file per rule ID.
	PinDir string

	// PinExt is the filename extension pin files carry.
	PinExt string

	// KeyringDir is where signing keys are installed.
	KeyringDir string

	// Keyword is the token that starts an active entry line. A line is
	// active iff it begins with the keyword followed by whitespace.
	Keyword string
}

// DefaultLayout returns the apt layout.
func DefaultLayout() Layout {
	return Layout{
		PrimaryFile: "/etc/apt/sources.list",
		FragmentDir: "/etc/apt/sources.list.d",
		FragmentExt: ".list",
		PinDir:      "/etc/apt/preferences.d",
		PinExt:      ".pref",
		KeyringDir:  "/etc/apt/keyrings",
		Keyword:     "deb",
	}
}

// Registry implements engine.SourceRegistry over a Layout.
type Registry struct {
	layout Layout
	logger *telemetry.Logger
}

// NewRegistry creates a registry over the given layout.
func NewRegistry(layout Layout, logger *telemetry.Logger) *Registry {
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	return &Registry{
		layout: layout,
		logger: logger.NewComponentLogger("sources"),
	}
}

// Layout returns the layout the registry operates on.
func (r *Registry) Layout() Layout {
	return r.layout
}

// AddRepo idempotently registers the source's entry line. The line is
// normalized (whitespace collapsed) and compared against every active line
// across all known definition files; an existing match means nothing is
// written.
func (r *Registry) AddRepo(src engine.RepoSource) (engine.AddResult, error) {
	if src.ID == "" {
		return "", engine.NewInternalError("repo source has no id", nil)
	}
	want := normalizeLine(src.EntryLine)
	if want == "" {
		return "", engine.NewInternalError(fmt.Sprintf("repo source %s has an empty entry line", src.ID), nil)
	}

	files, err := r.repoFiles()
	if err != nil {
		return "", err
	}
	for _, path := range files {
		lines, _, err := readLines(path)
		if err != nil {
			return "", engine.NewInternalError(fmt.Sprintf("failed to read %s", path), err).WithOperation("add_repo")
		}
		for _, line := range lines {
			if isActive(line, r.layout.Keyword) && normalizeLine(line) == want {
				r.logger.WithField("source", src.ID).Debug("repository entry already present")
				return engine.AddResultAlreadyPresent, nil
			}
		}
	}

	path := filepath.Join(r.layout.FragmentDir, src.ID+r.layout.FragmentExt)
	if err := os.MkdirAll(r.layout.FragmentDir, 0o755); err != nil {
		return "", engine.NewConfigWriteError(fmt.Sprintf("failed to create %s", r.layout.FragmentDir), err).WithOperation("add_repo")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", engine.NewConfigWriteError(fmt.Sprintf("failed to open %s", path), err).WithOperation("add_repo")
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, src.EntryLine); err != nil {
		return "", engine.NewConfigWriteError(fmt.Sprintf("failed to write %s", path), err).WithOperation("add_repo")
	}

	r.logger.WithField("source", src.ID).WithField("file", path).Info("repository entry added")
	return engine.AddResultAdded, nil
}

// InstallKey writes signing key material to path unless identical content is
// already installed.
func (r *Registry) InstallKey(path string, data []byte) error {
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, data) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return engine.NewConfigWriteError(fmt.Sprintf("failed to create %s", filepath.Dir(path)), err).WithOperation("install_key")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return engine.NewConfigWriteError(fmt.Sprintf("failed to write %s", path), err).WithOperation("install_key")
	}
	r.logger.WithField("file", path).Info("signing key installed")
	return nil
}

// repoFiles returns the definition files in the fixed processing order:
// primary file first when it exists, then fragment files lexicographically.
func (r *Registry) repoFiles() ([]string, error) {
	var files []string
	if _, err := os.Stat(r.layout.PrimaryFile); err == nil {
		files = append(files, r.layout.PrimaryFile)
	}

	entries, err := os.ReadDir(r.layout.FragmentDir)
	if err != nil {
		if os.IsNotExist(err) {
			return files, nil
		}
		return nil, engine.NewInternalError(fmt.Sprintf("failed to list %s", r.layout.FragmentDir), err)
	}

	var fragments []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if r.layout.FragmentExt != "" && !strings.HasSuffix(entry.Name(), r.layout.FragmentExt) {
			continue
		}
		fragments = append(fragments, filepath.Join(r.layout.FragmentDir, entry.Name()))
	}
	sort.Strings(fragments)

	return append(files, fragments...), nil
}

// normalizeLine collapses whitespace runs to single spaces and trims the
// ends. Field order and case are preserved: two semantically equivalent but
// differently ordered lines are distinct on purpose.
func normalizeLine(line string) string {
	return strings.Join(strings.Fields(line), " ")
}

// isActive reports whether line declares a live repository entry: the
// keyword followed by whitespace. Everything else passes through every
// operation untouched.
func isActive(line, keyword string) bool {
	if !strings.HasPrefix(line, keyword) {
		return false
	}
	rest := line[len(keyword):]
	return len(rest) > 0 && (rest[0] == ' ' || rest[0] == '\t')
}

// readLines splits a file into lines, reporting whether the content ended
// with a newline so a rewrite can reproduce the original framing. A missing
// file yields no lines and no error.
func readLines(path string) (lines []string, trailingNewline bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, true, nil
		}
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, true, nil
	}
	trailingNewline = data[len(data)-1] == '\n'
	text := strings.TrimSuffix(string(data), "\n")
	return strings.Split(text, "\n"), trailingNewline, nil
}

// writeLines rewrites a file from its lines, restoring the original
// trailing-newline framing.
func writeLines(path string, lines []string, trailingNewline bool) error {
	content := strings.Join(lines, "\n")
	if trailingNewline && content != "" {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
