package backend

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/openrig/openrig/pkg/engine"
	"github.com/openrig/openrig/pkg/telemetry"
)

var (
	zypperNotFoundRe = regexp.MustCompile(`No provider of '([^']+)' found|'([^']+)' not found in package names`)

	zypperTransientMarkers = []string{
		"Download failed",
		"Timeout exceeded",
		"Could not resolve host",
		"Failed to retrieve",
		"Valid metadata not found",
	}

	zypperConflictMarkers = []string{
		"conflicts with",
		"is locked",
		"Problem:",
	}

	zypperVersionMarkerRe = regexp.MustCompile(`bp\d+|sle\d+`)
)

// ZypperBackend drives zypper and rpm. It implements engine.PackageBackend.
type ZypperBackend struct {
	runner  engine.CommandRunner
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
}

// NewZypperBackend creates the zypper backend.
func NewZypperBackend(runner engine.CommandRunner, logger *telemetry.Logger, metrics *telemetry.Metrics) *ZypperBackend {
	return &ZypperBackend{
		runner:  runner,
		logger:  logger.NewComponentLogger("zypper"),
		metrics: metrics,
	}
}

// Name returns the backend identifier.
func (b *ZypperBackend) Name() string {
	return "zypper"
}

// Refresh re-synchronizes the repository metadata.
func (b *ZypperBackend) Refresh(ctx context.Context) error {
	out, err := b.run(ctx, "refresh", "zypper", "--non-interactive", "refresh")
	if err != nil {
		if classified := classifyZypperError(out, err); engine.IsTimeout(classified) {
			return classified.WithOperation("refresh")
		}
		return engine.NewTransientError("repository metadata refresh failed", err).WithOperation("refresh")
	}
	return nil
}

// Install installs or upgrades the named packages.
func (b *ZypperBackend) Install(ctx context.Context, names []string, opts engine.InstallOptions) error {
	if len(names) == 0 {
		return nil
	}
	args := []string{"--non-interactive", "install", "-y"}
	if opts.AllowDowngrade {
		args = append(args, "--oldpackage")
	}
	if opts.NoRecommends {
		args = append(args, "--no-recommends")
	}
	args = append(args, opts.Extra...)
	args = append(args, names...)

	out, err := b.run(ctx, "install", "zypper", args...)
	if err != nil {
		return classifyZypperError(out, err).WithOperation("install").WithPackages(names...)
	}
	return nil
}

// IsInstalled reports whether a package is installed according to rpm.
func (b *ZypperBackend) IsInstalled(ctx context.Context, name string) (bool, error) {
	out, err := b.run(ctx, "query", "rpm", "-q", name)
	if err != nil {
		if strings.Contains(string(out), "is not installed") {
			return false, nil
		}
		return false, engine.NewInternalError(fmt.Sprintf("failed to query package %s", name), err).WithOperation("is_installed")
	}
	return true, nil
}

// HeldPackages returns the packages under a zypper lock.
func (b *ZypperBackend) HeldPackages(ctx context.Context) ([]string, error) {
	out, err := b.run(ctx, "query", "zypper", "--non-interactive", "locks")
	if err != nil {
		return nil, engine.NewInternalError("failed to list package locks", err).WithOperation("held_packages")
	}
	return parseZypperLocks(string(out)), nil
}

// ForeignReleasePackages returns installed packages whose version string
// carries a release marker different from localReleaseTag.
func (b *ZypperBackend) ForeignReleasePackages(ctx context.Context, localReleaseTag string) ([]string, error) {
	if localReleaseTag == "" {
		return nil, nil
	}
	out, err := b.run(ctx, "query", "rpm", "-qa", "--qf", "%{NAME} %{VERSION}-%{RELEASE}\n")
	if err != nil {
		return nil, engine.NewInternalError("failed to list installed packages", err).WithOperation("foreign_release_packages")
	}

	var foreign []string
	for _, line := range nonEmptyLines(string(out)) {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		marker := zypperVersionMarkerRe.FindString(fields[1])
		if marker != "" && marker != localReleaseTag {
			foreign = append(foreign, fields[0])
		}
	}
	return foreign, nil
}

// Repair verifies and completes the installed package set.
func (b *ZypperBackend) Repair(ctx context.Context) error {
	if out, err := b.run(ctx, "repair", "zypper", "--non-interactive", "verify"); err != nil {
		return classifyZypperError(out, err).WithOperation("repair")
	}
	return nil
}

func (b *ZypperBackend) run(ctx context.Context, operation, name string, args ...string) ([]byte, error) {
	start := time.Now()
	out, err := b.runner.Run(ctx, name, args...)
	b.metrics.RecordBackendCall("zypper", operation, time.Since(start))
	if err != nil {
		b.metrics.RecordBackendError("zypper", operation)
		b.logger.WithError(err).WithField("command", name).Debugf("command failed: %s", firstLine(string(out)))
	}
	return out, err
}

// classifyZypperError maps zypper output onto the engine error taxonomy.
func classifyZypperError(out []byte, err error) *engine.EngineError {
	if errors.Is(err, context.DeadlineExceeded) {
		return engine.NewTimeoutError("command deadline exceeded", err)
	}

	text := string(out)
	if matches := zypperNotFoundRe.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		var missing []string
		for _, m := range matches {
			for _, group := range m[1:] {
				if group != "" {
					missing = append(missing, group)
				}
			}
		}
		return engine.NewNotFoundError(
			fmt.Sprintf("unknown packages: %s", strings.Join(missing, ", ")), err,
		).WithPackages(missing...)
	}
	for _, marker := range zypperConflictMarkers {
		if strings.Contains(text, marker) {
			return engine.NewConflictError(firstLineMatching(text, marker), err)
		}
	}
	for _, marker := range zypperTransientMarkers {
		if strings.Contains(text, marker) {
			return engine.NewTransientError(firstLineMatching(text, marker), err)
		}
	}
	return engine.NewInternalError(firstLine(text), err)
}

// parseZypperLocks extracts package names from the locks table. The table
// frames rows with '|' separated columns; the name sits in the second
// column.
func parseZypperLocks(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "|") {
			continue
		}
		cols := strings.Split(line, "|")
		if len(cols) < 2 {
			continue
		}
		name := strings.TrimSpace(cols[1])
		if name == "" || name == "Name" {
			continue
		}
		names = append(names, name)
	}
	return names
}
