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

// Patterns recognized in apt/dpkg output for error classification.
var (
	aptNotFoundRe = regexp.MustCompile(`Unable to locate package (\S+)`)

	aptTransientMarkers = []string{
		"Temporary failure resolving",
		"Could not connect to",
		"Connection failed",
		"Failed to fetch",
		"Could not resolve",
	}

	aptConflictMarkers = []string{
		"held broken packages",
		"but it is not going to be installed",
		"Packages were downgraded",
		"E: Unable to correct problems",
	}

	aptVersionMarkerRe = regexp.MustCompile(`deb\d+`)
)

// AptBackend drives apt-get and dpkg. It implements engine.PackageBackend.
type AptBackend struct {
	runner  engine.CommandRunner
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
}

// NewAptBackend creates the apt backend. The runner should carry
// DEBIAN_FRONTEND=noninteractive so apt never blocks on a prompt.
func NewAptBackend(runner engine.CommandRunner, logger *telemetry.Logger, metrics *telemetry.Metrics) *AptBackend {
	return &AptBackend{
		runner:  runner,
		logger:  logger.NewComponentLogger("apt"),
		metrics: metrics,
	}
}

// Name returns the backend identifier.
func (b *AptBackend) Name() string {
	return "apt"
}

// Refresh re-synchronizes the package index via apt-get update.
func (b *AptBackend) Refresh(ctx context.Context) error {
	out, err := b.run(ctx, "refresh", "apt-get", "update")
	if err != nil {
		// An index refresh failure is a network problem until proven
		// otherwise.
		if classified := classifyAptError(out, err); engine.IsTimeout(classified) {
			return classified.WithOperation("refresh")
		}
		return engine.NewTransientError("package index refresh failed", err).WithOperation("refresh")
	}
	return nil
}

// Install installs or upgrades the named packages.
func (b *AptBackend) Install(ctx context.Context, names []string, opts engine.InstallOptions) error {
	if len(names) == 0 {
		return nil
	}
	args := []string{"install", "-y"}
	if opts.AllowDowngrade {
		args = append(args, "--allow-downgrades")
	}
	if opts.NoRecommends {
		args = append(args, "--no-install-recommends")
	}
	args = append(args, opts.Extra...)
	args = append(args, names...)

	out, err := b.run(ctx, "install", "apt-get", args...)
	if err != nil {
		return classifyAptError(out, err).WithOperation("install").WithPackages(names...)
	}
	return nil
}

// IsInstalled reports whether a package is in the installed state.
func (b *AptBackend) IsInstalled(ctx context.Context, name string) (bool, error) {
	out, err := b.run(ctx, "query", "dpkg-query", "-W", "-f", "${Status}", name)
	if err != nil {
		if strings.Contains(string(out), "no packages found") {
			return false, nil
		}
		return false, engine.NewInternalError(fmt.Sprintf("failed to query package %s", name), err).WithOperation("is_installed")
	}
	return strings.Contains(string(out), "install ok installed"), nil
}

// HeldPackages returns the packages excluded from upgrades.
func (b *AptBackend) HeldPackages(ctx context.Context) ([]string, error) {
	out, err := b.run(ctx, "query", "apt-mark", "showhold")
	if err != nil {
		return nil, engine.NewInternalError("failed to list held packages", err).WithOperation("held_packages")
	}
	return nonEmptyLines(string(out)), nil
}

// ForeignReleasePackages returns installed packages whose version string
// carries a release marker different from localReleaseTag (e.g., a deb11
// package surviving on a deb12 system).
func (b *AptBackend) ForeignReleasePackages(ctx context.Context, localReleaseTag string) ([]string, error) {
	if localReleaseTag == "" {
		return nil, nil
	}
	out, err := b.run(ctx, "query", "dpkg-query", "-W", "-f", "${Package} ${Version}\n")
	if err != nil {
		return nil, engine.NewInternalError("failed to list installed packages", err).WithOperation("foreign_release_packages")
	}

	var foreign []string
	for _, line := range nonEmptyLines(string(out)) {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		marker := aptVersionMarkerRe.FindString(fields[1])
		if marker != "" && marker != localReleaseTag {
			foreign = append(foreign, fields[0])
		}
	}
	return foreign, nil
}

// Repair completes interrupted dpkg transactions and fixes broken
// dependencies, making a partially failed earlier run safe to re-run.
func (b *AptBackend) Repair(ctx context.Context) error {
	if out, err := b.run(ctx, "repair", "dpkg", "--configure", "-a"); err != nil {
		return classifyAptError(out, err).WithOperation("repair")
	}
	if out, err := b.run(ctx, "repair", "apt-get", "install", "-f", "-y"); err != nil {
		return classifyAptError(out, err).WithOperation("repair")
	}
	return nil
}

func (b *AptBackend) run(ctx context.Context, operation, name string, args ...string) ([]byte, error) {
	start := time.Now()
	out, err := b.runner.Run(ctx, name, args...)
	b.metrics.RecordBackendCall("apt", operation, time.Since(start))
	if err != nil {
		b.metrics.RecordBackendError("apt", operation)
		b.logger.WithError(err).WithField("command", name).Debugf("command failed: %s", firstLine(string(out)))
	}
	return out, err
}

// classifyAptError maps apt output onto the engine error taxonomy.
func classifyAptError(out []byte, err error) *engine.EngineError {
	if errors.Is(err, context.DeadlineExceeded) {
		return engine.NewTimeoutError("command deadline exceeded", err)
	}

	text := string(out)
	if matches := aptNotFoundRe.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		var missing []string
		for _, m := range matches {
			missing = append(missing, m[1])
		}
		return engine.NewNotFoundError(
			fmt.Sprintf("unknown packages: %s", strings.Join(missing, ", ")), err,
		).WithPackages(missing...)
	}
	for _, marker := range aptConflictMarkers {
		if strings.Contains(text, marker) {
			return engine.NewConflictError(firstLineMatching(text, marker), err)
		}
	}
	for _, marker := range aptTransientMarkers {
		if strings.Contains(text, marker) {
			return engine.NewTransientError(firstLineMatching(text, marker), err)
		}
	}
	return engine.NewInternalError(firstLine(text), err)
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return "command failed"
	}
	return s
}

func firstLineMatching(s, marker string) string {
	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, marker) {
			return strings.TrimSpace(line)
		}
	}
	return firstLine(s)
}
