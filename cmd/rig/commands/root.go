package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openrig/openrig/pkg/backend"
	"github.com/openrig/openrig/pkg/engine"
	"github.com/openrig/openrig/pkg/sources"
	"github.com/openrig/openrig/pkg/telemetry"
)

var (
	// Global flags
	logLevel  string
	logFormat string
)

// ExitCodeError carries a specific process exit code out of a command.
type ExitCodeError struct {
	Code int
	Err  error
}

// Error implements the error interface.
func (e *ExitCodeError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

// Unwrap returns the underlying error.
func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rig",
		Short: "OpenRig - idempotent workstation provisioning",
		Long: `OpenRig provisions a development workstation through the native package
manager (apt on the Debian family, zypper on OpenSUSE) in a way that is safe
to re-run: repository entries are deduplicated instead of duplicated, pins
are overwritten instead of appended, and a failed optional step degrades to
a warning instead of blocking the rest of the run.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")

	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newDedupCommand())
	rootCmd.AddCommand(newDetectCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}

// newLogger builds the logger from the global flags.
func newLogger() (*telemetry.Logger, error) {
	return telemetry.NewLogger(telemetry.LoggingConfig{
		Level:      logLevel,
		Format:     logFormat,
		Output:     "stderr",
		TimeFormat: "rfc3339",
	})
}

// buildEnv detects the platform and assembles the run environment around it.
func buildEnv(logger *telemetry.Logger, metrics *telemetry.Metrics, commandTimeout time.Duration, dryRun bool) (*engine.Env, error) {
	platform, err := backend.DetectPlatform(backend.OSReleasePath)
	if err != nil {
		return nil, err
	}

	var extraEnv []string
	if platform.ID == "debian" || platform.ID == "ubuntu" {
		extraEnv = append(extraEnv, "DEBIAN_FRONTEND=noninteractive")
	}
	runner := backend.NewExecRunner(commandTimeout, extraEnv...)

	pkgBackend, err := backend.NewBackend(platform, runner, logger, metrics)
	if err != nil {
		return nil, err
	}

	return &engine.Env{
		Backend:  pkgBackend,
		Sources:  sources.NewRegistry(sources.DefaultLayout(), logger),
		Keys:     sources.NewHTTPKeyFetcher(30 * time.Second),
		System:   runner,
		Platform: platform,
		Logger:   logger,
		Metrics:  metrics,
		DryRun:   dryRun,
	}, nil
}
