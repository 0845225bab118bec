package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/openrig/openrig/pkg/config"
	"github.com/openrig/openrig/pkg/engine"
	"github.com/openrig/openrig/pkg/stores"
	"github.com/openrig/openrig/pkg/telemetry"
)

func newApplyCommand() *cobra.Command {
	var (
		yes           bool
		dryRun        bool
		stepNames     []string
		manifestPath  string
		actionTimeout time.Duration
		journalPath   string
		noJournal     bool
		trace         bool
		metricsListen string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Run the provisioning steps",
		Long: `Run the provisioning steps against this machine.

The run is strictly sequential and safe to repeat: every step checks current
state before mutating it. A failed optional step is recorded as a warning and
the run continues; only precondition failures (unsupported platform, missing
privilege) abort before anything executes.

Exit codes: 0 clean completion, 1 aborted run or failed precondition,
2 completed with warnings or per-step failures.`,
		Example: `  # Interactive run of the built-in step graph
  rig apply

  # Non-interactive, for scripted use
  rig apply --yes

  # Describe what would run without touching the system
  rig apply --dry-run

  # Re-run only the repair step
  rig apply --yes --step repair

  # Run a custom step manifest
  rig apply --yes --manifest steps.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}

			metricsCfg := telemetry.DefaultConfig().Metrics
			if metricsListen != "" {
				metricsCfg.Enabled = true
				metricsCfg.ListenAddress = metricsListen
			}
			metrics, err := telemetry.NewMetrics(metricsCfg)
			if err != nil {
				return err
			}
			if err := metrics.StartMetricsServer(); err != nil {
				return err
			}

			tracingCfg := telemetry.DefaultConfig().Tracing
			tracingCfg.Enabled = trace
			tracer, err := telemetry.NewTracer(tracingCfg, "openrig", cmd.Root().Version)
			if err != nil {
				return err
			}
			defer func() { _ = tracer.Shutdown(cmd.Context()) }()

			env, err := buildEnv(logger, metrics, actionTimeout, dryRun)
			if err != nil {
				logger.WithError(err).Error("platform detection failed")
				return &ExitCodeError{Code: 1, Err: err}
			}

			graph, err := resolveGraph(env.Platform, manifestPath, stepNames)
			if err != nil {
				return &ExitCodeError{Code: 1, Err: err}
			}

			if !yes && !dryRun {
				if !confirm(cmd, graph) {
					logger.Info("aborted by user")
					return nil
				}
			}

			var journal engine.Journal
			if !noJournal && !dryRun {
				journal = openJournal(cmd, journalPath, env, logger)
			}

			orch, err := engine.New(engine.Config{
				Graph: graph,
				Env:   env,
				Preconditions: []engine.Precondition{
					requireRoot(dryRun),
				},
				ActionTimeout: actionTimeout,
				Metrics:       metrics,
				Tracer:        tracer,
				Journal:       journal,
			})
			if err != nil {
				return err
			}

			report, runErr := orch.Run(cmd.Context())
			report.Render(os.Stdout)

			if code := report.ExitCode(); code != 0 {
				return &ExitCodeError{Code: code, Err: runErr}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "describe actions without executing them")
	cmd.Flags().StringArrayVar(&stepNames, "step", nil, "run only the named step (repeatable)")
	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "step manifest file (default: built-in graph)")
	cmd.Flags().DurationVar(&actionTimeout, "timeout", 10*time.Minute, "per-action deadline")
	cmd.Flags().StringVar(&journalPath, "journal", stores.DefaultPath, "run history database path")
	cmd.Flags().BoolVar(&noJournal, "no-journal", false, "do not record the run in the history database")
	cmd.Flags().BoolVar(&trace, "trace", false, "emit trace spans to stdout")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "expose Prometheus metrics on this address")

	return cmd
}

// resolveGraph builds the step graph from the manifest or the built-in
// default, then narrows it to the requested steps.
func resolveGraph(platform engine.Platform, manifestPath string, stepNames []string) (*engine.StepGraph, error) {
	var graph *engine.StepGraph
	var err error
	if manifestPath != "" {
		var manifest *config.Manifest
		manifest, err = config.Load(manifestPath)
		if err != nil {
			return nil, err
		}
		graph, err = manifest.Build()
	} else {
		graph, err = engine.DefaultGraph(platform)
	}
	if err != nil {
		return nil, err
	}
	if len(stepNames) > 0 {
		return graph.Subset(stepNames)
	}
	return graph, nil
}

// requireRoot is the privilege precondition. Dry runs are exempt: they never
// mutate anything.
func requireRoot(dryRun bool) engine.Precondition {
	return func(*engine.Env) error {
		if dryRun {
			return nil
		}
		if os.Geteuid() != 0 {
			return engine.NewPreconditionError("this command must run as root", nil)
		}
		return nil
	}
}

// confirm prints the step list and asks for approval. An empty answer means
// yes.
func confirm(cmd *cobra.Command, graph *engine.StepGraph) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "about to run %d step(s): %s\n",
		graph.Len(), strings.Join(graph.Names(), ", "))
	fmt.Fprint(cmd.OutOrStdout(), "proceed? [Y/n] ")

	reader := bufio.NewReader(cmd.InOrStdin())
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "" || answer == "y" || answer == "yes"
}

// openJournal opens the run history store. A journal that cannot be opened
// only costs history, never the run.
func openJournal(cmd *cobra.Command, path string, env *engine.Env, logger *telemetry.Logger) engine.Journal {
	store, err := stores.NewSQLiteStore(stores.Config{
		Path:     path,
		Platform: env.Platform.ID,
		Backend:  env.Backend.Name(),
	})
	if err != nil {
		logger.WithError(err).Warn("run history disabled")
		return nil
	}
	ctx := cmd.Context()
	if err := store.Init(ctx); err != nil {
		logger.WithError(err).Warn("run history disabled")
		return nil
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		logger.WithError(err).Warn("run history disabled")
		return nil
	}
	return store
}
