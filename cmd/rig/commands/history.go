package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openrig/openrig/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		journalPath string
		limit       int
		runID       string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past provisioning runs",
		Long: `Show past runs from the history database, newest first. With --run the
per-step outcomes of a single run are shown.`,
		Example: `  rig history
  rig history --limit 5
  rig history --run 7f3c2a…`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := stores.NewSQLiteStore(stores.Config{Path: journalPath})
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := store.Init(ctx); err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if runID != "" {
				run, steps, err := store.GetRun(ctx, runID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "run %s: %s on %s/%s (%s)\n",
					run.ID, run.State, run.Platform, run.Backend,
					run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond))
				if run.AbortReason != "" {
					fmt.Fprintf(out, "  aborted: %s\n", run.AbortReason)
				}
				for _, step := range steps {
					if step.Error != "" {
						fmt.Fprintf(out, "  %-24s %-8s %s\n", step.Name, step.Status, step.Error)
						continue
					}
					fmt.Fprintf(out, "  %-24s %s\n", step.Name, step.Status)
				}
				return nil
			}

			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "no recorded runs")
				return nil
			}
			for _, run := range runs {
				fmt.Fprintf(out, "%s  %-10s %s  %d ok, %d warning(s), %d failed\n",
					run.StartedAt.Format(time.RFC3339), run.State, run.ID,
					run.OKCount, run.WarningCount, run.FailedCount)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&journalPath, "journal", stores.DefaultPath, "run history database path")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "show the step outcomes of one run")

	return cmd
}
