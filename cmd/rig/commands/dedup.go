package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openrig/openrig/pkg/engine"
	"github.com/openrig/openrig/pkg/sources"
)

func newDedupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Remove duplicate repository entries",
		Long: `Scan every repository definition file and remove duplicate active entry
lines. The first occurrence survives (primary file first, then fragment
files in name order); comments and blank lines are never touched. A fragment
file left completely empty by the removal is deleted.

Running dedup twice in a row removes nothing the second time.`,
		Example: `  rig dedup`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			if os.Geteuid() != 0 {
				err := engine.NewPreconditionError("this command must run as root", nil)
				logger.WithError(err).Error("privilege check failed")
				return &ExitCodeError{Code: 1, Err: err}
			}

			registry := sources.NewRegistry(sources.DefaultLayout(), logger)
			removed, err := registry.DeduplicateAll()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d duplicate line(s) removed\n", removed)
			return nil
		},
	}
	return cmd
}
