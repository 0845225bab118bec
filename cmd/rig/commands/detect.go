package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newDetectCommand() *cobra.Command {
	var queries bool

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Show the detected platform and backend",
		Long: `Detect the platform from /etc/os-release and report which package backend
a run would use. With --queries the backend is also asked for held packages
and packages originating from a foreign release.`,
		Example: `  rig detect
  rig detect --queries`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}

			env, err := buildEnv(logger, nil, 2*time.Minute, false)
			if err != nil {
				return &ExitCodeError{Code: 1, Err: err}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "platform:    %s\n", env.Platform.PrettyName)
			fmt.Fprintf(out, "id:          %s\n", env.Platform.ID)
			if env.Platform.Codename != "" {
				fmt.Fprintf(out, "codename:    %s\n", env.Platform.Codename)
			}
			if env.Platform.ReleaseTag != "" {
				fmt.Fprintf(out, "release tag: %s\n", env.Platform.ReleaseTag)
			}
			fmt.Fprintf(out, "backend:     %s\n", env.Backend.Name())

			if !queries {
				return nil
			}

			ctx := cmd.Context()
			held, err := env.Backend.HeldPackages(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "held:        %s\n", orNone(held))

			foreign, err := env.Backend.ForeignReleasePackages(ctx, env.Platform.ReleaseTag)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "foreign:     %s\n", orNone(foreign))
			return nil
		},
	}

	cmd.Flags().BoolVar(&queries, "queries", false, "also query held and foreign-release packages")
	return cmd
}

func orNone(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}
