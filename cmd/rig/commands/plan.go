package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openrig/openrig/pkg/backend"
)

func newPlanCommand() *cobra.Command {
	var (
		manifestPath string
		stepNames    []string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the steps a run would execute",
		Long: `Show the step graph for this platform without executing anything.

Unlike apply --dry-run, plan needs no privilege and performs no backend
calls at all; it only resolves the graph and prints it.`,
		Example: `  # Show the built-in graph for this platform
  rig plan

  # Show a custom manifest
  rig plan --manifest steps.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			platform, err := backend.DetectPlatform(backend.OSReleasePath)
			if err != nil {
				return &ExitCodeError{Code: 1, Err: err}
			}

			graph, err := resolveGraph(platform, manifestPath, stepNames)
			if err != nil {
				return &ExitCodeError{Code: 1, Err: err}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "platform: %s\n", platform.PrettyName)
			for _, step := range graph.Steps() {
				fatality := ""
				if step.Fatal {
					fatality = " (fatal)"
				}
				fmt.Fprintf(out, "%s%s: %s\n", step.Name, fatality, step.Description)
				for _, action := range step.Actions {
					fmt.Fprintf(out, "    %s\n", action.Describe())
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "step manifest file (default: built-in graph)")
	cmd.Flags().StringArrayVar(&stepNames, "step", nil, "show only the named step (repeatable)")

	return cmd
}
