package commands

import (
	"github.com/spf13/cobra"

	"github.com/fwmesh/fwmesh/cmd/fwmesh/handlers"
)

// Plan returns the command that computes and prints the change set without
// touching anything.
//
// Optional flags:
//
//	--config, -c: Path to topology YAML file (default: fwmesh.yaml)
//	--json:       Emit the change set as JSON
//
// Environment variables:
//
//	HCLOUD_TOKEN: Hetzner Cloud API token (required)
func Plan() *cobra.Command {
	var (
		configPath string
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what apply would change",
		Long: `Compare the declared topology against the live cloud state and print
the operations a subsequent apply would perform. Nothing is modified.

Examples:
  # Plan using fwmesh.yaml in the current directory
  fwmesh plan

  # Plan a specific topology, machine-readable
  fwmesh plan -c production.yaml --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Plan(cmd.Context(), configPath, jsonOut, verboseFlag(cmd))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to topology file (default: fwmesh.yaml)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the change set as JSON")

	return cmd
}
