package commands

import (
	"github.com/spf13/cobra"

	"github.com/fwmesh/fwmesh/cmd/fwmesh/handlers"
)

// Apply returns the command that reconciles the declared topology.
//
// Optional flags:
//
//	--config, -c: Path to topology YAML file (default: fwmesh.yaml)
//
// Environment variables:
//
//	HCLOUD_TOKEN: Hetzner Cloud API token (required)
func Apply() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create, update, or delete resources to match the topology",
		Long: `Reconcile the declared topology against the live cloud state.

Resources are created and updated in dependency order; resources that are
recorded in the state store but no longer declared are deleted in reverse
dependency order. Independent resources are applied in parallel.

Examples:
  # Apply fwmesh.yaml in the current directory
  fwmesh apply

  # Apply a specific topology
  fwmesh apply -c production.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Apply(cmd.Context(), configPath, verboseFlag(cmd))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to topology file (default: fwmesh.yaml)")

	return cmd
}
