package commands

import (
	"github.com/spf13/cobra"

	"github.com/fwmesh/fwmesh/cmd/fwmesh/handlers"
)

// Destroy returns the command that deletes every managed resource.
func Destroy() *cobra.Command {
	var (
		configPath string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Delete every resource recorded in the state store",
		Long: `Delete all resources fwmesh manages for this topology, in reverse
dependency order. The topology file is only used to locate the state store.

This is destructive and requires --force.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Destroy(cmd.Context(), configPath, force, verboseFlag(cmd))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to topology file (default: fwmesh.yaml)")
	cmd.Flags().BoolVar(&force, "force", false, "Confirm deletion of all managed resources")

	return cmd
}
