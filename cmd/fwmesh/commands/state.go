package commands

import (
	"github.com/spf13/cobra"

	"github.com/fwmesh/fwmesh/cmd/fwmesh/handlers"
)

// State returns the state inspection command group.
func State() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and edit the state store",
		Long: `Inspect the resources fwmesh has recorded in the state store.

The topology file is only used to locate the state backend; no provider
credentials are needed.`,
		// bare "state" behaves like "state list"
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.State(cmd.Context(), configPath)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to topology file (default: fwmesh.yaml)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all recorded resources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.State(cmd.Context(), configPath)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show kind/name",
		Short: "Print one record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.StateShow(cmd.Context(), configPath, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm kind/name",
		Short: "Forget a resource without deleting it",
		Long: `Remove a record from the state store without touching the live
resource. The next apply treats the resource as unmanaged: if it is still
declared, apply will re-adopt or recreate it; if it is not declared, it is
simply left alone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.StateRemove(cmd.Context(), configPath, args[0])
		},
	})

	return cmd
}
