// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument
// parsing, flag binding, and validation. Command execution is delegated to
// handler functions in the handlers package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the fwmesh CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fwmesh",
		Short: "Reconcile declared network topologies against the cloud",
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(Plan())
	cmd.AddCommand(Apply())
	cmd.AddCommand(Destroy())
	cmd.AddCommand(State())
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}

func verboseFlag(cmd *cobra.Command) bool {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return verbose
}
