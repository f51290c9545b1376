package root

import (
	"context"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for the tenancy admin CLI. Subcommands (bootstrap, tenant) are attached here.
var rootCmd = &cobra.Command{
	Use:           "palmyra-tenancy",
	Short:         "Palmyra tenancy admin CLI",
	Long:          "Administrative utilities for Palmyra tenancy (registry bootstrap, tenant provisioning and inspection).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI. Cancelling ctx aborts an in-flight provisioning run.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
