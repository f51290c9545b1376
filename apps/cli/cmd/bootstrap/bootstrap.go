package bootstrap

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-tenancy/apps/cli/cmd/common"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

// Command groups bootstrap helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap platform resources",
		Long:  "Bootstrap platform resources such as the tenant registry schema.",
	}

	cmd.AddCommand(adminCommand())
	return cmd
}

func adminCommand() *cobra.Command {
	var db common.DBFlags

	c := &cobra.Command{
		Use:   "admin",
		Short: "Create the registry schema and apply its DDL (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pool, err := db.Open(ctx)
			if err != nil {
				return err
			}
			defer persistence.ClosePool(pool)

			schema := db.Schema()
			if err := persistence.BootstrapAdminSchema(ctx, pool, schema); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Registry ready in schema %s\n", schema)
			return nil
		},
	}

	db.Bind(c)
	return c
}
