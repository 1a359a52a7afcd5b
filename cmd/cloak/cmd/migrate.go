package cmd

import (
	"fmt"

	"github.com/goliatone/go-cloak/repository"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the users table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := mustApp(cmd)
			if err := repository.CreateSchema(cmd.Context(), app.DB); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema ready")
			return nil
		},
	}
}
