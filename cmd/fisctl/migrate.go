package main

import (
	"fmt"

	"github.com/eularod/faculty-infortmation-system-eula/repository"
	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database(cmd.Context())
			if err != nil {
				return err
			}

			applied, err := repository.Migrate(cmd.Context(), db, a.opts.Database.Driver, a.logger)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(out, "Database is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(out, "Applied %s\n", name)
			}
			return nil
		},
	}
}
